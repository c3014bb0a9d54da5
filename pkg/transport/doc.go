// Package transport abstracts the publish/subscribe channel a cart talks
// to the venue broker over.
//
// # Ownership
//
// A Connection is exclusively owned by whichever component dialed it.
// Provisioning steps each dial a short-lived anonymous or authenticated
// connection and close it before the next step; the shopping session owns
// one authenticated connection for its whole lifetime. Connections are
// never shared between components.
//
// # Implementations
//
// MQTTDialer connects to a real MQTT broker (the production transport of
// the smart-cart system). memory.Broker provides an in-process broker with
// a credential table for deterministic tests.
//
// # Guarantees
//
// Publish is fire-and-forget beyond the broker's own delivery semantics.
// Subscribe returns only after the subscription is acknowledged, so a
// caller that subscribes before publishing cannot miss a fast reply.
package transport
