// Package session runs a cart's shopping session against the venue broker.
//
// A session is one pass through the warm-start protocol: dial with the
// stored credentials, subscribe to the per-account command topic (the
// subscription is acknowledged before any shopping activity, so a fast
// server reply cannot be missed), simulate a customer picking a few items
// with browsing pauses in between, publish one payment request for the
// cart total, then block for exactly one server command. Whatever the
// command says, the session shuts down after a fixed grace period; retry
// decisions belong to the server, not the cart.
//
// The broker connection is closed on every exit path, including
// cancellation at any suspend point.
package session
