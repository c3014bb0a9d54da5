// Package wire defines the broker-facing message types and topic layout
// for the smart-cart protocol.
//
// # Payload Format
//
// All payloads are JSON objects. Decoding is tolerant by design: unknown
// fields and unknown enum values are ignored so that older carts keep
// working when the server starts sending new fields. The two load-bearing
// message kinds (ClaimConfirmation and ServerCommand) report malformed
// payloads as ErrNoMatch rather than a hard failure, so a waiting state
// machine treats them as "no matching message yet".
//
// # Topic Layout
//
// The topic namespace is rooted at "smartcart/". Provisioning topics are
// parameterized by venue id and hardware address; session topics by the
// account username issued at claim time:
//
//	smartcart/provisioning/announce/{venue}   cart -> server
//	smartcart/provisioning/claimed/{mac}      server -> cart
//	smartcart/{user}/commands                 server -> cart
//	smartcart/{user}/events/item_added        cart -> server
//	smartcart/{user}/events/payment_request   cart -> server
package wire
