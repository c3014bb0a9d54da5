// Package identity persists a cart's provisioned identity.
//
// The identity record (venue id, device id, broker credentials) is written
// exactly once, at the single commit point at the end of activation, and is
// never mutated in place afterwards. Its presence is the sole signal that
// distinguishes a warm start (go straight to the shopping session) from a
// cold start (run the full provisioning flow). Re-provisioning a cart means
// clearing the store and starting over.
//
// Three Store implementations are provided: FileStore (JSON file, the
// default for a real cart), MemoryStore (tests), and RedisStore (fleet
// simulations where many simulated carts run against one host).
package identity
