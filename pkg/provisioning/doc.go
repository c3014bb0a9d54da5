// Package provisioning implements the cart's cold-start state machine.
//
// # Flow
//
// An unclaimed cart walks four states:
//
//	ANNOUNCE -> AWAIT_CLAIM -> ACTIVATE -> PROVISIONED
//
// with ABORTED reachable from any state on missing operator input, a
// connect failure, a credential rejection, or a claim timeout.
//
// Announce publishes the cart's generated hardware address on the venue's
// announce topic over a short-lived anonymous session. AwaitClaim holds a
// second anonymous session subscribed to the per-MAC claimed topic and
// blocks until the server confirms the operator's claim. Activate dials
// with the operator-supplied credentials; a successful authenticated
// connect is the proof the credentials work, and only then is the identity
// persisted. Persistence happens at that single commit point, so an abort
// at any earlier state leaves no residue.
//
// Each state owns its own transport session and closes it on every exit
// path. Operator input arrives through the OperatorInput interface so the
// console prompts stay out of the state machine.
package provisioning
