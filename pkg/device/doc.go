/*
Package device ties the cart lifecycle together.

A Runner decides between a cold start and a warm start by checking the
identity store: an absent identity means the cart has never been
provisioned, so the provisioning flow runs first and its result is
persisted; a present identity skips straight to the shopping session.
Either way, one Run call is one full power-on to power-off cycle.
*/
package device
