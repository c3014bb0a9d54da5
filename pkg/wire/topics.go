package wire

import "fmt"

// TopicRoot is the namespace prefix shared by every smart-cart topic.
const TopicRoot = "smartcart"

// AnnounceTopic returns the venue-scoped topic a cart announces itself on.
func AnnounceTopic(venueID string) string {
	return fmt.Sprintf("%s/provisioning/announce/%s", TopicRoot, venueID)
}

// ClaimedTopic returns the per-MAC topic carrying the claim confirmation.
func ClaimedTopic(macAddress string) string {
	return fmt.Sprintf("%s/provisioning/claimed/%s", TopicRoot, macAddress)
}

// CommandsTopic returns the per-account topic the server sends commands on.
func CommandsTopic(username string) string {
	return fmt.Sprintf("%s/%s/commands", TopicRoot, username)
}

// ItemAddedTopic returns the per-account item event topic.
func ItemAddedTopic(username string) string {
	return fmt.Sprintf("%s/%s/events/item_added", TopicRoot, username)
}

// PaymentRequestTopic returns the per-account payment request topic.
func PaymentRequestTopic(username string) string {
	return fmt.Sprintf("%s/%s/events/payment_request", TopicRoot, username)
}
