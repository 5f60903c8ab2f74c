package domain

// WebhookEvent is a settlement notification pushed by the payment
// provider for a previously initiated transfer. EventID dedupes
// retransmissions; EventType decides the target transfer status.
type WebhookEvent struct {
	EventID    string `json:"eventId"`
	EndToEndID string `json:"endToEndId"`
	EventType  string `json:"eventType"`
	Reason     string `json:"reason,omitempty"`
}
