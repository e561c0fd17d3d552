// ABOUTME: Wire types for the provider's webhook delivery payload.
// ABOUTME: Models the nested entry/changes/value envelope with messages and statuses.

package provider

// ObjectBusinessAccount is the envelope object value for deliveries this
// relay handles; anything else is ignored.
const ObjectBusinessAccount = "whatsapp_business_account"

// WebhookEnvelope is the top-level webhook delivery body.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups changes for one account.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange carries either inbound messages or status updates.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue is the payload of one change.
type WebhookValue struct {
	Messages []Message `json:"messages"`
	Statuses []Status  `json:"statuses"`
}

// Message is one inbound message. Exactly one of the per-type metadata
// objects is set, matching Type.
type Message struct {
	From      string        `json:"from"`
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *MessageText  `json:"text,omitempty"`
	Image     *MessageMedia `json:"image,omitempty"`
	Audio     *MessageMedia `json:"audio,omitempty"`
	Video     *MessageMedia `json:"video,omitempty"`
	Document  *MessageMedia `json:"document,omitempty"`
}

// MessageText is the body of a text message.
type MessageText struct {
	Body string `json:"body"`
}

// MessageMedia is the provider's media metadata, shared across image, audio,
// video, and document messages. Carried through to the conversation log and
// subscribers unchanged.
type MessageMedia struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}

// Status is a delivery status update for a previously sent message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
