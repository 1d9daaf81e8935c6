package whatsapp

// WebhookEvent is the Graph API webhook envelope for a WhatsApp Business
// Account. Only the fields the bridge consumes are modeled; unknown fields
// are ignored on decode.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one business-account entry in a webhook event.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field change inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the inbound messages for a change. Status-only
// notifications arrive with an empty Messages slice.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
}

// InboundMessage is one user message. Type is "text" for text messages; any
// other value means Text is nil.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *TextBody `json:"text,omitempty"`
}

// TextBody is the body of a text message.
type TextBody struct {
	Body string `json:"body"`
}

// TemplateComponent parameterizes one section of a message template.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters"`
}

// TemplateParameter is a single template placeholder value.
type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
