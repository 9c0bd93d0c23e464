package bus

// InboundMessage is a user message arriving from a channel.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	SessionKey string            `json:"session_key"`
	Media      []string          `json:"media,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundAttachment is a local file to upload alongside an outbound message.
type OutboundAttachment struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// OutboundMessage is a reply to deliver through a channel.
type OutboundMessage struct {
	Channel     string               `json:"channel"`
	ChatID      string               `json:"chat_id"`
	Content     string               `json:"content"`
	Attachments []OutboundAttachment `json:"attachments,omitempty"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}
