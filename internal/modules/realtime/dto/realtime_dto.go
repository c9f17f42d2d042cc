package dto

// InboundMessage is a client frame on the post channel. Fields beyond Type
// are read according to it.
type InboundMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	ParentID *uint  `json:"parent_id,omitempty"`
	// Token overrides the handshake token for this message only.
	Token    string `json:"token,omitempty"`
	IsTyping *bool  `json:"is_typing,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TypingPayload struct {
	PostID   uint   `json:"post_id"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}
