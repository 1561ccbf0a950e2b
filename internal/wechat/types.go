// Package wechat connects chatbridge to a WeChat sidecar over a
// websocket. The sidecar owns the actual WeChat session (login, QR
// scan, protocol); this package speaks its JSON event stream and feeds
// messages into the conversation engine.
package wechat

// Event types pushed by the sidecar.
const (
	EventScan    = "scan"
	EventLogin   = "login"
	EventLogout  = "logout"
	EventMessage = "message"
)

// Event is the top-level structure for each sidecar push. The field
// matching Type is non-nil.
type Event struct {
	Type    string          `json:"type"`
	Scan    *ScanEvent      `json:"scan,omitempty"`
	Login   *LoginEvent     `json:"login,omitempty"`
	Message *InboundMessage `json:"message,omitempty"`
}

// ScanEvent asks the operator to scan a login QR code.
type ScanEvent struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// LoginEvent reports a successful login.
type LoginEvent struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// InboundMessage is one received chat message.
type InboundMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Content        string `json:"content"`
	IsGroup        bool   `json:"is_group"`
	MentionsBot    bool   `json:"mentions_bot"`
	SelfSent       bool   `json:"self_sent"`
}

// outboundMessage is the send command written back to the sidecar.
type outboundMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}
