package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qunqin/chatbridge/internal/agent"
	"github.com/qunqin/chatbridge/internal/history"
	"github.com/qunqin/chatbridge/internal/markdown"
)

// handleTimeout bounds one inbound message's processing, LLM turns and
// tool calls included.
const handleTimeout = 5 * time.Minute

// Handler runs one conversation turn. Implemented by *agent.Orchestrator.
type Handler interface {
	HandleMessage(ctx context.Context, req agent.Request) string
}

// Sender sends a reply back through the sidecar. Implemented by *Client.
type Sender interface {
	SendText(conversationID, content string) error
}

// Bridge consumes sidecar events and routes chat messages into the
// conversation engine. Group messages are always recorded for context,
// but only direct messages and explicit @-mentions get a reply.
type Bridge struct {
	client  Sender
	handler Handler
	history *history.Store
	botName string
	qrPath  string
	logger  *slog.Logger
}

// NewBridge wires a bridge. botName is the bot's display name, used to
// strip the @-mention from group messages. qrPath, when non-empty, is
// where the login QR code is also written as a PNG for setups whose
// terminal cannot display one.
func NewBridge(client Sender, handler Handler, hist *history.Store, botName, qrPath string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:  client,
		handler: handler,
		history: hist,
		botName: botName,
		qrPath:  qrPath,
		logger:  logger.With("component", "wechat-bridge"),
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, events <-chan *Event) {
	b.logger.Info("wechat bridge started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("wechat bridge shutting down")
			return
		case ev, ok := <-events:
			if !ok {
				b.logger.Info("sidecar event stream closed, bridge stopping")
				return
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, ev *Event) {
	switch ev.Type {
	case EventScan:
		if ev.Scan == nil {
			return
		}
		if b.qrPath != "" {
			if err := SaveQR(ev.Scan.URL, b.qrPath); err != nil {
				b.logger.Error("failed to save login qr", "path", b.qrPath, "error", err)
			} else {
				b.logger.Info("login qr written", "path", b.qrPath)
			}
		}
		qr, err := TerminalQR(ev.Scan.URL)
		if err != nil {
			b.logger.Error("failed to render login qr", "error", err)
			fmt.Println(ev.Scan.URL)
			return
		}
		b.logger.Info("scan the QR code below to log in", "status", ev.Scan.Status)
		fmt.Println(qr)

	case EventLogin:
		if ev.Login != nil {
			b.logger.Info("logged in", "user", ev.Login.Name, "user_id", ev.Login.UserID)
		}

	case EventLogout:
		b.logger.Warn("logged out of wechat")

	case EventMessage:
		if ev.Message != nil {
			b.handleMessage(ctx, ev.Message)
		}

	default:
		b.logger.Debug("ignoring sidecar event", "type", ev.Type)
	}
}

func (b *Bridge) handleMessage(ctx context.Context, msg *InboundMessage) {
	if msg.SelfSent || strings.TrimSpace(msg.Content) == "" {
		return
	}

	// Group chatter the bot was not asked about still goes into the
	// history, so get_chat_context sees the whole room.
	if msg.IsGroup && !msg.MentionsBot {
		b.history.Append(msg.ConversationID, history.Message{
			Role:     history.RoleUser,
			Content:  msg.Content,
			Username: msg.SenderName,
			Type:     history.TypeGroupChat,
		})
		return
	}

	text := msg.Content
	if msg.IsGroup {
		text = b.stripMention(text)
	}

	go b.respond(ctx, msg, text)
}

func (b *Bridge) respond(ctx context.Context, msg *InboundMessage, text string) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	reply := b.handler.HandleMessage(ctx, agent.Request{
		ConversationID: msg.ConversationID,
		Text:           text,
		Username:       msg.SenderName,
		IsGroup:        msg.IsGroup,
	})
	if reply == "" {
		return
	}

	// Chat clients show raw text; flatten any markdown the model wrote.
	if err := b.client.SendText(msg.ConversationID, markdown.Flatten(reply)); err != nil {
		b.logger.Error("failed to send reply",
			"conversation", msg.ConversationID, "error", err)
	}
}

// stripMention removes the bot's @-mention from a group message.
func (b *Bridge) stripMention(text string) string {
	if b.botName == "" {
		return strings.TrimSpace(text)
	}
	// WeChat terminates group mentions with U+2005 (four-per-em space).
	for _, sep := range []string{"\u2005", " ", ""} {
		text = strings.ReplaceAll(text, "@"+b.botName+sep, "")
	}
	return strings.TrimSpace(text)
}
