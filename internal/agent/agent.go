// Package agent implements the conversation orchestrator: one inbound
// message becomes at most two LLM turns (three when a tool is called)
// and exactly one reply string.
package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/qunqin/chatbridge/internal/history"
	"github.com/qunqin/chatbridge/internal/llm"
	"github.com/qunqin/chatbridge/internal/prompts"
	"github.com/qunqin/chatbridge/internal/tools"
)

// Fixed user-facing replies.
const (
	msgPromptSwitched = "已切换系统提示词。"
	msgApology        = "抱歉，我目前无法回答您的问题。"
)

// Request is one inbound chat message.
type Request struct {
	ConversationID string
	Text           string
	Username       string
	IsGroup        bool
}

// Orchestrator drives a conversation turn end to end. Turns for the
// same conversation are serialized; different conversations proceed
// concurrently.
type Orchestrator struct {
	client   llm.Client
	model    string
	prompts  *prompts.Manager
	history  *history.Store
	registry *tools.Registry
	logger   *slog.Logger

	// locks maps conversation ID to a one-slot semaphore.
	locks sync.Map
}

// New wires an orchestrator over its collaborators.
func New(client llm.Client, model string, pm *prompts.Manager, hs *history.Store, reg *tools.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client:   client,
		model:    model,
		prompts:  pm,
		history:  hs,
		registry: reg,
		logger:   logger.With("component", "agent"),
	}
}

// HandleMessage runs one conversation turn and always returns a reply
// string: the model's answer, the prompt-switch acknowledgement, or a
// fixed apology when anything downstream fails.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) string {
	release := o.acquire(req.ConversationID)
	defer release()

	turnID := uuid.NewString()
	logger := o.logger.With("turn", turnID, "conversation", req.ConversationID)

	res := o.prompts.Resolve(req.ConversationID, req.Text)
	if res.IsSwitch && res.Content == "" {
		logger.Info("prompt switched, no content to process")
		return msgPromptSwitched
	}

	chatType := history.TypeChat
	if req.IsGroup {
		chatType = history.TypeGroupChat
	}
	o.history.Append(req.ConversationID, history.Message{
		Role:     history.RoleUser,
		Content:  res.Content,
		Username: req.Username,
		Type:     chatType,
	})

	ctx = tools.WithConversationID(ctx, req.ConversationID)

	reply, err := o.runTurn(ctx, logger, req.ConversationID, res.SystemPrompt, res.Content)
	if err != nil {
		logger.Error("conversation turn failed", "error", err)
		return msgApology
	}

	o.history.Append(req.ConversationID, history.Message{
		Role:    history.RoleAssistant,
		Content: reply,
		Type:    chatType,
	})
	return reply
}

// runTurn performs the LLM round trips. The first turn carries only the
// user message plus tool declarations: it exists to detect tool intent
// without biasing selection with history. The follow-up turn carries the
// system prompt and full history.
func (o *Orchestrator) runTurn(ctx context.Context, logger *slog.Logger, conversationID, systemPrompt, content string) (string, error) {
	userMsg := llm.Message{Role: "user", Content: content}

	first, err := o.client.Chat(ctx, o.model, []llm.Message{userMsg}, o.registry.Definitions())
	if err != nil {
		return "", err
	}

	base := o.contextMessages(conversationID, systemPrompt)

	if !first.HasToolCalls() {
		final, err := o.client.Chat(ctx, o.model, append(base, userMsg), nil)
		if err != nil {
			return "", err
		}
		return final.Message.Content, nil
	}

	// Only the first tool call is honored; the rest are dropped.
	call := first.Message.ToolCalls[0]
	if len(first.Message.ToolCalls) > 1 {
		logger.Warn("multiple tool calls in response, dispatching first only",
			"count", len(first.Message.ToolCalls))
	}

	result := o.registry.Dispatch(ctx, call)
	logger.Info("tool call completed", "tool", call.Function.Name, "result_len", len(result))

	followup := append(base,
		first.Message,
		llm.Message{Role: "tool", Content: result, ToolCallID: call.ID},
	)
	final, err := o.client.Chat(ctx, o.model, followup, nil)
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// contextMessages builds [system, ...history] for the follow-up turn.
// The history already contains the current user message.
func (o *Orchestrator) contextMessages(conversationID, systemPrompt string) []llm.Message {
	hist := o.history.Get(conversationID)
	msgs := make([]llm.Message, 0, len(hist)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	for _, m := range hist {
		msg := llm.Message{Role: m.Role, Content: m.Content}
		if m.Role == history.RoleUser && m.Type == history.TypeGroupChat {
			msg.Name = m.Username
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// acquire blocks until the conversation's turn slot is free.
func (o *Orchestrator) acquire(conversationID string) func() {
	v, _ := o.locks.LoadOrStore(conversationID, make(chan struct{}, 1))
	sem := v.(chan struct{})
	sem <- struct{}{}
	return func() { <-sem }
}
