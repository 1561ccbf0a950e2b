package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qunqin/chatbridge/internal/history"
	"github.com/qunqin/chatbridge/internal/llm"
	"github.com/qunqin/chatbridge/internal/prompts"
	"github.com/qunqin/chatbridge/internal/state"
	"github.com/qunqin/chatbridge/internal/tools"
)

// scriptedClient replays canned responses and records every request.
type scriptedClient struct {
	responses []*llm.ChatResponse
	errs      []error
	calls     [][]llm.Message
	toolDefs  [][]map[string]any
}

func (c *scriptedClient) Chat(_ context.Context, _ string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	c.calls = append(c.calls, messages)
	c.toolDefs = append(c.toolDefs, toolDefs)

	i := len(c.calls) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.responses) {
		return nil, fmt.Errorf("unexpected call %d", i)
	}
	return c.responses[i], nil
}

func (c *scriptedClient) Ping(context.Context) error { return nil }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: content}}
}

func toolCallResponse(id, name, args string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{
			{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}},
		},
	}}
}

type fixture struct {
	client   *scriptedClient
	orch     *Orchestrator
	hist     *history.Store
	registry *tools.Registry
}

func newFixture(t *testing.T, client *scriptedClient) *fixture {
	t.Helper()

	st, err := state.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	promptDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(promptDir, "default.txt"), []byte("be helpful"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(promptDir, "pirate.txt"), []byte("be a pirate"), 0o644); err != nil {
		t.Fatal(err)
	}

	pm := prompts.NewManager(promptDir, st, 30*time.Minute, nil)
	hist := history.NewStore(st, 10, 30*time.Minute, time.Hour, nil)
	registry := tools.NewRegistry(nil)

	return &fixture{
		client:   client,
		orch:     New(client, "test-model", pm, hist, registry, nil),
		hist:     hist,
		registry: registry,
	}
}

func TestBareSwitchCommandShortCircuits(t *testing.T) {
	f := newFixture(t, &scriptedClient{})

	reply := f.orch.HandleMessage(context.Background(), Request{
		ConversationID: "conv1", Text: "pirate",
	})
	if reply != "已切换系统提示词。" {
		t.Errorf("reply = %q", reply)
	}
	if len(f.client.calls) != 0 {
		t.Errorf("LLM called %d times, want 0", len(f.client.calls))
	}
	if got := f.hist.Get("conv1"); len(got) != 0 {
		t.Errorf("history mutated: %v", got)
	}
}

func TestPlainReplyFlow(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		textResponse("intent: none"),
		textResponse("the answer"),
	}}
	f := newFixture(t, client)

	reply := f.orch.HandleMessage(context.Background(), Request{
		ConversationID: "conv1", Text: "what is Go", Username: "alice",
	})
	if reply != "the answer" {
		t.Fatalf("reply = %q", reply)
	}
	if len(client.calls) != 2 {
		t.Fatalf("LLM called %d times, want 2", len(client.calls))
	}

	// First turn: the bare user message only, with tool declarations.
	first := client.calls[0]
	if len(first) != 1 || first[0].Role != "user" || first[0].Content != "what is Go" {
		t.Errorf("first turn = %v", first)
	}

	// Second turn: system prompt, history, then the user message again.
	second := client.calls[1]
	if second[0].Role != "system" {
		t.Errorf("second turn starts with %q", second[0].Role)
	}
	last := second[len(second)-1]
	if last.Role != "user" || last.Content != "what is Go" {
		t.Errorf("second turn ends with %v", last)
	}
	if client.toolDefs[1] != nil {
		t.Error("tools passed on follow-up turn")
	}

	hist := f.hist.Get("conv1")
	if len(hist) != 2 || hist[1].Role != history.RoleAssistant || hist[1].Content != "the answer" {
		t.Errorf("history = %v", hist)
	}
}

func TestToolCallFlow(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "lookup", `{"q":"go"}`),
		textResponse("based on the tool: done"),
	}}
	f := newFixture(t, client)

	var gotArgs map[string]any
	f.registry.Register(&tools.Tool{
		Name: "lookup",
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			gotArgs = args
			return "tool output", nil
		},
	})

	reply := f.orch.HandleMessage(context.Background(), Request{
		ConversationID: "conv1", Text: "look up go",
	})
	if reply != "based on the tool: done" {
		t.Fatalf("reply = %q", reply)
	}
	if gotArgs["q"] != "go" {
		t.Errorf("tool args = %v", gotArgs)
	}
	if len(client.calls) != 2 {
		t.Fatalf("LLM called %d times, want 2", len(client.calls))
	}

	followup := client.calls[1]
	var toolMsg *llm.Message
	for i := range followup {
		if followup[i].Role == "tool" {
			toolMsg = &followup[i]
		}
	}
	if toolMsg == nil {
		t.Fatalf("no tool message in follow-up: %v", followup)
	}
	if toolMsg.Content != "tool output" || toolMsg.ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", toolMsg)
	}

	// The assistant's tool-call message precedes the tool result.
	var sawAssistantCall bool
	for _, m := range followup {
		if len(m.ToolCalls) > 0 {
			sawAssistantCall = true
		}
	}
	if !sawAssistantCall {
		t.Error("assistant tool-call message missing from follow-up")
	}
}

func TestOnlyFirstToolCallDispatched(t *testing.T) {
	resp := &llm.ChatResponse{Message: llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{
			{ID: "call_1", Function: llm.FunctionCall{Name: "first", Arguments: "{}"}},
			{ID: "call_2", Function: llm.FunctionCall{Name: "second", Arguments: "{}"}},
		},
	}}
	client := &scriptedClient{responses: []*llm.ChatResponse{resp, textResponse("ok")}}
	f := newFixture(t, client)

	var firstCalls, secondCalls int
	f.registry.Register(&tools.Tool{
		Name: "first",
		Handler: func(context.Context, map[string]any) (string, error) {
			firstCalls++
			return "one", nil
		},
	})
	f.registry.Register(&tools.Tool{
		Name: "second",
		Handler: func(context.Context, map[string]any) (string, error) {
			secondCalls++
			return "two", nil
		},
	})

	f.orch.HandleMessage(context.Background(), Request{ConversationID: "conv1", Text: "go"})
	if firstCalls != 1 || secondCalls != 0 {
		t.Errorf("dispatch counts: first=%d second=%d", firstCalls, secondCalls)
	}
}

func TestToolFailureStillProducesReply(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "broken", "{}"),
		textResponse("sorry about that"),
	}}
	f := newFixture(t, client)

	f.registry.Register(&tools.Tool{
		Name: "broken",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	})

	reply := f.orch.HandleMessage(context.Background(), Request{ConversationID: "conv1", Text: "go"})
	if reply != "sorry about that" {
		t.Errorf("reply = %q", reply)
	}

	// The failure text reached the model as the tool result.
	followup := client.calls[1]
	var toolContent string
	for _, m := range followup {
		if m.Role == "tool" {
			toolContent = m.Content
		}
	}
	if toolContent == "" || toolContent == "backend down" {
		t.Errorf("tool content = %q", toolContent)
	}
}

func TestLLMFailureYieldsApology(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("connection refused")}}
	f := newFixture(t, client)

	reply := f.orch.HandleMessage(context.Background(), Request{
		ConversationID: "conv1", Text: "hello",
	})
	if reply != "抱歉，我目前无法回答您的问题。" {
		t.Errorf("reply = %q", reply)
	}

	// The user message stays recorded; partial mutation is accepted.
	hist := f.hist.Get("conv1")
	if len(hist) != 1 || hist[0].Role != history.RoleUser {
		t.Errorf("history = %v", hist)
	}
}

func TestGroupMessagesCarrySenderName(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		textResponse("x"),
		textResponse("y"),
	}}
	f := newFixture(t, client)

	f.orch.HandleMessage(context.Background(), Request{
		ConversationID: "room1", Text: "hello all", Username: "alice", IsGroup: true,
	})

	second := client.calls[1]
	var found bool
	for _, m := range second {
		if m.Role == "user" && m.Name == "alice" {
			found = true
		}
	}
	if !found {
		t.Errorf("sender name missing from follow-up: %v", second)
	}
}
