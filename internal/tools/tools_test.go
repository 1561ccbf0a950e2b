package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/qunqin/chatbridge/internal/llm"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			text, _ := args["text"].(string)
			return "echo: " + text, nil
		},
	}
}

func TestExecute(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo"))

	out, err := r.Execute(context.Background(), "echo", `{"text":"hi"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != "echo: hi" {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Execute(context.Background(), "nope", "{}"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteMalformedArguments(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("echo"))

	if _, err := r.Execute(context.Background(), "echo", `{not json`); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestDispatchWrapsFailures(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "broken",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("backend down")
		},
	})

	out := r.Dispatch(context.Background(), llm.ToolCall{
		ID:       "call_1",
		Function: llm.FunctionCall{Name: "broken", Arguments: "{}"},
	})
	if !strings.HasPrefix(out, "工具执行失败: ") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(out, "backend down") {
		t.Errorf("cause lost: %q", out)
	}
}

func TestDispatchUnknownToolIsUserFacing(t *testing.T) {
	r := NewRegistry(nil)
	out := r.Dispatch(context.Background(), llm.ToolCall{
		Function: llm.FunctionCall{Name: "ghost"},
	})
	if !strings.HasPrefix(out, "工具执行失败: ") {
		t.Errorf("out = %q", out)
	}
}

func TestDefinitionsShape(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(echoTool("b_tool"))
	r.Register(echoTool("a_tool"))

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions", len(defs))
	}

	first := defs[0]
	if first["type"] != "function" {
		t.Errorf("type = %v", first["type"])
	}
	fn, ok := first["function"].(map[string]any)
	if !ok {
		t.Fatalf("function block missing: %v", first)
	}
	if fn["name"] != "a_tool" {
		t.Errorf("definitions not sorted: first = %v", fn["name"])
	}
	if _, ok := fn["parameters"]; !ok {
		t.Error("parameters missing")
	}
}

func TestDefinitionsEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if defs := r.Definitions(); defs != nil {
		t.Errorf("defs = %v, want nil", defs)
	}
}

func TestConversationIDContext(t *testing.T) {
	ctx := WithConversationID(context.Background(), "room42")
	if got := ConversationIDFromContext(ctx); got != "room42" {
		t.Errorf("got %q", got)
	}
	if got := ConversationIDFromContext(context.Background()); got != "default" {
		t.Errorf("got %q", got)
	}
}

func TestStringSlice(t *testing.T) {
	got := stringSlice([]any{"a", 1, "b", nil})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}
	if got := stringSlice("not a slice"); got != nil {
		t.Errorf("got %v", got)
	}
}
