// Package llm provides the LLM client used by the conversation engine.
package llm

// Message represents a chat message on the OpenAI-compatible wire.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`         // sender name, for group chats
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant messages requesting tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool result messages
}

// ToolCall represents a tool invocation requested by the model.
// Arguments arrive as a JSON string, exactly as the API delivers them;
// decoding happens at dispatch time.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function portion of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage reports token counts for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the decoded result of a chat completion call.
type ChatResponse struct {
	Model   string
	Message Message
	Usage   Usage
}

// HasToolCalls reports whether the model requested any tool invocation.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}
