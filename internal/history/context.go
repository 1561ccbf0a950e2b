package history

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/qunqin/chatbridge/internal/llm"
)

// Context purposes. Each selects a different instruction for the model.
const (
	PurposeSummarize = "summarize"
	PurposeReference = "reference"
	PurposeAnalyze   = "analyze"
)

// Fixed user-facing replies. These go straight to the chat, so they stay
// in the bot's language.
const (
	msgNoHistory    = "暂无聊天记录。"
	msgContextError = "获取聊天记录时发生错误。"
)

// ContextBuilder renders a conversation's combined history as a
// transcript and asks the model to digest it for a given purpose.
type ContextBuilder struct {
	store  *Store
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewContextBuilder wires a builder over the store and LLM client.
func NewContextBuilder(store *Store, client llm.Client, model string, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{
		store:  store,
		client: client,
		model:  model,
		logger: logger.With("component", "history"),
	}
}

// GetContext returns a metadata header plus the model's digest of the
// conversation's combined (archived + active) history, optionally
// filtered by keywords. It never returns an error: empty history and
// LLM failures map to fixed replies.
func (b *ContextBuilder) GetContext(ctx context.Context, conversationID, purpose string, keywords []string) string {
	msgs := b.store.Combined(conversationID)
	msgs = filterByKeywords(msgs, keywords)
	if len(msgs) == 0 {
		return msgNoHistory
	}

	header := metadataHeader(msgs, keywords)
	transcript := renderTranscript(msgs)
	prompt := fmt.Sprintf("%s\n\n%s\n\n%s", purposeInstruction(purpose), header, transcript)

	resp, err := b.client.Chat(ctx, b.model, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		b.logger.Error("chat context request failed",
			"conversation", conversationID, "purpose", purpose, "error", err)
		return msgContextError
	}

	return header + "\n\n" + resp.Message.Content
}

// Summarize is GetContext with the summarize purpose and no filter.
func (b *ContextBuilder) Summarize(ctx context.Context, conversationID string) string {
	return b.GetContext(ctx, conversationID, PurposeSummarize, nil)
}

// filterByKeywords keeps messages whose content matches any keyword,
// case-insensitively. Keywords are matched literally, not as patterns.
func filterByKeywords(msgs []Message, keywords []string) []Message {
	if len(keywords) == 0 {
		return msgs
	}

	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			quoted = append(quoted, regexp.QuoteMeta(kw))
		}
	}
	if len(quoted) == 0 {
		return msgs
	}

	re, err := regexp.Compile("(?i)" + strings.Join(quoted, "|"))
	if err != nil {
		return msgs
	}

	var out []Message
	for _, m := range msgs {
		if re.MatchString(m.Content) {
			out = append(out, m)
		}
	}
	return out
}

// metadataHeader describes the transcript: time range, count, and the
// keyword filter when one applied. Deterministic for a fixed history.
func metadataHeader(msgs []Message, keywords []string) string {
	const layout = "2006-01-02 15:04"

	var sb strings.Builder
	fmt.Fprintf(&sb, "时间范围：%s 至 %s\n",
		msgs[0].Timestamp.Format(layout), msgs[len(msgs)-1].Timestamp.Format(layout))
	fmt.Fprintf(&sb, "消息数量：%d", len(msgs))
	if len(keywords) > 0 {
		fmt.Fprintf(&sb, "\n关键词：%s", strings.Join(keywords, "、"))
	}
	return sb.String()
}

// renderTranscript formats messages as "[time] speaker: content" lines,
// tagging group messages.
func renderTranscript(msgs []Message) string {
	const layout = "2006-01-02 15:04"

	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		speaker := m.Username
		if speaker == "" {
			speaker = m.Role
		}
		if m.Type == TypeGroupChat {
			speaker += "(群聊)"
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", m.Timestamp.Format(layout), speaker, m.Content)
	}
	return sb.String()
}

func purposeInstruction(purpose string) string {
	switch purpose {
	case PurposeSummarize:
		return "请对以下聊天记录进行摘要总结，提炼出主要话题和结论："
	case PurposeReference:
		return "请从以下聊天记录中找出与当前话题相关的引用，并注明发言人和时间："
	case PurposeAnalyze:
		return "请分析以下聊天记录中的互动情况，包括参与者、话题走向和讨论氛围："
	default:
		return "请根据以下聊天记录回答问题："
	}
}
