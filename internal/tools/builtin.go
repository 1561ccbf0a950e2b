package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qunqin/chatbridge/internal/config"
	"github.com/qunqin/chatbridge/internal/fetch"
	"github.com/qunqin/chatbridge/internal/history"
	"github.com/qunqin/chatbridge/internal/search"
)

// Backends are the collaborators the builtin tools delegate to. A nil
// backend disables its tools regardless of feature flags.
type Backends struct {
	Search  *search.Manager
	Fetcher *fetch.Fetcher
	History *history.ContextBuilder
	NewsURL string
}

// RegisterBuiltins registers the builtin tool set, honoring the
// per-tool feature flags.
func RegisterBuiltins(r *Registry, features config.FeaturesConfig, b Backends) {
	if features.SearchEnabled && b.Search != nil && b.Search.Configured() {
		r.Register(searchTool(b.Search))
	}
	if features.URLReaderEnabled && b.Fetcher != nil {
		r.Register(readURLTool(b.Fetcher))
	}
	if features.ChatHistoryEnabled && b.History != nil {
		r.Register(chatContextTool(b.History))
	}
	if features.NewsEnabled && b.Fetcher != nil {
		r.Register(newsTool(b.Fetcher, b.NewsURL))
	}
}

func searchTool(mgr *search.Manager) *Tool {
	return &Tool{
		Name:        "search_internet",
		Description: "Search the internet for current information. Use when the question needs facts you do not know or that may have changed recently.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"keywords": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Search keywords, most important first.",
				},
			},
			"required": []string{"keywords"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			keywords := stringSlice(args["keywords"])
			if len(keywords) == 0 {
				return "", fmt.Errorf("search_internet: keywords are required")
			}

			results, err := mgr.SearchKeywords(ctx, keywords)
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(results)
			if err != nil {
				return "", fmt.Errorf("search_internet: encode results: %w", err)
			}
			return string(out), nil
		},
	}
}

func readURLTool(f *fetch.Fetcher) *Tool {
	return &Tool{
		Name:        "read_url",
		Description: "Fetch a web page or PDF document and return its readable text content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The URL to read.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			rawURL, _ := args["url"].(string)
			if rawURL == "" {
				return "", fmt.Errorf("read_url: url is required")
			}

			result, err := f.Fetch(ctx, rawURL)
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("read_url: encode result: %w", err)
			}
			return string(out), nil
		},
	}
}

func chatContextTool(builder *history.ContextBuilder) *Tool {
	return &Tool{
		Name:        "get_chat_context",
		Description: "Retrieve and digest this conversation's chat history. Use when the user refers to earlier discussion or asks for a summary.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"purpose": map[string]any{
					"type":        "string",
					"enum":        []string{history.PurposeSummarize, history.PurposeReference, history.PurposeAnalyze},
					"description": "What the history is needed for.",
				},
				"keywords": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional keywords to filter the history by.",
				},
			},
			"required": []string{"purpose"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			purpose, _ := args["purpose"].(string)
			keywords := stringSlice(args["keywords"])
			conversationID := ConversationIDFromContext(ctx)
			return builder.GetContext(ctx, conversationID, purpose, keywords), nil
		},
	}
}

func newsTool(f *fetch.Fetcher, newsURL string) *Tool {
	if newsURL == "" {
		newsURL = config.DefaultNewsURL
	}
	return &Tool{
		Name:        "get_today_news",
		Description: "Get today's top news headlines.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			result, err := f.Fetch(ctx, newsURL)
			if err != nil {
				return "", err
			}
			return result.Content, nil
		},
	}
}
