package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mailagent/internal/domain/tool"
)

const (
	// SearchToolName is the web search tool exposed to the model.
	SearchToolName = "web_search"
	// FetchToolName is the page fetch tool exposed to the model.
	FetchToolName = "fetch_webpage"
)

// fetchPageLimit caps fetched page text. Tool output flows straight into the
// model context, so unbounded pages would crowd out the conversation.
const fetchPageLimit = 16000

type searchArgs struct {
	Query string `json:"query"`
}

type fetchArgs struct {
	URL string `json:"url"`
}

// SearchTool returns the definition and handler for the web_search tool.
func SearchTool(client *Client) (tool.Definition, tool.Handler) {
	def := tool.Definition{
		Name:        SearchToolName,
		Description: "Perform a search query on the web, and retrieve the most relevant URLs/web data.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query to perform.",
				},
			},
			"required": []string{"query"},
		},
	}

	handler := func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args searchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode web_search arguments: %w", err)
		}
		if strings.TrimSpace(args.Query) == "" {
			return "", fmt.Errorf("web_search requires a non-empty query")
		}

		results, err := client.Search(ctx, args.Query)
		if err != nil {
			return "", err
		}
		return FormatResults(args.Query, results), nil
	}

	return def, handler
}

// FetchTool returns the definition and handler for the fetch_webpage tool.
func FetchTool(client *Client) (tool.Definition, tool.Handler) {
	def := tool.Definition{
		Name:        FetchToolName,
		Description: "Fetch a webpage and return its visible text content.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{
					"type":        "string",
					"description": "The URL of the page to fetch.",
				},
			},
			"required": []string{"url"},
		},
	}

	handler := func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args fetchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode fetch_webpage arguments: %w", err)
		}
		if strings.TrimSpace(args.URL) == "" {
			return "", fmt.Errorf("fetch_webpage requires a non-empty url")
		}

		text, err := client.FetchPage(ctx, args.URL)
		if err != nil {
			return "", err
		}
		if len(text) > fetchPageLimit {
			text = text[:fetchPageLimit] + "\n... (truncated)"
		}
		return text, nil
	}

	return def, handler
}

// FormatResults renders search results as plain text for the model, one
// result per block.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Title)
		if r.Link != "" {
			b.WriteString("\n")
			b.WriteString(r.Link)
		}
		if r.Snippet != "" {
			b.WriteString("\n")
			b.WriteString(r.Snippet)
		}
	}
	return b.String()
}
