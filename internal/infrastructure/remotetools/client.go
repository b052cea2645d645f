// Package remotetools bridges an external JSON-RPC tool server into the
// agent's registry. Tools are discovered once at startup via tools/list and
// dispatched with tools/call.
package remotetools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/tool"
)

// RemoteTool is one tool advertised by the remote server.
type RemoteTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Client talks JSON-RPC to the remote tool server.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

// NewClient constructs the remote tools client. endpoint is the full
// JSON-RPC URL.
func NewClient(endpoint string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(endpoint).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		log: log.With().Str("component", "remotetools").Logger(),
	}
}

// ListTools fetches the tools via JSON-RPC call tools/list.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "tools/list",
		"params":  map[string]interface{}{},
		"id":      1,
	}

	var rpcResp rpcResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&rpcResp).
		Post("")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote tools list error: %s", resp.String())
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	var result struct {
		Tools []RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool triggers a tool execution via JSON-RPC tools/call and returns the
// flattened text content.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
		"id": name,
	}

	var rpcResp rpcResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&rpcResp).
		Post("")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("remote tool call error: %s", resp.String())
	}
	if rpcResp.Error != nil {
		return "", rpcResp.Error
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return "", err
	}

	var texts []string
	for _, block := range result.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		return "", fmt.Errorf("remote tool %s failed: %s", name, text)
	}
	return text, nil
}

// RegisterAll discovers the remote tools and registers each in the registry,
// dispatching through this client. Returns how many tools were registered.
func (c *Client) RegisterAll(ctx context.Context, registry *tool.Registry) (int, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("list remote tools: %w", err)
	}

	registered := 0
	for _, t := range tools {
		// The outbound prefix decides when a run terminates; a remote tool
		// must not claim it.
		if tool.IsOutbound(t.Name) {
			c.log.Warn().Str("tool", t.Name).Msg("remote tool uses the outbound prefix, skipped")
			continue
		}

		def := tool.Definition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		}
		if def.Parameters == nil {
			def.Parameters = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}

		name := t.Name
		handler := func(ctx context.Context, args json.RawMessage) (string, error) {
			return c.CallTool(ctx, name, args)
		}
		if err := registry.Register(def, handler); err != nil {
			c.log.Warn().Err(err).Str("tool", name).Msg("remote tool not registered")
			continue
		}
		registered++
	}

	c.log.Info().Int("count", registered).Msg("remote tools registered")
	return registered, nil
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (r *rpcError) Error() string {
	return fmt.Sprintf("remote tools error (%d): %s", r.Code, r.Message)
}
