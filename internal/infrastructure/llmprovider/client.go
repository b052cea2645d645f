// Package llmprovider implements the model gateway against an OpenAI
// compatible chat completion API.
package llmprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/llm"
	"mailagent/internal/domain/retry"
	"mailagent/internal/domain/tool"
)

// Client implements the llm.Provider interface.
type Client struct {
	client *openai.Client
	policy retry.Policy
}

// NewClient creates a client for the configured provider. baseURL overrides
// the default OpenAI endpoint for compatible gateways; empty keeps the
// default.
func NewClient(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		policy: retry.DefaultPolicy(),
	}
}

// CreateChatCompletion sends the conversation to the provider and decodes the
// next move. Rate limits and 5xx responses are retried per the transport
// policy; the error returned after retries are spent is fatal to the run.
func (c *Client) CreateChatCompletion(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	oaReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toProviderMessages(req.Messages),
		Tools:    toProviderTools(req.Tools),
	}

	resp, err := retry.ExecuteWithResult(ctx, c.policy, func(ctx context.Context, attempt int) (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, oaReq)
		if err != nil {
			return resp, classifyProviderError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	choice := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, conversation.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toProviderMessages(msgs []conversation.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		m := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Text(),
		}
		for _, call := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Arguments),
				},
			})
		}
		if msg.Role == conversation.RoleTool && msg.ToolCallID != nil {
			m.ToolCallID = *msg.ToolCallID
			if msg.ToolName != nil {
				m.Name = *msg.ToolName
			}
		}
		out = append(out, m)
	}
	return out
}

func toProviderTools(defs []tool.Definition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

// classifyProviderError marks rate limits and server errors retryable, and
// everything else the provider explicitly rejected as fatal. Plain transport
// errors pass through for the retry policy's default classification.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return agenterrors.WrapRetryable(err, agenterrors.ErrCodeModelGateway, "provider unavailable")
		}
		return agenterrors.WrapFatal(err, agenterrors.ErrCodeModelGateway, "provider rejected request")
	}
	return err
}

// Ensure interface compliance.
var _ llm.Provider = (*Client)(nil)
