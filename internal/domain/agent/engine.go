// Package agent runs the response cycle loop that turns an inbound email
// into model turns, tool executions and a terminal outcome.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"mailagent/internal/domain/agenterrors"
	"mailagent/internal/domain/conversation"
	"mailagent/internal/domain/llm"
	"mailagent/internal/domain/tool"
	"mailagent/internal/infrastructure/observability"
)

// EngineConfig carries the knobs of the cycle loop.
type EngineConfig struct {
	Mode        Mode
	Model       string
	MaxCycles   int
	ToolTimeout time.Duration
}

// Engine drives response cycles against the model provider and the tool
// registry. It mutates the conversation passed to Run in place and reports
// how the run ended.
type Engine struct {
	provider llm.Provider
	registry *tool.Registry
	cfg      EngineConfig
	log      zerolog.Logger
}

// NewEngine builds an engine. MaxCycles must be positive; ToolTimeout of zero
// disables the per-tool deadline.
func NewEngine(provider llm.Provider, registry *tool.Registry, cfg EngineConfig, log zerolog.Logger) *Engine {
	return &Engine{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("component", "agent-engine").Logger(),
	}
}

// RunParams is the input to a single run.
type RunParams struct {
	// Conversation is the history to extend. It must already contain the
	// system message and the user message that triggered the run.
	Conversation *conversation.Conversation
	// Checkpoint, when set, is called after every non-terminal cycle so the
	// messages appended so far survive a crash mid-run. A checkpoint failure
	// aborts the run.
	Checkpoint func(ctx context.Context) error
}

// RunResult reports how a run ended.
type RunResult struct {
	Outcome Outcome
	Cycles  int
	Usage   llm.Usage
	// Truncated is set when the history was reset to the system message
	// because the model declared the task done.
	Truncated bool
}

// Run executes response cycles until a terminal outcome or the cycle budget
// is spent. On a fatal error the returned error is non-nil, the outcome is
// OutcomeError, and nothing from the failed cycle has been appended to the
// history.
func (e *Engine) Run(ctx context.Context, params RunParams) (*RunResult, error) {
	conv := params.Conversation
	result := &RunResult{Outcome: OutcomeError}
	log := e.log.With().Str("conversation_id", conv.PublicID).Str("mode", string(e.cfg.Mode)).Logger()

	for cycle := 1; cycle <= e.cfg.MaxCycles; cycle++ {
		result.Cycles = cycle
		observability.AddCycleEvent(trace.SpanFromContext(ctx), cycle)
		if err := ctx.Err(); err != nil {
			return result, agenterrors.WrapFatal(err, agenterrors.ErrCodeTimeout, "run cancelled").
				WithRunContext(conv.PublicID, cycle)
		}

		resp, err := e.provider.CreateChatCompletion(ctx, llm.CompletionRequest{
			Model:    e.cfg.Model,
			Messages: conv.Messages,
			Tools:    e.registry.Definitions(),
		})
		if err != nil {
			return result, agenterrors.WrapFatal(err, agenterrors.ErrCodeModelGateway, "model completion failed").
				WithRunContext(conv.PublicID, cycle)
		}
		result.Usage.Add(resp.Usage)

		var outcome Outcome
		if resp.HasToolCalls() {
			outcome, err = e.runToolCycle(ctx, conv, resp, cycle, log)
		} else {
			outcome = e.runTextCycle(conv, resp.Content, cycle, log)
		}
		if err != nil {
			return result, err
		}

		if outcome != OutcomeContinue {
			result.Outcome = outcome
			if outcome == OutcomeDone && e.cfg.Mode == ModeDirective {
				conv.TruncateToSystem()
				result.Truncated = true
			}
			log.Info().Int("cycle", cycle).Str("outcome", string(outcome)).Msg("run finished")
			return result, nil
		}

		if params.Checkpoint != nil {
			if err := params.Checkpoint(ctx); err != nil {
				return result, agenterrors.WrapFatal(err, agenterrors.ErrCodePersistence, "checkpoint failed").
					WithRunContext(conv.PublicID, cycle)
			}
		}
	}

	log.Warn().Int("max_cycles", e.cfg.MaxCycles).Msg("cycle limit reached")
	result.Outcome = OutcomeCycleLimit
	return result, nil
}

// runToolCycle appends the assistant's tool call message and executes the
// calls. In tool call mode every call runs in order and an outbound call
// makes the cycle terminal once all calls finished; in directive mode only
// the first call runs.
func (e *Engine) runToolCycle(ctx context.Context, conv *conversation.Conversation, resp *llm.CompletionResponse, cycle int, log zerolog.Logger) (Outcome, error) {
	calls := resp.ToolCalls
	if e.cfg.Mode == ModeDirective && len(calls) > 1 {
		log.Warn().Int("cycle", cycle).Int("dropped", len(calls)-1).Msg("directive mode allows one tool call per turn, dropping extras")
		calls = calls[:1]
	}
	conv.Append(conversation.NewAssistantMessage(textPtr(resp.Content), calls))

	outbound := false
	for _, raw := range calls {
		call, err := tool.ParseCall(raw)
		if err != nil {
			return OutcomeError, agenterrors.WrapFatal(err, agenterrors.ErrCodeInvalidArguments, "malformed tool arguments").
				WithRunContext(conv.PublicID, cycle).
				WithDetails(map[string]interface{}{"tool": raw.Name})
		}

		log.Info().Int("cycle", cycle).Str("tool", call.Name).Msg("executing tool")
		callCtx, span := observability.StartToolSpan(ctx, call.Name, conv.PublicID)
		output, err := e.executeCall(callCtx, call)
		observability.RecordError(span, err)
		span.End()
		if err != nil {
			var re *agenterrors.RunError
			if errors.As(err, &re) {
				return OutcomeError, re.WithRunContext(conv.PublicID, cycle)
			}
			return OutcomeError, agenterrors.WrapFatal(err, agenterrors.ErrCodeToolExecution, "tool execution failed").
				WithRunContext(conv.PublicID, cycle)
		}
		conv.Append(conversation.NewToolResultMessage(call.ID, call.Name, output))

		if tool.IsOutbound(call.Name) {
			outbound = true
		}
	}

	// An outbound send ends the run in tool call mode. Directive mode keeps
	// cycling: the model declares DONE or WAIT itself.
	if outbound && e.cfg.Mode == ModeToolCall {
		return OutcomeDone, nil
	}
	return OutcomeContinue, nil
}

func (e *Engine) executeCall(ctx context.Context, call tool.Call) (string, error) {
	if e.cfg.ToolTimeout <= 0 {
		return e.registry.Execute(ctx, call)
	}
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
	defer cancel()
	return e.registry.Execute(execCtx, call)
}

// runTextCycle handles a plain text response. Tool call mode treats any text
// as a contract violation and corrects it in-loop; directive mode parses the
// text into the closed set of directives.
func (e *Engine) runTextCycle(conv *conversation.Conversation, text string, cycle int, log zerolog.Logger) Outcome {
	if e.cfg.Mode == ModeToolCall {
		log.Warn().Int("cycle", cycle).Str("response", text).Msg("model responded with text instead of a tool call")
		conv.Append(
			conversation.NewAssistantMessage(textPtr(text), nil),
			conversation.NewUserMessage(correctiveToolCall),
		)
		return OutcomeContinue
	}

	directive := ParseDirective(text)
	switch directive.Kind {
	case DirectivePlan:
		log.Info().Int("cycle", cycle).Str("plan", directive.Body).Msg("model shared a plan")
		conv.Append(
			conversation.NewAssistantMessage(textPtr(text), nil),
			conversation.NewUserMessage(planAcknowledged),
		)
		return OutcomeContinue
	case DirectiveWait:
		conv.Append(conversation.NewAssistantMessage(textPtr(text), nil))
		return OutcomeWaiting
	case DirectiveDone:
		conv.Append(conversation.NewAssistantMessage(textPtr(text), nil))
		return OutcomeDone
	default:
		log.Warn().Int("cycle", cycle).Str("response", text).Msg("model response matched no directive")
		conv.Append(
			conversation.NewAssistantMessage(textPtr(text), nil),
			conversation.NewUserMessage(correctiveDirective),
		)
		return OutcomeContinue
	}
}

func textPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
