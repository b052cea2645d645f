package agent

import "mailagent/internal/domain/status"

// Outcome is how a response run ended.
type Outcome string

const (
	// OutcomeContinue is internal to the cycle loop; a run never returns it.
	OutcomeContinue Outcome = "continue"
	// OutcomeWaiting means the model asked to wait for the user's reply.
	OutcomeWaiting Outcome = "waiting_reply"
	// OutcomeDone means the task finished: the outbound email was sent in
	// tool call mode, or the model declared DONE in directive mode.
	OutcomeDone Outcome = "done"
	// OutcomeCycleLimit means the run spent its cycle budget without
	// reaching a natural stop.
	OutcomeCycleLimit Outcome = "cycle_limit"
	// OutcomeError means the run aborted on a fatal error.
	OutcomeError Outcome = "error"
)

// IsTerminal reports whether the outcome ends the run.
func (o Outcome) IsTerminal() bool {
	return o != OutcomeContinue
}

// Status maps the outcome to the conversation status it leaves behind.
func (o Outcome) Status() status.Status {
	switch o {
	case OutcomeWaiting:
		return status.StatusWaitingReply
	case OutcomeDone:
		return status.StatusCompleted
	case OutcomeCycleLimit:
		return status.StatusCycleLimited
	case OutcomeError:
		return status.StatusFailed
	default:
		return status.StatusActive
	}
}
