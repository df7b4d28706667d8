// Package agent drives one conversation turn through a bounded
// decide/select/execute/evaluate loop and streams a grounded answer.
package agent

import (
	"time"

	"github.com/psi-gfa/opsassist/llms"
	"github.com/psi-gfa/opsassist/tools"
)

// ============================================================================
// TURN INPUT
// ============================================================================

// File is one uploaded attachment available to the turn.
type File struct {
	Name    string
	Type    string // "image" or "document"
	Preview string
	Text    string // full extracted text for documents
}

// Turn is one user question plus the context it arrives with. The agent
// owns the turn exclusively until its answer is emitted.
type Turn struct {
	ID      string // assigned on Run when empty
	Query   string
	History []llms.Message
	Files   []File
}

// ============================================================================
// EVENTS
// ============================================================================

const (
	EventToken         = "streamed_token"
	EventStepStarted   = "step_started"
	EventStepFinished  = "step_finished"
	EventClarification = "clarification_prompt"
	EventCanceled      = "canceled"
	EventError         = "error"
)

// Event is one user-visible control signal. The event channel closes when
// the turn is over.
type Event struct {
	Type string
	Step string // for step_started / step_finished
	Text string // token text, step summary or clarification message
	Err  error  // for error events
}

// ============================================================================
// LLM DECISION SHAPES
// ============================================================================

// Decision is the model's answer to "do we need tools for this query".
type Decision struct {
	NeedsTools bool   `json:"needs_tools"`
	Reasoning  string `json:"reasoning"`
}

// ToolSelection is one tool call proposed by the model.
type ToolSelection struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
	Reasoning string                 `json:"reasoning"`
}

// selectionList is the envelope the model replies with in the select step.
type selectionList struct {
	Tools []ToolSelection `json:"tools"`
}

// Verdict is the model's judgement of the gathered evidence.
type Verdict struct {
	Adequate   bool   `json:"adequate"`
	Reasoning  string `json:"reasoning"`
	Refinement string `json:"refinement"`
}

// ============================================================================
// EXECUTION LOG
// ============================================================================

// Invocation is one executed tool call with its frozen arguments and
// outcome. Invocations are appended to the turn's execution log in
// submission order.
type Invocation struct {
	ToolName  string
	Arguments map[string]interface{}
	Reasoning string
	Timestamp time.Time
	Result    tools.Result
	Err       error
}

// RejectedSelection records a proposed call that validation dropped.
type RejectedSelection struct {
	ToolName string
	Reason   string
}
