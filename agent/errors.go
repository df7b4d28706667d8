package agent

import "fmt"

// Kind classifies agent errors by the policy applied to them.
type Kind string

const (
	// KindSchemaViolation marks a tool selection whose arguments do not
	// satisfy the declared input schema. The selection is dropped.
	KindSchemaViolation Kind = "schema_violation"

	// KindPolicyRejection marks a selection refused by the usage ledger,
	// either a duplicate call or one over a cap. The selection is dropped.
	KindPolicyRejection Kind = "policy_rejection"

	// KindToolTransport marks a failed tool execution. The failure is fed
	// into evaluation as "no result".
	KindToolTransport Kind = "tool_transport"

	// KindLLMParse marks a model reply that is not valid JSON after the
	// retry. Callers fall back to a safe default.
	KindLLMParse Kind = "llm_parse"

	// KindLLMService marks a model call that failed after the retry. This
	// terminates the turn.
	KindLLMService Kind = "llm_service"
)

// Error is an agent error tagged with its handling policy.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// kindOf returns the Kind of an agent error, or "" for other errors.
func kindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
