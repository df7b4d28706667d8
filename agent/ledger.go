package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

const (
	// MaxCallsPerTool caps how often one tool may run within a turn.
	MaxCallsPerTool = 3

	// MaxTotalCalls caps tool executions across the whole turn.
	MaxTotalCalls = 8
)

// UsageLedger is the per-turn bookkeeping that enforces the invocation
// caps and rejects duplicate (tool, arguments) calls. It lives for one
// turn and is not safe for concurrent use; admission happens on the turn
// goroutine before execution fans out.
type UsageLedger struct {
	perTool map[string]int
	seen    map[string]bool
	total   int
}

func NewUsageLedger() *UsageLedger {
	return &UsageLedger{
		perTool: make(map[string]int),
		seen:    make(map[string]bool),
	}
}

// Admit checks a proposed call against the caps and the duplicate set and,
// when admitted, records it. A rejection carries the reason.
func (l *UsageLedger) Admit(name string, args map[string]interface{}) error {
	if l.total >= MaxTotalCalls {
		return newError(KindPolicyRejection,
			fmt.Sprintf("total tool call budget of %d exhausted", MaxTotalCalls), nil)
	}
	if l.perTool[name] >= MaxCallsPerTool {
		return newError(KindPolicyRejection,
			fmt.Sprintf("%s already called %d times this turn", name, MaxCallsPerTool), nil)
	}

	key := callKey(name, args)
	if l.seen[key] {
		return newError(KindPolicyRejection,
			fmt.Sprintf("duplicate call to %s with identical arguments", name), nil)
	}

	l.seen[key] = true
	l.perTool[name]++
	l.total++
	return nil
}

// Total returns the number of admitted calls.
func (l *UsageLedger) Total() int {
	return l.total
}

// callKey hashes a (tool, arguments) pair. Marshaling sorts map keys, so
// argument order does not affect the key.
func callKey(name string, args map[string]interface{}) string {
	canonical, err := json.Marshal(args)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(append([]byte(name+"\n"), canonical...))
	return fmt.Sprintf("%x", sum)
}
