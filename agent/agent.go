package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/llms"
	"github.com/psi-gfa/opsassist/tools"
)

// ============================================================================
// AGENT - TURN ORCHESTRATION
// ============================================================================

// Agent runs one turn at a time through the state machine
//
//	DECIDE_TOOLS -> SELECT_TOOLS -> EXECUTE -> EVALUATE
//	                     ^                        |
//	                     +-------- REFINE --------+
//
// ending in SYNTHESIZE, ANSWER_DIRECT or ASK_USER. Model replies are
// untrusted input: every tool selection is validated against the registry,
// the declared schema and the usage ledger before dispatch.
type Agent struct {
	provider  llms.Provider
	registry  *tools.Registry
	validator *tools.Validator
	session   config.SessionConfig
	now       func() time.Time
}

func New(provider llms.Provider, registry *tools.Registry, session config.SessionConfig) *Agent {
	session.SetDefaults()
	return &Agent{
		provider:  provider,
		registry:  registry,
		validator: tools.NewValidator(),
		session:   session,
		now:       time.Now,
	}
}

// Run executes one turn. Events stream on the returned channel, which is
// closed when the turn is over. Cancel the context to abort the turn at
// the next suspension point.
func (a *Agent) Run(ctx context.Context, turn Turn) <-chan Event {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	events := make(chan Event, 100)
	go func() {
		defer close(events)
		slog.Debug("turn started", "turn_id", turn.ID)
		a.run(ctx, turn, events)
	}()
	return events
}

// attempt records one pass through the loop for the clarification message.
type attempt struct {
	toolNames []string
	reasoning string
}

func (a *Agent) run(ctx context.Context, turn Turn, events chan<- Event) {
	systemContext := a.systemContext()
	historyContext := ConversationContext(turn.History, a.session.MaxHistoryMessages)

	if !a.session.Enabled() {
		a.answerDirect(ctx, turn, systemContext, historyContext, events)
		return
	}
	if a.registry.Len() == 0 {
		events <- Event{Type: EventError, Err: fmt.Errorf("tools are enabled but no tools are registered")}
		return
	}

	decision, err := a.decideTools(ctx, turn, systemContext, historyContext, events)
	if err != nil {
		a.fail(ctx, events, err)
		return
	}
	if !decision.NeedsTools {
		slog.Info("answering without tools", "reasoning", decision.Reasoning)
		a.answerDirect(ctx, turn, systemContext, historyContext, events)
		return
	}

	toolsDetailed := ToolsDetailed(a.registry)
	ledger := NewUsageLedger()
	var executionLog []Invocation
	var attempts []attempt
	refinement := ""
	iteration := 0

	// The iteration counter only advances when tools actually ran, so a
	// pass wiped out by validation does not consume an attempt. Bound the
	// raw pass count separately so a model that keeps proposing invalid
	// calls cannot loop forever.
	for pass := 0; pass < 2*a.session.MaxIterations; pass++ {
		if a.canceled(ctx, events) {
			return
		}

		selections, err := a.selectTools(ctx, turn, systemContext, historyContext, toolsDetailed,
			RefinementContext(pass, refinement), events)
		if err != nil {
			a.fail(ctx, events, err)
			return
		}
		accepted := a.validateSelections(selections, ledger)

		invocations := a.execute(ctx, accepted, events)
		executionLog = append(executionLog, invocations...)
		if len(invocations) > 0 {
			iteration++
		}

		// Evaluation sees every result gathered this turn, not just the
		// latest pass.
		verdict := a.evaluate(ctx, turn, systemContext, executionLog, events)
		attempts = append(attempts, attempt{toolNames: selectionNames(selections), reasoning: verdict.Reasoning})

		if verdict.Adequate {
			a.synthesize(ctx, turn, systemContext, executionLog, events)
			return
		}
		if iteration >= a.session.MaxIterations {
			break
		}
		refinement = verdict.Refinement
		if refinement == "" {
			refinement = "rephrase and retry"
		}
	}

	a.askUser(attempts, events)
}

// ============================================================================
// DECIDE_TOOLS
// ============================================================================

func (a *Agent) decideTools(ctx context.Context, turn Turn, systemContext, historyContext string, events chan<- Event) (Decision, error) {
	events <- Event{Type: EventStepStarted, Step: "decide_tools"}

	prompt := promptDecideTools(systemContext, turn.Query, ToolsSummary(a.registry),
		historyContext, FilesSummary(turn.Files))

	var decision Decision
	if err := a.generateJSON(ctx, prompt, &decision); err != nil {
		if kindOf(err) != KindLLMParse {
			return Decision{}, err
		}
		// Tool use is the safe default when the model will not commit.
		slog.Warn("decide_tools reply unparsable, defaulting to tool use", "error", err)
		decision = Decision{NeedsTools: true, Reasoning: "defaulted after unparsable reply"}
	}

	events <- Event{Type: EventStepFinished, Step: "decide_tools",
		Text: fmt.Sprintf("needs_tools=%t", decision.NeedsTools)}
	return decision, nil
}

// ============================================================================
// SELECT_TOOLS
// ============================================================================

func (a *Agent) selectTools(ctx context.Context, turn Turn, systemContext, historyContext, toolsDetailed, refinementContext string, events chan<- Event) ([]ToolSelection, error) {
	events <- Event{Type: EventStepStarted, Step: "select_tools"}

	prompt := promptSelectTools(systemContext, turn.Query, toolsDetailed, historyContext, refinementContext)

	var list selectionList
	if err := a.generateJSON(ctx, prompt, &list); err != nil {
		if kindOf(err) != KindLLMParse {
			return nil, err
		}
		// An unparsable selection behaves like an empty one; evaluation
		// will push the turn into refinement.
		slog.Warn("select_tools reply unparsable", "error", err)
		list.Tools = nil
	}

	events <- Event{Type: EventStepFinished, Step: "select_tools",
		Text: fmt.Sprintf("%d tool call(s) proposed", len(list.Tools))}
	return list.Tools, nil
}

// validateSelections drops selections the registry, the schema or the
// ledger refuse. Rejections are logged with their reason; survivors are
// already recorded in the ledger.
func (a *Agent) validateSelections(selections []ToolSelection, ledger *UsageLedger) []ToolSelection {
	var accepted []ToolSelection
	for _, sel := range selections {
		if reason := a.rejectSelection(sel, ledger); reason != "" {
			slog.Warn("tool selection rejected", "tool", sel.ToolName, "reason", reason)
			continue
		}
		accepted = append(accepted, sel)
	}
	return accepted
}

func (a *Agent) rejectSelection(sel ToolSelection, ledger *UsageLedger) string {
	info, ok := a.registry.Get(sel.ToolName)
	if !ok {
		return fmt.Sprintf("unknown tool %q", sel.ToolName)
	}
	if err := a.validator.ValidateArgs(info, sel.Arguments); err != nil {
		return newError(KindSchemaViolation, "arguments rejected", err).Error()
	}
	if err := ledger.Admit(sel.ToolName, sel.Arguments); err != nil {
		return err.Error()
	}
	return ""
}

// ============================================================================
// EXECUTE
// ============================================================================

// execute runs the accepted selections concurrently. Results land in the
// slice slot of their selection, so the execution log keeps submission
// order and the prompts built from it stay deterministic.
func (a *Agent) execute(ctx context.Context, selections []ToolSelection, events chan<- Event) []Invocation {
	if len(selections) == 0 {
		return nil
	}
	events <- Event{Type: EventStepStarted, Step: "execute"}

	invocations := make([]Invocation, len(selections))
	var g errgroup.Group
	for i, sel := range selections {
		g.Go(func() error {
			inv := Invocation{
				ToolName:  sel.ToolName,
				Arguments: sel.Arguments,
				Reasoning: sel.Reasoning,
				Timestamp: a.now(),
			}
			result, err := a.registry.Execute(ctx, sel.ToolName, sel.Arguments)
			if err != nil {
				err = newError(KindToolTransport, sel.ToolName+" failed", err)
			}
			inv.Result = result
			inv.Err = err
			invocations[i] = inv
			return nil
		})
	}
	g.Wait()

	succeeded := 0
	for _, inv := range invocations {
		if inv.Err == nil && inv.Result.Success {
			succeeded++
		} else {
			slog.Warn("tool call failed", "tool", inv.ToolName, "error", inv.Result.Error)
		}
	}
	events <- Event{Type: EventStepFinished, Step: "execute",
		Text: fmt.Sprintf("%d/%d tool call(s) succeeded", succeeded, len(invocations))}
	return invocations
}

// ============================================================================
// EVALUATE
// ============================================================================

func (a *Agent) evaluate(ctx context.Context, turn Turn, systemContext string, invocations []Invocation, events chan<- Event) Verdict {
	events <- Event{Type: EventStepStarted, Step: "evaluate"}
	verdict := a.evaluateVerdict(ctx, turn, systemContext, invocations)
	events <- Event{Type: EventStepFinished, Step: "evaluate",
		Text: fmt.Sprintf("adequate=%t", verdict.Adequate)}
	return verdict
}

func (a *Agent) evaluateVerdict(ctx context.Context, turn Turn, systemContext string, invocations []Invocation) Verdict {
	if len(invocations) == 0 {
		return Verdict{
			Adequate:   false,
			Reasoning:  "no tool calls were executed",
			Refinement: "rephrase and retry",
		}
	}

	var failures []string
	succeeded := false
	for _, inv := range invocations {
		if inv.Err == nil && inv.Result.Success {
			succeeded = true
		} else {
			failures = append(failures, fmt.Sprintf("- %s: %s", inv.ToolName, inv.Result.Error))
		}
	}
	if !succeeded {
		return Verdict{
			Adequate:   false,
			Reasoning:  "all tool calls failed",
			Refinement: "All tool calls failed, try different tools or parameters:\n" + strings.Join(failures, "\n"),
		}
	}

	prompt := promptEvaluateResults(systemContext, turn.Query,
		resultsSummary(invocations), toolCallsText(invocations))

	var verdict Verdict
	if err := a.generateJSON(ctx, prompt, &verdict); err != nil {
		// A broken evaluator must not end the turn.
		slog.Warn("evaluation failed, treating results as inadequate", "error", err)
		return Verdict{Adequate: false, Reasoning: "evaluation failed", Refinement: "rephrase and retry"}
	}
	if !verdict.Adequate && verdict.Refinement == "" {
		verdict.Refinement = "rephrase and retry"
	}
	return verdict
}

const maxResultSummaryChars = 10000

func resultsSummary(invocations []Invocation) string {
	var parts []string
	for _, inv := range invocations {
		if inv.Err == nil && inv.Result.Success {
			parts = append(parts, fmt.Sprintf("Tool: %s\nData: %s",
				inv.ToolName, truncate(inv.Result.Content, maxResultSummaryChars)))
		} else {
			parts = append(parts, fmt.Sprintf("Tool: %s\nError: %s", inv.ToolName, inv.Result.Error))
		}
	}
	return strings.Join(parts, "\n\n")
}

func toolCallsText(invocations []Invocation) string {
	var lines []string
	for _, inv := range invocations {
		args, err := json.Marshal(inv.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		lines = append(lines, fmt.Sprintf("- %s with arguments: %s", inv.ToolName, args))
	}
	return strings.Join(lines, "\n")
}

// ============================================================================
// SYNTHESIZE / ANSWER_DIRECT / ASK_USER
// ============================================================================

func (a *Agent) synthesize(ctx context.Context, turn Turn, systemContext string, executionLog []Invocation, events chan<- Event) {
	events <- Event{Type: EventStepStarted, Step: "synthesize"}

	contextText, referencesText, imagesText := buildAnswerContext(turn.Files, executionLog)
	prompt := promptAnswerWithTools(systemContext, turn.Query, contextText, referencesText, imagesText)

	if err := a.streamAnswer(ctx, prompt, events); err != nil {
		a.fail(ctx, events, err)
		return
	}
	events <- Event{Type: EventStepFinished, Step: "synthesize"}
}

func (a *Agent) answerDirect(ctx context.Context, turn Turn, systemContext, historyContext string, events chan<- Event) {
	events <- Event{Type: EventStepStarted, Step: "answer_direct"}

	prompt := promptAnswerNoTools(systemContext, turn.Query, historyContext, FilesFull(turn.Files))

	if err := a.streamAnswer(ctx, prompt, events); err != nil {
		a.fail(ctx, events, err)
		return
	}
	events <- Event{Type: EventStepFinished, Step: "answer_direct"}
}

func (a *Agent) askUser(attempts []attempt, events chan<- Event) {
	var tried []string
	for i, att := range attempts {
		names := strings.Join(att.toolNames, ", ")
		if names == "" {
			names = "no tools selected"
		}
		tried = append(tried, fmt.Sprintf("%d. %s (%s)", i+1, names, att.reasoning))
	}

	message := fmt.Sprintf(`I could not find a confident answer to your question.

**What I tried:**
%s

**How would you like to continue?**
1. Give me more specific details (date range, facility, system) and I will search again.
2. I can answer from general knowledge, without PSI operational data.
3. Tell me how to redirect the search.`, strings.Join(tried, "\n"))

	events <- Event{Type: EventClarification, Text: message}
}

// ============================================================================
// MODEL CALL HELPERS
// ============================================================================

func (a *Agent) opts(jsonFormat bool) llms.Options {
	return llms.Options{
		Model:       a.session.Model,
		Temperature: a.session.Temperature,
		JSONFormat:  jsonFormat,
	}
}

// generateJSON issues a prompt expecting a JSON object, retrying once. A
// parse failure retries with a stricter prompt; a service failure retries
// as-is. The error kind tells the caller which default applies.
func (a *Agent) generateJSON(ctx context.Context, prompt string, out interface{}) error {
	var lastErr error
	parseFailed := false

	for try := 0; try < 2; try++ {
		p := prompt
		if parseFailed {
			p += strictJSONReminder
		}

		raw, err := a.provider.Generate(ctx, []llms.Message{{Role: llms.RoleUser, Content: p}}, a.opts(true))
		if err != nil {
			lastErr = newError(KindLLMService, "model call failed", err)
			continue
		}
		if err := json.Unmarshal([]byte(extractJSON(raw)), out); err != nil {
			lastErr = newError(KindLLMParse, "model reply is not valid JSON", err)
			parseFailed = true
			continue
		}
		return nil
	}
	return lastErr
}

// streamAnswer streams one final-answer prompt to the event channel. A
// failure before the first token retries once; a mid-stream failure is
// surfaced because the partial answer cannot be retracted.
func (a *Agent) streamAnswer(ctx context.Context, prompt string, events chan<- Event) error {
	var lastErr error
	for try := 0; try < 2; try++ {
		stream, err := a.provider.GenerateStreaming(ctx,
			[]llms.Message{{Role: llms.RoleUser, Content: prompt}}, a.opts(false))
		if err != nil {
			lastErr = err
			continue
		}

		emitted := false
		var streamErr error
		for chunk := range stream {
			switch chunk.Type {
			case "text":
				if chunk.Text != "" {
					emitted = true
					events <- Event{Type: EventToken, Text: chunk.Text}
				}
			case "error":
				streamErr = chunk.Error
			}
		}
		if streamErr == nil {
			return nil
		}
		lastErr = streamErr
		if emitted {
			break
		}
	}
	return newError(KindLLMService, "answer generation failed", lastErr)
}

// extractJSON tolerates markdown fences and prose around the object the
// model was asked for.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func (a *Agent) systemContext() string {
	if a.session.SystemPromptTemplate != "" {
		return strings.ReplaceAll(a.session.SystemPromptTemplate, "{mcp_tools_list}", ToolsSummary(a.registry))
	}
	return SystemContext(a.now())
}

func (a *Agent) canceled(ctx context.Context, events chan<- Event) bool {
	select {
	case <-ctx.Done():
		events <- Event{Type: EventCanceled, Text: ctx.Err().Error()}
		return true
	default:
		return false
	}
}

// fail reports a fatal turn error, folding a cancellation into the
// canceled signal instead.
func (a *Agent) fail(ctx context.Context, events chan<- Event, err error) {
	if ctx.Err() != nil {
		events <- Event{Type: EventCanceled, Text: ctx.Err().Error()}
		return
	}
	events <- Event{Type: EventError, Err: err}
}

func selectionNames(selections []ToolSelection) []string {
	names := make([]string, 0, len(selections))
	for _, sel := range selections {
		names = append(names, sel.ToolName)
	}
	return names
}
