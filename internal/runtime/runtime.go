// Package runtime runs the turn loop: persist the user turn, retrieve
// memories, complete, parse for a command, dispatch it, re-complete, and
// persist the final answer.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/prompt"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/ui"
)

// Failure kinds reported to the operator.
const (
	FailureExternal    = "external"
	FailureParse       = "parse"
	FailurePersistence = "persistence"
	FailureOperator    = "operator"
)

// Outcome describes one handled user turn.
type Outcome struct {
	Reply       string // final assistant text, "" when nothing was persisted
	Invocation  *command.Invocation
	ToolResult  string
	Completions int
}

// Controller is the Turn Lifecycle Controller. It is driven from a single
// goroutine.
type Controller struct {
	buffer    *session.Buffer
	memory    *memory.Assembler
	completer provider.Completer
	tools     *ToolRegistry
	preamble  []provider.Message
	settings  *config.Settings

	events  *EventBus
	state   *StateMachine
	observe *observe.Observer
	ui      ui.UI
	now     func() time.Time

	flushed bool
}

func New(buf *session.Buffer, mem *memory.Assembler, c provider.Completer, tools *ToolRegistry,
	preamble []provider.Message, settings *config.Settings, o *observe.Observer) *Controller {
	return &Controller{
		buffer:    buf,
		memory:    mem,
		completer: c,
		tools:     tools,
		preamble:  preamble,
		settings:  settings,
		events:    NewEventBus(),
		state:     NewStateMachine(),
		observe:   o,
		ui:        ui.SilentUI{},
		now:       time.Now,
	}
}

func (r *Controller) SetUI(u ui.UI) {
	if u != nil {
		r.ui = u
	}
}

func (r *Controller) Events() *EventBus          { return r.events }
func (r *Controller) State() *StateMachine       { return r.state }
func (r *Controller) Settings() *config.Settings { return r.settings }

// HandleInput runs one user turn to completion. The returned error is
// non-nil only when the turn was aborted; reported sub-operation failures
// still yield an Outcome.
func (r *Controller) HandleInput(ctx context.Context, text string) (Outcome, error) {
	ctx, span := r.observe.StartSpan(ctx, "HandleInput")
	var out Outcome
	var err error
	defer func() { observe.EndSpan(span, err) }()

	if r.flushed {
		err = errors.New("session already flushed")
		return out, err
	}

	userTurn, err := r.buffer.Append(ctx, provider.RoleUser, text)
	if err != nil {
		r.fail(FailurePersistence, "", err)
		return out, err
	}
	turnLog := r.observe.Log().With().Str("turn_id", userTurn.ID).Logger()
	r.advance(StatePersisted)
	r.events.PublishSimple(EventTurnPersisted, userTurn.ID)

	memMsgs := r.retrieve(ctx, userTurn.ID)
	r.advance(StateRetrieved)

	asm := prompt.Assembly{
		Preamble:   r.preamble,
		Memory:     memMsgs,
		Transcript: r.buffer.Transcript(),
		Priming:    prompt.Priming(r.now()),
	}
	first, err := r.complete(ctx, asm)
	if err != nil {
		r.fail(FailureExternal, userTurn.ID, fmt.Errorf("completion: %w", err))
		r.state.Abort()
		return out, err
	}
	out.Completions++
	r.advance(StateCompleted)
	r.events.PublishWithData(EventCompleted, userTurn.ID, map[string]interface{}{"chars": len(first)})

	reply := prompt.StripEcho(first)
	inv, perr := command.Parse(reply)
	var final string
	switch {
	case perr != nil:
		r.advance(StateParsedError)
		r.events.PublishWithData(EventParseError, userTurn.ID, map[string]interface{}{"error": perr.Error()})
		turnLog.Warn().Err(perr).Msg("malformed command in completion")
		r.ui.Report(FailureParse, perr)
		final = prose(reply)
		r.advance(StateFinalizing)

	case inv == nil:
		r.advance(StateParsedNoCommand)
		r.events.PublishSimple(EventParsedNone, userTurn.ID)
		final = reply
		r.advance(StateFinalizing)

	default:
		out.Invocation = inv
		r.advance(StateParsedCommand)
		r.events.PublishWithData(EventParsedCommand, userTurn.ID, map[string]interface{}{"tag": inv.Tag})

		final, err = r.dispatch(ctx, userTurn.ID, inv, asm, &out)
		if err != nil {
			return out, err
		}
	}

	if final != "" {
		if _, aerr := r.buffer.Append(ctx, provider.RoleAssistant, final); aerr != nil {
			r.fail(FailurePersistence, userTurn.ID, aerr)
			r.state.Abort()
			err = aerr
			return out, err
		}
		out.Reply = final
		r.ui.Reply(final)
	}
	r.advance(StateAwaitingInput)
	r.events.PublishWithData(EventFinalized, userTurn.ID, map[string]interface{}{"completions": out.Completions})
	r.ui.UpdateTurns(r.buffer.Len())
	turnLog.Info().Int("completions", out.Completions).Msg("turn finalized")
	return out, nil
}

// dispatch runs the parsed command and the single follow-up completion. A
// failing tool is reported and the turn finalizes with the prose that came
// before the command. A failing follow-up completion aborts the turn.
func (r *Controller) dispatch(ctx context.Context, turnID string, inv *command.Invocation, asm prompt.Assembly, out *Outcome) (string, error) {
	ctx, span := r.observe.StartSpan(ctx, "dispatch", "tag", inv.Tag)
	var err error
	defer func() { observe.EndSpan(span, err) }()

	if _, ok := r.tools.Lookup(inv.Tag); !ok {
		r.fail(FailureExternal, turnID, fmt.Errorf("%w: %s", command.ErrUnknownTag, inv.Tag))
		r.advance(StateFinalizing)
		return inv.Prose, nil
	}

	r.advance(StateDispatching)
	r.events.PublishWithData(EventDispatching, turnID, map[string]interface{}{"tag": inv.Tag})
	r.ui.UpdateStatus("running " + inv.Tag)

	result, spec, terr := r.tools.Execute(ctx, inv)
	if terr != nil {
		r.fail(FailureExternal, turnID, fmt.Errorf("%s: %w", inv.Tag, terr))
		r.advance(StateFinalizing)
		return inv.Prose, nil
	}
	out.ToolResult = result

	toolMsg := provider.Message{Role: provider.RoleSystem, Content: result}
	if spec.Ephemeral {
		asm.ToolResult = &toolMsg
	} else if _, aerr := r.buffer.Append(ctx, provider.RoleSystem, result); aerr != nil {
		r.observe.Log().Warn().Str("tag", inv.Tag).Err(aerr).Msg("tool result not persisted, using it for this prompt only")
		r.fail(FailurePersistence, turnID, aerr)
		asm.ToolResult = &toolMsg
	}
	asm.Transcript = r.buffer.Transcript()
	asm.Priming = prompt.Priming(r.now())

	second, err := r.complete(ctx, asm)
	if err != nil {
		r.fail(FailureExternal, turnID, fmt.Errorf("follow-up completion: %w", err))
		r.state.Abort()
		return "", err
	}
	out.Completions++
	r.advance(StateRecompletedFinalizing)
	r.events.PublishWithData(EventRecompleted, turnID, map[string]interface{}{"tag": inv.Tag})
	return prompt.StripEcho(second), nil
}

// retrieve returns the memory segment. Failures are reported and the turn
// continues without memories.
func (r *Controller) retrieve(ctx context.Context, turnID string) []provider.Message {
	ctx, span := r.observe.StartSpan(ctx, "retrieve")
	window := r.buffer.LastRaw(memory.WindowSize)
	res, err := r.memory.Retrieve(ctx, window, r.settings.TopK)
	observe.EndSpan(span, err)
	if err != nil {
		r.observe.Log().Warn().Str("turn_id", turnID).Err(err).Msg("retrieval failed, continuing without memories")
		r.events.PublishWithData(EventExternalFailure, turnID, map[string]interface{}{"stage": "retrieval"})
		r.ui.Report(FailureExternal, fmt.Errorf("retrieval: %w", err))
		return memory.Messages(nil)
	}
	r.events.PublishWithData(EventRetrieved, turnID, map[string]interface{}{"hits": res.Hits})
	return res.Messages
}

func (r *Controller) complete(ctx context.Context, asm prompt.Assembly) (string, error) {
	params := r.settings.Params()
	ctx, span := r.observe.StartSpan(ctx, "complete", "model", params.Model)
	r.ui.UpdateStatus("thinking")
	resp, err := r.completer.Chat(ctx, asm.Messages(), params)
	observe.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	r.observe.Log().Debug().Str("model", params.Model).Int("completion_tokens", resp.Usage.CompletionTokens).Msg("completion received")
	return resp.Content, nil
}

// advance records a state change. An illegal transition is a programming
// error in the loop; it is logged and the machine is forced forward.
func (r *Controller) advance(next TurnState) {
	if next == StateAwaitingInput {
		r.state.Abort()
		r.ui.UpdateStatus(string(next))
		return
	}
	if err := r.state.Transition(next); err != nil {
		r.observe.Log().Error().Err(err).Msg("turn state out of order")
	}
	r.ui.UpdateStatus(string(next))
}

// fail reports and publishes err.
func (r *Controller) fail(kind, turnID string, err error) {
	r.observe.Log().Error().Str("kind", kind).Str("turn_id", turnID).Err(err).Msg("turn step failed")
	r.events.PublishWithData(EventExternalFailure, turnID, map[string]interface{}{"kind": kind})
	r.ui.Report(kind, err)
}

// Undo removes the newest turn from the session buffer.
func (r *Controller) Undo() (session.Turn, error) {
	t, err := r.buffer.UndoLast()
	if err != nil {
		r.ui.Report(FailureOperator, err)
		return t, err
	}
	r.events.PublishSimple(EventTurnUndone, t.ID)
	r.ui.UpdateTurns(r.buffer.Len())
	return t, nil
}

// Set changes a tuning setting. On error the previous value is kept.
func (r *Controller) Set(name, value string) error {
	if err := r.settings.Set(name, value); err != nil {
		r.ui.Report(FailureOperator, err)
		return err
	}
	r.observe.Log().Info().Str("setting", name).Str("value", value).Msg("setting changed")
	return nil
}

// Flush indexes the session's turns. It runs once; later calls are no-ops.
func (r *Controller) Flush(ctx context.Context) (int, error) {
	if r.flushed {
		return 0, nil
	}
	r.flushed = true

	ctx, span := r.observe.StartSpan(ctx, "flush")
	r.ui.UpdateStatus("saving memories")
	n, err := r.buffer.Flush(ctx)
	observe.EndSpan(span, err)
	r.events.PublishWithData(EventSessionFlushed, "", map[string]interface{}{"indexed": n})
	if err != nil {
		r.ui.Report(FailureExternal, err)
	}
	return n, err
}

// prose is the text before the first command delimiter.
func prose(text string) string {
	if i := strings.Index(text, command.Open); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}
