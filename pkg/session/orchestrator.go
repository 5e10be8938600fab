package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"youwin-client/internal/entity"
	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/chat"
	"youwin-client/pkg/connection"
	"youwin-client/pkg/dispatcher"
	"youwin-client/pkg/events"
	"youwin-client/pkg/protocol"
	"youwin-client/pkg/reconciler"

	"github.com/fasthttp/websocket"
)

const logModule = "Session"

// Messages shown to the user. They mirror the web client wording.
const (
	MsgEmptyReference = "Please enter a YouTube URL"
	MsgProtocolError  = "Error processing server response"
	MsgTransportError = "WebSocket connection error. Please try again later."
)

var (
	ErrEmptyReference = errors.New("reference is empty")
	ErrEmptyQuestion  = errors.New("question is empty")
	ErrChatNotReady   = errors.New("chat needs a summary for the current reference")
)

// Event types announced through the Notifier.
const (
	EventPhaseChanged      = "PHASE_CHANGED"
	EventConnectionChanged = "CONNECTION_STATE_CHANGED"
	EventChatAppended      = "CHAT_MESSAGE_APPENDED"
	EventResultReconciled  = "RESULT_RECONCILED"
	EventSessionError      = "SESSION_ERROR"
	EventCacheCleared      = "CACHE_CLEARED"
)

// Connector is the connection manager as seen by the orchestrator.
type Connector interface {
	Open(sink connection.EventSink) connection.Handle
	Send(h connection.Handle, payload []byte) error
	Close(h connection.Handle, code int, reason string)
}

type CacheStore interface {
	reconciler.CacheWriter
	Get(t entity.Table, reference string) (entity.CacheEntry, bool)
	Clear(ctx context.Context, tables ...entity.Table)
	CurrentReference() string
	SetCurrentReference(ctx context.Context, reference string)
}

type Notifier interface {
	Notify(ctx context.Context, ev events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, events.Event) {}

// Orchestrator coordinates cache, connection, dispatcher, reconciler and chat.
// It is not safe for concurrent use: every method, HandleEvent included, must
// run on one goroutine, which the session service provides.
type Orchestrator struct {
	conn       Connector
	sink       connection.EventSink
	cache      CacheStore
	reconciler *reconciler.Reconciler
	chat       *chat.Session
	dispatcher *dispatcher.Dispatcher
	notifier   Notifier
	logger     logger.ILogger

	handle    connection.Handle
	connState connection.State
	reference string
	phase     Phase
	display   reconciler.Display
	errCount  int
}

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New wires an orchestrator. sink must route transport events back into
// HandleEvent on the orchestrator's goroutine.
func New(conn Connector, sink connection.EventSink, cache CacheStore, log logger.ILogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		conn:       conn,
		sink:       sink,
		cache:      cache,
		reconciler: reconciler.New(cache, log),
		chat:       chat.NewSession(),
		notifier:   nopNotifier{},
		logger:     log,
		connState:  connection.StateIdle,
		phase:      PhaseIdle,
	}
	o.dispatcher = dispatcher.New(o, log)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Restore shows whatever the cache holds for the last used reference.
func (o *Orchestrator) Restore(ctx context.Context) {
	ref := o.cache.CurrentReference()
	if ref == "" {
		return
	}
	o.reference = ref

	if t, ok := o.cache.Get(entity.TableTranscripts, ref); ok {
		o.display.Transcript = t.Content
		o.display.Error = ""
	}
	if s, ok := o.cache.Get(entity.TableSummaries, ref); ok {
		o.display.Summary = s.Content
		o.display.ChatReady = true
	}
	if o.display.Transcript != "" || o.display.Summary != "" {
		o.transition(ctx, PhaseReady)
	}
	o.logger.Info(logModule, "Restored session", map[string]interface{}{
		"reference":  ref,
		"transcript": o.display.Transcript != "",
		"summary":    o.display.Summary != "",
	})
}

// Submit shows cached results when both artifacts exist; otherwise it opens a
// fresh connection (superseding any live one) and sends the reference.
// The reference is used verbatim as the cache key.
func (o *Orchestrator) Submit(ctx context.Context, reference string) (cacheHit bool, err error) {
	o.display.Error = ""

	if strings.TrimSpace(reference) == "" {
		o.fail(ctx, MsgEmptyReference, "validation")
		return false, ErrEmptyReference
	}

	o.reference = reference
	o.cache.SetCurrentReference(ctx, reference)

	transcript, hasTranscript := o.cache.Get(entity.TableTranscripts, reference)
	summary, hasSummary := o.cache.Get(entity.TableSummaries, reference)
	if hasTranscript && hasSummary {
		o.display = reconciler.Display{
			Transcript: transcript.Content,
			Summary:    summary.Content,
			ChatReady:  true,
		}
		o.logger.Info(logModule, "Using cached data", map[string]interface{}{"reference": reference})
		o.transition(ctx, PhaseReady)
		return true, nil
	}

	// A partial hit still resubmits the whole reference.
	o.display = reconciler.Display{}
	o.transition(ctx, PhaseSubmitting)

	o.openConnection(ctx)
	if err := o.conn.Send(o.handle, protocol.EncodeSubmit(reference)); err != nil {
		o.fail(ctx, MsgTransportError, "transport")
		return false, fmt.Errorf("send reference: %w", err)
	}
	return false, nil
}

// Ask sends a follow-up question with the displayed transcript as context.
// An open or still connecting connection is reused; otherwise one is opened.
func (o *Orchestrator) Ask(ctx context.Context, question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	if !o.display.ChatReady {
		return ErrChatNotReady
	}

	payload, err := o.chat.Ask(question, o.display.Transcript)
	if err != nil {
		return err
	}
	o.notifier.Notify(ctx, events.New(EventChatAppended, map[string]interface{}{
		"origin": string(entity.OriginUser),
		"text":   question,
		"index":  o.chat.Len() - 1,
	}))

	if !o.connState.Live() {
		o.openConnection(ctx)
	}
	if err := o.conn.Send(o.handle, payload); err != nil {
		o.fail(ctx, MsgTransportError, "transport")
		return fmt.Errorf("send question: %w", err)
	}
	return nil
}

// ClearCache empties both cache tables and the display. Chat history stays.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	o.cache.Clear(ctx)
	o.display = reconciler.Display{}
	if !o.phase.Processing() {
		o.transition(ctx, PhaseIdle)
	}
	o.logger.Info(logModule, "Cache cleared", nil)
	o.notifier.Notify(ctx, events.New(EventCacheCleared, nil))
}

// ResetChat discards the chat history.
func (o *Orchestrator) ResetChat() {
	o.chat.Reset()
}

// Shutdown closes the live connection, if any, with a normal closure.
func (o *Orchestrator) Shutdown() {
	if !o.handle.IsZero() {
		o.conn.Close(o.handle, websocket.CloseNormalClosure, "Client shutting down")
	}
}

func (o *Orchestrator) openConnection(ctx context.Context) {
	o.handle = o.conn.Open(o.sink)
	o.setConnState(ctx, connection.StateConnecting)
}

// HandleEvent applies one transport event. Lifecycle events of a superseded
// handle are ignored; frames are always dispatched against the current
// reference, so a late result can land on a newer submission.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev connection.Event) {
	if ev.Kind == connection.EventMessage {
		o.dispatcher.Dispatch(ctx, ev.Payload)
		return
	}

	if ev.Handle != o.handle {
		o.logger.Debug(logModule, "Ignoring event for superseded connection", map[string]interface{}{
			"handle": ev.Handle.String(),
			"kind":   ev.Kind.String(),
		})
		return
	}

	switch ev.Kind {
	case connection.EventOpened:
		o.setConnState(ctx, connection.StateOpen)
		if o.phase == PhaseSubmitting {
			o.transition(ctx, PhaseAwaitingResult)
		}
	case connection.EventClosed:
		o.setConnState(ctx, connection.StateClosed)
		if o.phase.Processing() {
			o.fail(ctx, MsgTransportError, "transport")
		}
	case connection.EventFailed:
		o.setConnState(ctx, connection.StateFailed)
		details := map[string]interface{}{}
		if ev.Err != nil {
			details["error"] = ev.Err.Error()
		}
		o.logger.Error(logModule, "Transport error", details)
		o.fail(ctx, MsgTransportError, "transport")
	}
}

// OnChatResponse implements dispatcher.Routes.
func (o *Orchestrator) OnChatResponse(ctx context.Context, r protocol.ChatResponse) {
	if r.Message == "" {
		return
	}
	o.chat.Receive(r.Message)
	o.notifier.Notify(ctx, events.New(EventChatAppended, map[string]interface{}{
		"origin": string(entity.OriginAssistant),
		"text":   r.Message,
		"index":  o.chat.Len() - 1,
	}))
}

// OnResult implements dispatcher.Routes.
func (o *Orchestrator) OnResult(ctx context.Context, r protocol.ProcessingResult) {
	out := o.reconciler.Apply(ctx, o.reference, r, &o.display)
	if !out.Success {
		o.errCount++
		o.transition(ctx, PhaseErrored)
		o.notifier.Notify(ctx, events.New(EventSessionError, map[string]interface{}{
			"category":  "application",
			"message":   out.Message,
			"reference": o.reference,
		}))
		return
	}

	o.transition(ctx, PhaseReady)
	o.notifier.Notify(ctx, events.New(EventResultReconciled, map[string]interface{}{
		"reference":  o.reference,
		"transcript": out.TranscriptStored,
		"summary":    out.SummaryStored,
	}))
}

// OnMalformed implements dispatcher.Routes.
func (o *Orchestrator) OnMalformed(ctx context.Context, _ protocol.Malformed) {
	o.fail(ctx, MsgProtocolError, "protocol")
}

func (o *Orchestrator) fail(ctx context.Context, message, category string) {
	o.display.Error = message
	o.errCount++
	o.transition(ctx, PhaseErrored)
	o.notifier.Notify(ctx, events.New(EventSessionError, map[string]interface{}{
		"category":  category,
		"message":   message,
		"reference": o.reference,
	}))
}

func (o *Orchestrator) transition(ctx context.Context, to Phase) {
	from := o.phase
	if !from.CanTransition(to) {
		o.logger.Warn(logModule, "Rejected phase transition", map[string]interface{}{"from": from.String(), "to": to.String()})
		return
	}
	o.phase = to
	if from == to {
		return
	}
	o.logger.Debug(logModule, "Phase changed", map[string]interface{}{"from": from.String(), "to": to.String()})
	o.notifier.Notify(ctx, events.New(EventPhaseChanged, map[string]interface{}{
		"from":       from.String(),
		"to":         to.String(),
		"processing": to.Processing(),
		"reference":  o.reference,
	}))
}

func (o *Orchestrator) setConnState(ctx context.Context, s connection.State) {
	if o.connState == s {
		return
	}
	from := o.connState
	o.connState = s
	o.notifier.Notify(ctx, events.New(EventConnectionChanged, map[string]interface{}{
		"from":   from.String(),
		"to":     s.String(),
		"handle": o.handle.String(),
	}))
}

func (o *Orchestrator) View() View {
	return View{
		Reference:  o.reference,
		Phase:      o.phase,
		Processing: o.phase.Processing(),
		Transcript: o.display.Transcript,
		Summary:    o.display.Summary,
		Error:      o.display.Error,
		ErrorCount: o.errCount,
		ChatReady:  o.display.ChatReady,
		Connection: o.connState,
		History:    o.chat.History(),
	}
}
