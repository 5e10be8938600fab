package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"youwin-client/internal/entity"
	"youwin-client/internal/pkg/logger"
	"youwin-client/internal/repository/memory"
	"youwin-client/pkg/cachestore"
	"youwin-client/pkg/connection"
	"youwin-client/pkg/events"
	"youwin-client/pkg/reconciler"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	refA = "https://www.youtube.com/watch?v=aaa"
	refB = "https://www.youtube.com/watch?v=bbb"
)

type sentFrame struct {
	handle  connection.Handle
	payload string
}

type closeCall struct {
	handle connection.Handle
	code   int
	reason string
}

// fakeConnector records calls; tests feed transport events by hand.
type fakeConnector struct {
	opened  []connection.Handle
	sent    []sentFrame
	closed  []closeCall
	sendErr error
}

func (f *fakeConnector) Open(connection.EventSink) connection.Handle {
	h := connection.Handle{ID: uuid.New()}
	f.opened = append(f.opened, h)
	return h
}

func (f *fakeConnector) Send(h connection.Handle, payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentFrame{h, string(payload)})
	return nil
}

func (f *fakeConnector) Close(h connection.Handle, code int, reason string) {
	f.closed = append(f.closed, closeCall{h, code, reason})
}

func (f *fakeConnector) last() connection.Handle {
	return f.opened[len(f.opened)-1]
}

type recordingNotifier struct {
	events []events.Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev events.Event) {
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) ofType(eventType string) []events.Event {
	var out []events.Event
	for _, ev := range n.events {
		if ev.EventType() == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	ctx      context.Context
	conn     *fakeConnector
	store    *cachestore.Store
	notifier *recordingNotifier
	o        *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:      context.Background(),
		conn:     &fakeConnector{},
		store:    cachestore.New(memory.NewKVRepository(), "youwin_", logger.NewNopLogger()),
		notifier: &recordingNotifier{},
	}
	h.o = New(h.conn, func(connection.Event) {}, h.store, logger.NewNopLogger(), WithNotifier(h.notifier))
	return h
}

func (h *harness) opened() {
	h.o.HandleEvent(h.ctx, connection.Event{Handle: h.conn.last(), Kind: connection.EventOpened})
}

func (h *harness) frame(raw string) {
	h.o.HandleEvent(h.ctx, connection.Event{Handle: h.conn.last(), Kind: connection.EventMessage, Payload: []byte(raw)})
}

func (h *harness) submitAndComplete(t *testing.T, ref, transcript, summary string) {
	t.Helper()
	_, err := h.o.Submit(h.ctx, ref)
	require.NoError(t, err)
	h.opened()
	h.frame(`{"status":"connected"}`)
	raw, err := json.Marshal(map[string]string{"status": "success", "transcript": transcript, "summary": summary})
	require.NoError(t, err)
	h.frame(string(raw))
}

func TestSubmitFullFlow(t *testing.T) {
	h := newHarness(t)

	hit, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	assert.False(t, hit)

	v := h.o.View()
	assert.Equal(t, PhaseSubmitting, v.Phase)
	assert.True(t, v.Processing)
	assert.Equal(t, connection.StateConnecting, v.Connection)
	require.Len(t, h.conn.opened, 1)
	assert.Equal(t, []sentFrame{{h.conn.last(), refA}}, h.conn.sent, "reference is sent bare")
	assert.Equal(t, refA, h.store.CurrentReference())

	h.opened()
	assert.Equal(t, PhaseAwaitingResult, h.o.View().Phase)
	assert.True(t, h.o.View().Connected())

	h.frame(`{"status":"connected","message":"hello"}`)
	assert.Equal(t, PhaseAwaitingResult, h.o.View().Phase, "ack changes nothing")

	h.frame(`{"status":"success","transcript":"T","summary":"S"}`)

	v = h.o.View()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.False(t, v.Processing)
	assert.Equal(t, "T", v.Transcript)
	assert.Equal(t, "S", v.Summary)
	assert.True(t, v.ChatReady)
	assert.Empty(t, v.Error)

	tr, ok := h.store.Get(entity.TableTranscripts, refA)
	require.True(t, ok)
	assert.Equal(t, "T", tr.Content)
	sm, ok := h.store.Get(entity.TableSummaries, refA)
	require.True(t, ok)
	assert.Equal(t, "S", sm.Content)

	var phases []string
	for _, ev := range h.notifier.ofType(EventPhaseChanged) {
		phases = append(phases, ev.Payload()["to"].(string))
	}
	assert.Equal(t, []string{"submitting", "awaiting_result", "ready"}, phases)
	assert.Len(t, h.notifier.ofType(EventResultReconciled), 1)
}

func TestSubmitCacheHitSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.store.Put(h.ctx, entity.TableTranscripts, refA, "cached T")
	h.store.Put(h.ctx, entity.TableSummaries, refA, "cached S")

	hit, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	assert.True(t, hit)

	v := h.o.View()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.False(t, v.Processing)
	assert.Equal(t, "cached T", v.Transcript)
	assert.Equal(t, "cached S", v.Summary)
	assert.True(t, v.ChatReady)
	assert.Equal(t, refA, h.store.CurrentReference())

	hit, err = h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, v, h.o.View(), "a repeated cache hit leaves the view unchanged")

	assert.Empty(t, h.conn.opened)
	assert.Empty(t, h.conn.sent)
}

func TestSubmitPartialHitResubmits(t *testing.T) {
	h := newHarness(t)
	h.store.Put(h.ctx, entity.TableTranscripts, refA, "cached T")

	hit, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	assert.False(t, hit)

	require.Len(t, h.conn.sent, 1)
	v := h.o.View()
	assert.Equal(t, PhaseSubmitting, v.Phase)
	assert.Empty(t, v.Transcript, "display is blanked before resubmitting")
	assert.False(t, v.ChatReady)
}

func TestSubmitBlankReference(t *testing.T) {
	h := newHarness(t)
	h.store.SetCurrentReference(h.ctx, refB)

	for _, ref := range []string{"", "   \t"} {
		_, err := h.o.Submit(h.ctx, ref)
		assert.ErrorIs(t, err, ErrEmptyReference)

		v := h.o.View()
		assert.Equal(t, MsgEmptyReference, v.Error)
		assert.Equal(t, PhaseErrored, v.Phase)
	}
	assert.Empty(t, h.conn.opened)
	assert.Equal(t, refB, h.store.CurrentReference())
}

func TestSubmitClearsPreviousError(t *testing.T) {
	h := newHarness(t)
	_, _ = h.o.Submit(h.ctx, "")
	require.NotEmpty(t, h.o.View().Error)

	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	assert.Empty(t, h.o.View().Error)
}

func TestSubmitSendFailure(t *testing.T) {
	h := newHarness(t)
	h.conn.sendErr = connection.ErrSendBufferFull

	_, err := h.o.Submit(h.ctx, refA)
	assert.ErrorIs(t, err, connection.ErrSendBufferFull)

	v := h.o.View()
	assert.Equal(t, MsgTransportError, v.Error)
	assert.Equal(t, PhaseErrored, v.Phase)
	assert.False(t, v.Processing)
}

func TestPartialResultMerge(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T1", "S1")

	h.store.Clear(h.ctx, entity.TableSummaries)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	h.opened()
	h.frame(`{"status":"success","transcript":"T2"}`)

	v := h.o.View()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.False(t, v.Processing)
	assert.Equal(t, "T2", v.Transcript)
	assert.Empty(t, v.Summary)
	assert.False(t, v.ChatReady)

	_, ok := h.store.Get(entity.TableSummaries, refA)
	assert.False(t, ok)

	h.frame(`{"status":"success","summary":"S2"}`)
	v = h.o.View()
	assert.Equal(t, "T2", v.Transcript, "transcript is left alone")
	assert.Equal(t, "S2", v.Summary)
	assert.True(t, v.ChatReady)
}

func TestErrorResultKeepsCache(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "server message", frame: `{"status":"error","message":"Could not fetch captions"}`, want: "Could not fetch captions"},
		{name: "default message", frame: `{"status":"error"}`, want: reconciler.DefaultErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.store.Put(h.ctx, entity.TableTranscripts, refA, "cached T")

			_, err := h.o.Submit(h.ctx, refA)
			require.NoError(t, err)
			h.opened()
			h.frame(tt.frame)

			v := h.o.View()
			assert.Equal(t, tt.want, v.Error)
			assert.Equal(t, PhaseErrored, v.Phase)
			assert.False(t, v.Processing)
			assert.Empty(t, v.Transcript)
			assert.Empty(t, v.Summary)

			cached, ok := h.store.Get(entity.TableTranscripts, refA)
			require.True(t, ok)
			assert.Equal(t, "cached T", cached.Content)
		})
	}
}

func TestMalformedFrame(t *testing.T) {
	h := newHarness(t)
	h.store.Put(h.ctx, entity.TableTranscripts, refA, "cached T")
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	h.opened()

	h.frame("<html>502 Bad Gateway</html>")

	v := h.o.View()
	assert.Equal(t, MsgProtocolError, v.Error)
	assert.Equal(t, PhaseErrored, v.Phase)
	assert.False(t, v.Processing)

	cached, ok := h.store.Get(entity.TableTranscripts, refA)
	require.True(t, ok)
	assert.Equal(t, "cached T", cached.Content)
	_, ok = h.store.Get(entity.TableSummaries, refA)
	assert.False(t, ok)

	errs := h.notifier.ofType(EventSessionError)
	require.Len(t, errs, 1)
	assert.Equal(t, "protocol", errs[0].Payload()["category"])
}

func TestTransportFailureWhileProcessing(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)

	h.o.HandleEvent(h.ctx, connection.Event{Handle: h.conn.last(), Kind: connection.EventFailed, Err: errors.New("refused")})

	v := h.o.View()
	assert.Equal(t, MsgTransportError, v.Error)
	assert.Equal(t, PhaseErrored, v.Phase)
	assert.False(t, v.Processing)
	assert.Equal(t, connection.StateFailed, v.Connection)
}

func TestUnexpectedCloseWhileProcessing(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	h.opened()

	h.o.HandleEvent(h.ctx, connection.Event{Handle: h.conn.last(), Kind: connection.EventClosed, Code: websocket.CloseGoingAway})

	v := h.o.View()
	assert.Equal(t, MsgTransportError, v.Error)
	assert.False(t, v.Processing)
	assert.Equal(t, connection.StateClosed, v.Connection)
}

func TestCloseAfterResultIsQuiet(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T", "S")

	h.o.HandleEvent(h.ctx, connection.Event{Handle: h.conn.last(), Kind: connection.EventClosed, Code: websocket.CloseNormalClosure})

	v := h.o.View()
	assert.Empty(t, v.Error)
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, connection.StateClosed, v.Connection)
}

func TestResubmitSupersedesConnection(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	first := h.conn.last()

	_, err = h.o.Submit(h.ctx, refB)
	require.NoError(t, err)
	require.Len(t, h.conn.opened, 2)
	assert.NotEqual(t, first, h.conn.last())

	// Lifecycle events of the superseded handle are ignored.
	h.o.HandleEvent(h.ctx, connection.Event{Handle: first, Kind: connection.EventFailed, Err: errors.New("gone")})
	h.o.HandleEvent(h.ctx, connection.Event{Handle: first, Kind: connection.EventClosed})

	v := h.o.View()
	assert.Empty(t, v.Error)
	assert.Equal(t, PhaseSubmitting, v.Phase)
	assert.Equal(t, refB, v.Reference)
}

func TestLateResultAppliesToCurrentReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	first := h.conn.last()
	_, err = h.o.Submit(h.ctx, refB)
	require.NoError(t, err)

	// A frame answering refA arrives after refB was submitted. Frames carry
	// no correlation id, so it is filed under refB.
	h.o.HandleEvent(h.ctx, connection.Event{
		Handle:  first,
		Kind:    connection.EventMessage,
		Payload: []byte(`{"status":"success","transcript":"A transcript","summary":"A summary"}`),
	})

	got, ok := h.store.Get(entity.TableTranscripts, refB)
	require.True(t, ok)
	assert.Equal(t, "A transcript", got.Content)
	_, ok = h.store.Get(entity.TableTranscripts, refA)
	assert.False(t, ok)
	assert.Equal(t, PhaseReady, h.o.View().Phase)
}

func TestAskRequiresReadyChat(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.o.Ask(h.ctx, "what?"), ErrChatNotReady)

	h.submitAndComplete(t, refA, "T", "S")
	assert.ErrorIs(t, h.o.Ask(h.ctx, "  "), ErrEmptyQuestion)
	assert.Empty(t, h.o.View().History)
}

func TestAskReusesOpenConnection(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "the transcript", "S")
	sentBefore := len(h.conn.sent)

	require.NoError(t, h.o.Ask(h.ctx, "Who speaks?"))

	require.Len(t, h.conn.opened, 1, "no new connection")
	require.Len(t, h.conn.sent, sentBefore+1)
	last := h.conn.sent[len(h.conn.sent)-1]
	assert.Equal(t, h.conn.last(), last.handle)

	var req map[string]string
	require.NoError(t, json.Unmarshal([]byte(last.payload), &req))
	assert.Equal(t, map[string]string{"type": "chat", "message": "Who speaks?", "context": "the transcript"}, req)

	h.frame(`{"status":"success","type":"chat_response","message":"The narrator."}`)

	assert.Equal(t, []entity.ChatMessage{
		{Origin: entity.OriginUser, Text: "Who speaks?"},
		{Origin: entity.OriginAssistant, Text: "The narrator."},
	}, h.o.View().History)
	assert.Equal(t, PhaseReady, h.o.View().Phase)
	assert.Len(t, h.notifier.ofType(EventChatAppended), 2)
}

func TestChatErrorCountsEachOccurrence(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T", "S")

	for i := 1; i <= 2; i++ {
		require.NoError(t, h.o.Ask(h.ctx, "Why?"))
		h.frame(`{"status":"error","message":"model overloaded"}`)

		v := h.o.View()
		assert.Equal(t, PhaseErrored, v.Phase)
		assert.Equal(t, "model overloaded", v.Error)
		assert.Equal(t, i, v.ErrorCount)
		assert.Equal(t, connection.StateOpen, v.Connection)
		assert.True(t, v.ChatReady)
	}
	require.Len(t, h.conn.opened, 1)
}

func TestAskOpensConnectionWhenClosed(t *testing.T) {
	h := newHarness(t)
	h.store.Put(h.ctx, entity.TableTranscripts, refA, "T")
	h.store.Put(h.ctx, entity.TableSummaries, refA, "S")
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	require.Empty(t, h.conn.opened)

	require.NoError(t, h.o.Ask(h.ctx, "q"))

	require.Len(t, h.conn.opened, 1)
	assert.Equal(t, connection.StateConnecting, h.o.View().Connection)
	assert.Equal(t, PhaseReady, h.o.View().Phase, "asking does not start processing")
}

func TestChatResponseWithoutMessageIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T", "S")

	h.frame(`{"type":"chat_response"}`)

	assert.Empty(t, h.o.View().History)
}

func TestClearCache(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T", "S")
	require.NoError(t, h.o.Ask(h.ctx, "q"))
	h.frame(`{"type":"chat_response","message":"a"}`)

	h.o.ClearCache(h.ctx)

	v := h.o.View()
	assert.Empty(t, v.Transcript)
	assert.Empty(t, v.Summary)
	assert.False(t, v.ChatReady)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Len(t, v.History, 2, "chat history survives a cache clear")
	assert.True(t, h.store.IsEmpty())
	assert.Len(t, h.notifier.ofType(EventCacheCleared), 1)
}

func TestClearCacheWhileProcessingKeepsPhase(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	h.opened()

	h.o.ClearCache(h.ctx)
	assert.Equal(t, PhaseAwaitingResult, h.o.View().Phase)

	h.frame(`{"status":"success","transcript":"T","summary":"S"}`)
	assert.Equal(t, PhaseReady, h.o.View().Phase)
	_, ok := h.store.Get(entity.TableSummaries, refA)
	assert.True(t, ok)
}

func TestResetChat(t *testing.T) {
	h := newHarness(t)
	h.submitAndComplete(t, refA, "T", "S")
	require.NoError(t, h.o.Ask(h.ctx, "q"))

	h.o.ResetChat()
	assert.Empty(t, h.o.View().History)
}

func TestRestore(t *testing.T) {
	t.Run("cached reference", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put(h.ctx, entity.TableTranscripts, refA, "T")
		h.store.Put(h.ctx, entity.TableSummaries, refA, "S")
		h.store.SetCurrentReference(h.ctx, refA)

		h.o.Restore(h.ctx)

		v := h.o.View()
		assert.Equal(t, refA, v.Reference)
		assert.Equal(t, PhaseReady, v.Phase)
		assert.Equal(t, "T", v.Transcript)
		assert.Equal(t, "S", v.Summary)
		assert.True(t, v.ChatReady)
		assert.Empty(t, h.conn.opened)
	})

	t.Run("transcript only", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put(h.ctx, entity.TableTranscripts, refA, "T")
		h.store.SetCurrentReference(h.ctx, refA)

		h.o.Restore(h.ctx)

		v := h.o.View()
		assert.Equal(t, PhaseReady, v.Phase)
		assert.False(t, v.ChatReady)
	})

	t.Run("nothing cached", func(t *testing.T) {
		h := newHarness(t)
		h.store.SetCurrentReference(h.ctx, refA)

		h.o.Restore(h.ctx)

		v := h.o.View()
		assert.Equal(t, refA, v.Reference)
		assert.Equal(t, PhaseIdle, v.Phase)
	})

	t.Run("no current reference", func(t *testing.T) {
		h := newHarness(t)
		h.o.Restore(h.ctx)
		assert.Equal(t, PhaseIdle, h.o.View().Phase)
		assert.Empty(t, h.o.View().Reference)
	})
}

func TestShutdownClosesConnection(t *testing.T) {
	h := newHarness(t)

	h.o.Shutdown()
	assert.Empty(t, h.conn.closed, "nothing to close before the first connection")

	_, err := h.o.Submit(h.ctx, refA)
	require.NoError(t, err)
	h.o.Shutdown()

	require.Len(t, h.conn.closed, 1)
	assert.Equal(t, h.conn.last(), h.conn.closed[0].handle)
	assert.Equal(t, websocket.CloseNormalClosure, h.conn.closed[0].code)
}
