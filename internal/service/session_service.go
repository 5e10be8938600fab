package service

import (
	"context"
	"errors"
	"sync"

	"youwin-client/internal/entity"
	"youwin-client/internal/pkg/logger"
	"youwin-client/pkg/connection"
	"youwin-client/pkg/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrStopped = errors.New("session service is stopped")

type ISessionService interface {
	// Run restores the cached session and serves commands and transport
	// events until ctx ends or Stop is called.
	Run(ctx context.Context) error
	Submit(ctx context.Context, reference string) (cacheHit bool, err error)
	Ask(ctx context.Context, question string) error
	ClearCache(ctx context.Context) error
	ResetChat(ctx context.Context) error
	View(ctx context.Context) (session.View, error)
	// Await blocks until cond holds for the session view.
	Await(ctx context.Context, cond func(session.View) bool) (session.View, error)
	Stop()
}

type command func(o *session.Orchestrator)

type waiter struct {
	cond func(session.View) bool
	ch   chan session.View
}

// sessionService confines the orchestrator to the Run goroutine. Callers and
// connection goroutines reach it only through channels.
type sessionService struct {
	orch     *session.Orchestrator
	commands chan command
	events   chan connection.Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	waiters  map[*waiter]struct{}
	tracer   trace.Tracer
	logger   logger.ILogger
}

func NewSessionService(conn session.Connector, cache session.CacheStore, notifier session.Notifier, log logger.ILogger) ISessionService {
	s := &sessionService{
		commands: make(chan command),
		events:   make(chan connection.Event, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		waiters:  make(map[*waiter]struct{}),
		tracer:   otel.Tracer("youwin-client/session"),
		logger:   log,
	}
	s.orch = session.New(conn, s.enqueue, cache, log, session.WithNotifier(notifier))
	return s
}

// enqueue is the connection event sink. It runs on manager goroutines.
func (s *sessionService) enqueue(ev connection.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *sessionService) Run(ctx context.Context) error {
	defer s.shutdown()

	s.orch.Restore(ctx)
	s.logger.Info("SessionService", "Session loop started", nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case cmd := <-s.commands:
			cmd(s.orch)
		case ev := <-s.events:
			s.orch.HandleEvent(ctx, ev)
		}
		s.notifyWaiters()
	}
}

func (s *sessionService) shutdown() {
	s.orch.Shutdown()
	for w := range s.waiters {
		close(w.ch)
	}
	s.waiters = nil
	close(s.done)
	s.logger.Info("SessionService", "Session loop stopped", nil)
}

func (s *sessionService) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// exec runs fn on the loop goroutine and waits for it to finish.
func (s *sessionService) exec(ctx context.Context, fn command) error {
	finished := make(chan struct{})
	cmd := func(o *session.Orchestrator) {
		defer close(finished)
		fn(o)
	}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (s *sessionService) Submit(ctx context.Context, reference string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "session.submit", trace.WithAttributes(attribute.String("youwin.reference", reference)))
	defer span.End()

	var (
		cacheHit  bool
		submitErr error
	)
	if err := s.exec(ctx, func(o *session.Orchestrator) {
		cacheHit, submitErr = o.Submit(ctx, reference)
	}); err != nil {
		return false, err
	}

	span.SetAttributes(attribute.Bool("youwin.cache_hit", cacheHit))
	if submitErr != nil {
		span.RecordError(submitErr)
		span.SetStatus(codes.Error, submitErr.Error())
	}
	return cacheHit, submitErr
}

func (s *sessionService) Ask(ctx context.Context, question string) error {
	ctx, span := s.tracer.Start(ctx, "session.ask", trace.WithAttributes(attribute.Int("youwin.question_length", len(question))))
	defer span.End()

	var askErr error
	if err := s.exec(ctx, func(o *session.Orchestrator) {
		askErr = o.Ask(ctx, question)
	}); err != nil {
		return err
	}
	if askErr != nil {
		span.RecordError(askErr)
		span.SetStatus(codes.Error, askErr.Error())
	}
	return askErr
}

func (s *sessionService) ClearCache(ctx context.Context) error {
	return s.exec(ctx, func(o *session.Orchestrator) {
		o.ClearCache(ctx)
	})
}

func (s *sessionService) ResetChat(ctx context.Context) error {
	return s.exec(ctx, func(o *session.Orchestrator) {
		o.ResetChat()
	})
}

func (s *sessionService) View(ctx context.Context) (session.View, error) {
	var v session.View
	err := s.exec(ctx, func(o *session.Orchestrator) {
		v = o.View()
	})
	return v, err
}

func (s *sessionService) Await(ctx context.Context, cond func(session.View) bool) (session.View, error) {
	w := &waiter{cond: cond, ch: make(chan session.View, 1)}
	if err := s.exec(ctx, func(o *session.Orchestrator) {
		if v := o.View(); cond(v) {
			w.ch <- v
			return
		}
		s.waiters[w] = struct{}{}
	}); err != nil {
		return session.View{}, err
	}

	select {
	case v, ok := <-w.ch:
		if !ok {
			return session.View{}, ErrStopped
		}
		return v, nil
	case <-ctx.Done():
		// Best effort: the loop may already be gone.
		_ = s.exec(context.Background(), func(*session.Orchestrator) {
			delete(s.waiters, w)
		})
		return session.View{}, ctx.Err()
	}
}

func (s *sessionService) notifyWaiters() {
	if len(s.waiters) == 0 {
		return
	}
	v := s.orch.View()
	for w := range s.waiters {
		if w.cond(v) {
			w.ch <- v
			delete(s.waiters, w)
		}
	}
}

// Settled holds once no submission is in flight.
func Settled(v session.View) bool {
	return !v.Processing
}

// AnswerAfter holds once an assistant message follows the question asked
// after before was taken, a new error surfaces, or the transport carrying the
// question is gone.
func AnswerAfter(before session.View) func(session.View) bool {
	asked := len(before.History) + 1
	return func(v session.View) bool {
		if v.ErrorCount > before.ErrorCount || !v.Connection.Live() {
			return true
		}
		return len(v.History) > asked && v.History[len(v.History)-1].Origin == entity.OriginAssistant
	}
}
