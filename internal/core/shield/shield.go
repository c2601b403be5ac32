package shield

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval    = 15 * time.Second
	DefaultCommandTimeout  = 15 * time.Minute
	DefaultDispatchTimeout = 10 * time.Second

	historySize = 20
)

type Config struct {
	PollInterval    time.Duration
	CommandTimeout  time.Duration
	DispatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    DefaultPollInterval,
		CommandTimeout:  DefaultCommandTimeout,
		DispatchTimeout: DefaultDispatchTimeout,
	}
}

// Shield serializes mutating commands against a weakly consistent remote API.
// At most one command is active at a time; others wait in FIFO order until the
// active one converges or times out.
//
// A Shield is not safe for concurrent use. It is meant to be owned by a
// single goroutine (the shield actor) that delivers Submit and Tick calls.
type Shield struct {
	cfg      Config
	norm     *Normalizer
	observer StateObserver
	executor RemoteExecutor
	auditor  Auditor
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string

	active  *Command
	queue   commandQueue
	history []Command
}

type Option func(*Shield)

func WithAuditor(a Auditor) Option {
	return func(s *Shield) {
		s.auditor = a
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Shield) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Shield) {
		s.now = now
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Shield) {
		s.newID = fn
	}
}

func New(cfg Config, norm *Normalizer, observer StateObserver, executor RemoteExecutor, opts ...Option) *Shield {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if norm == nil {
		norm = NewNormalizer(nil, DefaultSynonyms)
	}
	s := &Shield{
		cfg:      cfg,
		norm:     norm,
		observer: observer,
		executor: executor,
		auditor:  NopAuditor{},
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.auditor = SafeAuditor{Auditor: s.auditor, Logger: s.logger}
	return s
}

func (s *Shield) Config() Config {
	return s.cfg
}

func (s *Shield) Normalizer() *Normalizer {
	return s.norm
}

// Submit decides what to do with a mutating request: skip it, ignore it as a
// duplicate, dispatch it right away or queue it behind the active command.
// A *DispatchError is returned when the remote system rejects the command;
// in that case the active slot is left untouched.
func (s *Shield) Submit(ctx context.Context, req Request) (SubmitResult, error) {
	now := s.now()

	var expected ExpectedState
	if req.Expected != nil {
		expected = req.Expected(s.observer, s.norm)
	}
	if len(expected) == 0 {
		reason := "nothing to change"
		s.auditor.Emit(AuditEvent{Type: EventSkipped, Name: req.Name, Params: req.Params, Reason: reason, At: now})
		return SubmitResult{Outcome: OutcomeSkipped, Reason: reason}, nil
	}

	key := dedupKey(req.Name, expected, s.norm)
	if s.active != nil && s.active.key == key {
		reason := "identical command is already running"
		s.emitTransient(EventIgnored, req, expected, reason, now)
		return SubmitResult{Outcome: OutcomeIgnored, CommandID: s.active.ID, Reason: reason}, nil
	}
	if s.queue.ContainsKey(key) {
		reason := "identical command is already queued"
		s.emitTransient(EventIgnored, req, expected, reason, now)
		return SubmitResult{Outcome: OutcomeIgnored, Reason: reason}, nil
	}

	if s.satisfied(expected) {
		reason := "change already completed"
		s.emitTransient(EventSkipped, req, expected, reason, now)
		return SubmitResult{Outcome: OutcomeSkipped, Reason: reason}, nil
	}

	cmd := &Command{
		ID:          s.newID(),
		Name:        req.Name,
		Params:      req.Params,
		Expected:    expected.clone(),
		SubmittedAt: now,
		Status:      StatusQueued,
		key:         key,
	}

	if s.active == nil {
		if err := s.dispatch(ctx, cmd); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{Outcome: OutcomeDispatched, CommandID: cmd.ID, Reason: "request sent to remote"}, nil
	}

	s.queue.Push(cmd)
	reason := fmt.Sprintf("waiting for %s", s.active.Name)
	s.auditor.Emit(newEvent(EventQueued, cmd, reason, now))
	s.logger.Debug("shield: queued", zap.String("service", cmd.Name), zap.String("id", cmd.ID), zap.Int("queue", s.queue.Len()))
	return SubmitResult{Outcome: OutcomeQueued, CommandID: cmd.ID, Reason: reason}, nil
}

// Tick checks the active command against the observed state, finishing it on
// convergence or timeout, and promotes the queue head when the slot is free.
func (s *Shield) Tick(ctx context.Context, now time.Time) {
	if cmd := s.active; cmd != nil {
		switch {
		case now.Sub(cmd.DispatchedAt) > s.cfg.CommandTimeout:
			s.finish(cmd, StatusTimedOut, now)
			s.auditor.Emit(newEvent(EventTimeout, cmd, fmt.Sprintf("not converged after %s", s.cfg.CommandTimeout), now))
			s.logger.Warn("shield: command timed out", zap.String("service", cmd.Name), zap.String("id", cmd.ID))
		case s.converged(cmd):
			s.finish(cmd, StatusCompleted, now)
			s.auditor.Emit(newEvent(EventCompleted, cmd, "change applied", now))
			s.auditor.Emit(newEvent(EventReleased, cmd, "slot released", now))
			s.logger.Debug("shield: command completed", zap.String("service", cmd.Name), zap.String("id", cmd.ID))
		}
	}
	s.promote(ctx)
}

func (s *Shield) promote(ctx context.Context) {
	for s.active == nil && s.queue.Len() > 0 {
		next := s.queue.Pop()
		s.logger.Debug("shield: promoting queued command", zap.String("service", next.Name), zap.String("id", next.ID))
		if err := s.dispatch(ctx, next); err != nil {
			s.logger.Warn("shield: queued command rejected", zap.String("service", next.Name), zap.Error(err))
		}
	}
}

func (s *Shield) dispatch(ctx context.Context, cmd *Command) error {
	cmd.Original = s.capture(cmd.Expected)
	s.auditor.Emit(newEvent(EventChangeRequested, cmd, "request sent to remote", s.now()))

	if err := s.execute(ctx, cmd); err != nil {
		s.finish(cmd, StatusFailed, s.now())
		s.auditor.Emit(newEvent(EventFailed, cmd, err.Error(), s.now()))
		return &DispatchError{CommandID: cmd.ID, Name: cmd.Name, Err: err}
	}

	cmd.Status = StatusActive
	cmd.DispatchedAt = s.now()
	s.active = cmd
	s.auditor.Emit(newEvent(EventStarted, cmd, "", cmd.DispatchedAt))
	return nil
}

func (s *Shield) execute(ctx context.Context, cmd *Command) (err error) {
	if s.executor == nil {
		return ErrNoExecutor
	}
	if s.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return s.executor.Execute(ctx, cmd.snapshot())
}

func (s *Shield) finish(cmd *Command, status Status, now time.Time) {
	cmd.Status = status
	cmd.FinishedAt = now
	if s.active == cmd {
		s.active = nil
	}
	s.history = append(s.history, cmd.snapshot())
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
}

// converged never reports success on missing or unparsable observations.
// A panic raised while evaluating is logged and counts as a mismatch.
func (s *Shield) converged(cmd *Command) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("shield: convergence check panicked", zap.String("id", cmd.ID), zap.Any("panic", r))
			ok = false
		}
	}()
	return s.satisfied(cmd.Expected)
}

func (s *Shield) satisfied(expected ExpectedState) bool {
	for _, e := range expected {
		if !s.Matches(e.ResourceID, e.Value) {
			return false
		}
	}
	return true
}

// Matches reports whether the observed value of a resource equals target.
func (s *Shield) Matches(resourceID string, target any) bool {
	return Matches(s.observer, s.norm, s.logger, resourceID, target)
}

// Matches is the observer-side comparison shared by Submit, Tick and
// expected-state providers.
func Matches(obs StateObserver, norm *Normalizer, logger *zap.Logger, resourceID string, target any) bool {
	if obs == nil {
		return false
	}
	observed, ok := obs.Read(resourceID)
	if !ok {
		if logger != nil {
			logger.Debug("shield: stale observation", zap.String("resource", resourceID), zap.Error(ErrStaleObservation))
		}
		return false
	}
	current, err := norm.Normalize(resourceID, observed)
	if err != nil {
		if logger != nil {
			logger.Debug("shield: observed value not comparable", zap.Error(err))
		}
		return false
	}
	want, err := norm.Normalize(resourceID, target)
	if err != nil {
		if logger != nil {
			logger.Debug("shield: expected value not comparable", zap.Error(err))
		}
		return false
	}
	return current == want
}

func (s *Shield) capture(expected ExpectedState) map[string]any {
	original := make(map[string]any, len(expected))
	for _, e := range expected {
		if s.observer == nil {
			break
		}
		if v, ok := s.observer.Read(e.ResourceID); ok {
			original[e.ResourceID] = v
		}
	}
	return original
}

func (s *Shield) emitTransient(t EventType, req Request, expected ExpectedState, reason string, now time.Time) {
	s.auditor.Emit(AuditEvent{
		Type:     t,
		Name:     req.Name,
		Params:   req.Params,
		Reason:   reason,
		Expected: expected.clone(),
		Original: s.capture(expected),
		At:       now,
	})
}

// Active returns a copy of the active command, if any.
func (s *Shield) Active() (Command, bool) {
	if s.active == nil {
		return Command{}, false
	}
	return s.active.snapshot(), true
}

func (s *Shield) QueueLen() int {
	return s.queue.Len()
}

type Snapshot struct {
	Active  *Command
	Queue   []Command
	History []Command
}

func (s *Shield) Snapshot() Snapshot {
	snap := Snapshot{
		Queue:   s.queue.Snapshot(),
		History: make([]Command, len(s.history)),
	}
	copy(snap.History, s.history)
	if s.active != nil {
		a := s.active.snapshot()
		snap.Active = &a
	}
	return snap
}
