package thought

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/affective-thought-kernel/internal/affect"
)

var (
	ErrThoughtInFlight  = errors.New("a thought is already in flight")
	ErrSchedulerStopped = errors.New("scheduler is stopped")
	ErrAlreadyStarted   = errors.New("scheduler is already running")
	errInterrupted      = errors.New("interrupted by user activity")
	errDisabled         = errors.New("thoughts disabled")
)

// Scheduler owns the idle check loop and the single in-flight thought.
type Scheduler struct {
	config   Config
	core     *affect.Core
	composer Composer
	recorder Recorder
	emitter  Emitter
	logger   *zap.Logger
	now      func() time.Time
	random   func() float64
	limiter  *rate.Limiter

	mu               sync.Mutex
	state            State
	enabled          bool
	lastUserActivity time.Time
	lastThoughtAt    time.Time
	lastThought      *Thought
	thoughtCount     int

	runCtx    context.Context
	runCancel context.CancelCauseFunc
	interrupt context.CancelCauseFunc
	charTimer *time.Timer
	wg        sync.WaitGroup
	cycles    sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. recorder and emitter may be nil.
func NewScheduler(cfg Config, core *affect.Core, composer Composer, recorder Recorder, emitter Emitter, logger *zap.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if core == nil || composer == nil {
		return nil, fmt.Errorf("%w: core and composer are required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}

	s := &Scheduler{
		config:   cfg,
		core:     core,
		composer: composer,
		recorder: recorder,
		emitter:  emitter,
		logger:   logger.Named("scheduler"),
		now:      cfg.Clock,
		random:   cfg.Random,
		state:    StateStopped,
		enabled:  cfg.Enabled,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.random == nil {
		s.random = rand.Float64
	}
	if cfg.MaxThoughtsPerHour > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.MaxThoughtsPerHour)), cfg.MaxThoughtsPerHour)
	}
	return s, nil
}

// Start moves the scheduler from Stopped to IdleWaiting and starts the idle
// check loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.runCtx, s.runCancel = context.WithCancelCause(context.Background())
	s.lastUserActivity = s.now()
	from := s.setStateLocked(StateIdleWaiting)
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runTickLoop(ctx)

	s.emitStateChange(from, StateIdleWaiting)
	s.emit(Event{Type: EventStarted})
	s.logger.Info("Thought scheduler started",
		zap.Duration("tick", s.config.TickInterval),
		zap.Duration("idle_threshold", s.config.IdleThreshold))
	return nil
}

// Stop cancels the idle loop and any in-flight thought, including its
// pending character timer, and waits for both to finish. Calling Stop on a
// stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	from := s.setStateLocked(StateStopped)
	s.runCancel(ErrSchedulerStopped)
	if s.charTimer != nil {
		s.charTimer.Stop()
		s.charTimer = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.cycles.Wait()

	s.emitStateChange(from, StateStopped)
	s.emit(Event{Type: EventStopped})
	s.logger.Info("Thought scheduler stopped")
}

func (s *Scheduler) runTickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && !errors.Is(err, ErrSchedulerStopped) {
				s.logger.Warn("Idle thought failed", zap.Error(err))
			}
		}
	}
}

// Tick runs one idle check. It only acts in IdleWaiting, inside the idle
// window and after MinThoughtInterval has passed since the last thought.
// Within the window it fires with a probability that grows with idle time.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdleWaiting || !s.enabled {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	idle := now.Sub(s.lastUserActivity)
	if idle < s.config.IdleThreshold || idle > s.config.MaxIdleDuration {
		s.mu.Unlock()
		return nil
	}
	if !s.lastThoughtAt.IsZero() && now.Sub(s.lastThoughtAt) < s.config.MinThoughtInterval {
		s.mu.Unlock()
		return nil
	}
	p := FireProbability(idle, s.config.MaxThoughtInterval)
	roll := s.random()
	s.mu.Unlock()

	if roll >= p {
		s.logger.Debug("Idle check passed on thinking",
			zap.Duration("idle", idle),
			zap.Float64("p", p),
			zap.Float64("roll", roll))
		return nil
	}
	if s.limiter != nil && !s.limiter.AllowN(now, 1) {
		s.logger.Debug("Thought rate limited", zap.Duration("idle", idle))
		return nil
	}
	return s.GenerateThought(ctx)
}

// FireProbability is the chance an idle check fires after idle time.
func FireProbability(idle, maxThoughtInterval time.Duration) float64 {
	ratio := 1.0
	if maxThoughtInterval > 0 {
		ratio = math.Min(1, float64(idle)/float64(maxThoughtInterval))
	}
	return 0.6 + 0.35*ratio
}

// GenerateThought produces and streams one thought. Only one thought may be
// in flight: a call while another is generating or streaming returns
// ErrThoughtInFlight and changes nothing. Generation failures are reported
// through a thought_error event and returned; the scheduler keeps running.
func (s *Scheduler) GenerateThought(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return ErrSchedulerStopped
	case StateGenerating, StateStreaming:
		s.mu.Unlock()
		return ErrThoughtInFlight
	}
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	runCtx := s.runCtx
	s.cycles.Add(1)
	from := s.setStateLocked(StateGenerating)
	s.mu.Unlock()

	settled := false
	defer func() {
		if !settled {
			s.finish()
			s.emit(Event{Type: EventThinkingEnd})
		}
		s.cycles.Done()
	}()

	s.emitStateChange(from, StateGenerating)
	s.emit(Event{Type: EventThinkingStart})

	snap := s.core.Snapshot()
	emotion := snap.DominantEmotion()
	tt := PickType(emotion, s.random())

	genCtx, cancel := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(runCtx, cancel)
	text, err := s.composer.Compose(genCtx, Request{Type: tt, Snapshot: snap})
	stopWatch()
	cancel()

	if err != nil {
		if runCtx.Err() != nil {
			s.logger.Debug("Thought generation canceled by stop", zap.String("type", string(tt)))
			return ErrSchedulerStopped
		}
		if ctx.Err() != nil {
			return fmt.Errorf("generate thought: %w", ctx.Err())
		}
		s.logger.Warn("Thought generation failed", zap.String("type", string(tt)), zap.Error(err))
		s.emit(Event{Type: EventThoughtError, Err: err, Error: err.Error()})
		return fmt.Errorf("generate thought: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Debug("Nothing to say this cycle", zap.String("type", string(tt)))
		return nil
	}

	t := Thought{
		ID:        uuid.New().String(),
		Type:      tt,
		Content:   text,
		Emotion:   emotion,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	if s.state != StateGenerating {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	streamCtx, interrupt := context.WithCancelCause(runCtx)
	s.interrupt = interrupt
	from = s.setStateLocked(StateStreaming)
	s.mu.Unlock()
	defer interrupt(nil)

	s.emitStateChange(from, StateStreaming)
	s.emit(Event{Type: EventThoughtStart, Thought: &t})

	cause := s.stream(ctx, streamCtx, t)
	t.WasInterrupted = cause != nil

	s.emit(Event{Type: EventThoughtEnd, Thought: &t, Interrupted: t.WasInterrupted})
	if errors.Is(cause, errInterrupted) {
		s.emit(Event{Type: EventThoughtInterrupted, Thought: &t})
	}

	s.mu.Lock()
	s.interrupt = nil
	s.lastThoughtAt = s.now()
	s.thoughtCount++
	last := t
	s.lastThought = &last
	s.mu.Unlock()

	// Back to IdleWaiting before persisting so a slow recorder never holds
	// the in-flight slot.
	settled = true
	s.finish()
	s.emit(Event{Type: EventThinkingEnd})

	recCtx, cancelRec := context.WithCancel(context.WithoutCancel(ctx))
	stopRec := context.AfterFunc(runCtx, cancelRec)
	s.recorder.AddThought(recCtx, t)
	stopRec()
	cancelRec()
	s.foldBack(t)

	s.logger.Info("Thought emitted",
		zap.String("id", t.ID),
		zap.String("type", string(t.Type)),
		zap.String("emotion", t.Emotion),
		zap.Bool("interrupted", t.WasInterrupted))
	return nil
}

// stream types t out one character at a time. It returns nil when every
// character was emitted and the cancellation cause otherwise.
func (s *Scheduler) stream(ctx, streamCtx context.Context, t Thought) error {
	chars := []rune(t.Content)
	for i, ch := range chars {
		timer := time.NewTimer(CharDelay(ch, s.config.CharDelay, s.config.CharVariance, s.random()))

		s.mu.Lock()
		if s.state != StateStreaming {
			s.mu.Unlock()
			timer.Stop()
			return ErrSchedulerStopped
		}
		s.charTimer = timer
		s.mu.Unlock()

		select {
		case <-timer.C:
		case <-streamCtx.Done():
			timer.Stop()
			return context.Cause(streamCtx)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		s.mu.Lock()
		s.charTimer = nil
		enabled := s.enabled
		s.mu.Unlock()

		if err := context.Cause(streamCtx); err != nil {
			return err
		}
		if !enabled {
			return errDisabled
		}

		s.emit(Event{Type: EventChar, Char: string(ch), Index: i, Total: len(chars)})
	}
	return nil
}

// finish returns to IdleWaiting after a thought cycle unless the scheduler
// was stopped meanwhile.
func (s *Scheduler) finish() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	from := s.setStateLocked(StateIdleWaiting)
	s.mu.Unlock()
	s.emitStateChange(from, StateIdleWaiting)
}

// foldBack lets a finished thought move the mood it was born from.
func (s *Scheduler) foldBack(t Thought) {
	nudge := s.config.MoodNudge
	if t.WasInterrupted {
		nudge /= 2
	}
	s.core.NudgeMood(t.Emotion, nudge)

	switch t.Type {
	case TypeDream:
		d := affect.Dream{Content: t.Content, DreamtAt: t.Timestamp}
		if !t.WasInterrupted {
			d.Resolved = true
			d.Insight = lastSentence(t.Content)
		}
		s.core.RecordDream(d)
	case TypeQuestion:
		if !t.WasInterrupted && strings.HasSuffix(t.Content, "?") {
			s.core.AddExistentialQuestion(t.Content)
		}
	}
}

// RecordActivity marks user activity. While streaming it interrupts the
// thought at the next character boundary.
func (s *Scheduler) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUserActivity = s.now()
	if s.state == StateStreaming && s.interrupt != nil {
		s.interrupt(errInterrupted)
	}
}

// SetEnabled turns autonomous thoughts on or off. Disabling cuts a
// streaming thought short at the next character.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if !enabled && s.state == StateStreaming && s.interrupt != nil {
		s.interrupt(errDisabled)
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of scheduler counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		State:            s.state,
		Enabled:          s.enabled,
		ThoughtCount:     s.thoughtCount,
		LastThoughtAt:    s.lastThoughtAt,
		LastUserActivity: s.lastUserActivity,
	}
	if s.lastThought != nil {
		t := *s.lastThought
		st.LastThought = &t
	}
	return st
}

func (s *Scheduler) setStateLocked(to State) State {
	from := s.state
	s.state = to
	return from
}

func (s *Scheduler) emitStateChange(from, to State) {
	if from == to {
		return
	}
	s.emit(Event{Type: EventStateChanged, From: from, To: to})
}

func (s *Scheduler) emit(e Event) {
	if e.At.IsZero() {
		e.At = s.now()
	}
	s.emitter.Emit(e)
}

func lastSentence(text string) string {
	text = strings.TrimSpace(text)
	trimmed := strings.TrimRight(text, ".!?~")
	if i := strings.LastIndexAny(trimmed, ".!?~"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}
