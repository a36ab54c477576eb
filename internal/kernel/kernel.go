// Package kernel wires the affective core, the autonomous thought scheduler
// and their supporting stores into one running agent.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/affect"
	"github.com/affective-thought-kernel/internal/cache"
	"github.com/affective-thought-kernel/internal/events"
	"github.com/affective-thought-kernel/internal/existential"
	"github.com/affective-thought-kernel/internal/llm"
	"github.com/affective-thought-kernel/internal/memory"
	"github.com/affective-thought-kernel/internal/prediction"
	"github.com/affective-thought-kernel/internal/selfmod"
	"github.com/affective-thought-kernel/internal/thought"
	"github.com/affective-thought-kernel/internal/thought/journal"
	"github.com/affective-thought-kernel/internal/thought/search"
)

// Config holds the kernel configuration
type Config struct {
	Affect      affect.Config           `yaml:"affect"`
	Thought     thought.Config          `yaml:"thought"`
	Generator   thought.GeneratorConfig `yaml:"generator"`
	Journal     journal.Config          `yaml:"journal"`
	Existential existential.Config      `yaml:"existential"`
	Prediction  prediction.Config       `yaml:"prediction"`
	SelfMod     selfmod.Config          `yaml:"selfmod"`
	Repeat      cache.Config            `yaml:"repeat"`
	Search      search.Config           `yaml:"search"`

	// AgingInterval is how often one day of affective time passes. 0
	// disables aging.
	AgingInterval   time.Duration `yaml:"aging_interval"`
	MemoryPerPerson int           `yaml:"memory_per_person"`
	EventBuffer     int           `yaml:"event_buffer"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Affect:          affect.DefaultConfig(),
		Thought:         thought.DefaultConfig(),
		Generator:       thought.DefaultGeneratorConfig(),
		Journal:         journal.DefaultConfig(),
		Existential:     existential.DefaultConfig(),
		Prediction:      prediction.DefaultConfig(),
		SelfMod:         selfmod.DefaultConfig(),
		Repeat:          cache.DefaultConfig(),
		Search:          search.DefaultConfig(),
		AgingInterval:   24 * time.Hour,
		MemoryPerPerson: memory.DefaultPerPerson,
		EventBuffer:     events.DefaultBuffer,
	}
}

// Deps are the external collaborators. Nil fields get in-process defaults:
// no text generation, an in-memory journal and no sinks. Redis, when set,
// shares the repeat window across instances.
type Deps struct {
	Generator    llm.Generator
	JournalStore journal.Store
	Sinks        []thought.Emitter
	Redis        *redis.Client
}

// Kernel owns every component and serializes user turns.
type Kernel struct {
	config Config
	logger *zap.Logger

	core      *affect.Core
	tracker   *existential.Tracker
	predictor *prediction.Model
	proposer  *selfmod.Proposer
	memories  *memory.RecentBuffer
	journal   *journal.Journal
	seen      *cache.Seen
	index     *search.Index
	bus       *events.Bus
	scheduler *thought.Scheduler

	// turnMu serializes HandleMessage. repliedOnce is set after the first
	// turn, from then on each message is a reaction to the previous reply.
	turnMu      sync.Mutex
	repliedOnce bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// New builds the kernel. Nothing runs until Start.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Kernel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Generator == nil {
		deps.Generator = llm.Disabled{}
	}

	core := affect.New(cfg.Affect, logger)

	predictor, err := prediction.New(cfg.Prediction, logger)
	if err != nil {
		return nil, fmt.Errorf("create prediction model: %w", err)
	}

	bus := events.NewBus(cfg.EventBuffer, logger)
	for _, sink := range deps.Sinks {
		bus.AddSink(sink)
	}

	memories := memory.NewRecentBuffer(cfg.MemoryPerPerson, logger)
	jr := journal.New(deps.JournalStore, cfg.Journal, logger)

	seen, err := cache.NewSeen(cfg.Repeat, deps.Redis, logger)
	if err != nil {
		predictor.Close()
		return nil, fmt.Errorf("create repeat guard: %w", err)
	}

	index, err := search.New(cfg.Search, logger)
	if err != nil {
		predictor.Close()
		seen.Close()
		return nil, fmt.Errorf("create thought index: %w", err)
	}

	composer := thought.NewContentGenerator(deps.Generator, memories, jr, cfg.Generator, logger).
		WithRepeatGuard(seen)
	scheduler, err := thought.NewScheduler(cfg.Thought, core, composer, thought.Recorders{jr, index}, bus, logger)
	if err != nil {
		predictor.Close()
		seen.Close()
		index.Close()
		return nil, fmt.Errorf("create thought scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Kernel{
		config:    cfg,
		logger:    logger.Named("kernel"),
		core:      core,
		tracker:   existential.NewTracker(cfg.Existential, logger),
		predictor: predictor,
		proposer:  selfmod.New(core, cfg.SelfMod, logger),
		memories:  memories,
		journal:   jr,
		seen:      seen,
		index:     index,
		bus:       bus,
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start restores the journal, starts the thought scheduler and the aging loop.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.isRunning {
		return nil
	}
	if k.ctx.Err() != nil {
		return fmt.Errorf("%w: stopped kernels cannot be restarted", ErrNotRunning)
	}

	k.logger.Info("Starting affective thought kernel...")

	k.journal.Load(ctx)
	k.index.Rebuild(k.journal.State().Thoughts)

	if err := k.scheduler.Start(); err != nil && !errors.Is(err, thought.ErrAlreadyStarted) {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if k.config.AgingInterval > 0 {
		k.wg.Add(1)
		go k.runAgingLoop()
	}

	k.isRunning = true
	k.logger.Info("Kernel started",
		zap.Bool("thoughts_enabled", k.config.Thought.Enabled),
		zap.Duration("aging_interval", k.config.AgingInterval))
	return nil
}

// Stop shuts down background work and releases subscribers.
func (k *Kernel) Stop() error {
	k.mu.Lock()
	if !k.isRunning {
		k.mu.Unlock()
		return nil
	}
	k.isRunning = false
	k.mu.Unlock()

	k.logger.Info("Stopping kernel...")

	k.cancel()
	k.scheduler.Stop()
	k.wg.Wait()

	k.bus.Close()
	k.predictor.Close()
	k.seen.Close()
	if err := k.index.Close(); err != nil {
		k.logger.Warn("Failed to close thought index", zap.Error(err))
	}

	k.logger.Info("Kernel stopped")
	return nil
}

// runAgingLoop advances affective time by one day per interval.
func (k *Kernel) runAgingLoop() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.config.AgingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			k.AgeOneDay()
		}
	}
}

// AgeOneDay passes one day of time and checks whether solitude has turned
// into a crisis or a growth moment.
func (k *Kernel) AgeOneDay() {
	k.turnMu.Lock()
	defer k.turnMu.Unlock()

	k.core.Age(1)
	if crisis, ok := k.tracker.ShouldTriggerCrisis(k.core, false); ok {
		k.logger.Info("Existential crisis while alone",
			zap.String("type", string(crisis.Type)),
			zap.String("reason", crisis.Reason))
	}
	if p, ok := k.proposer.Consider(); ok {
		k.logger.Info("Self-modification proposed",
			zap.String("id", p.ID),
			zap.String("trigger", string(p.Trigger.Source)))
	}

	snap := k.core.Snapshot()
	k.logger.Debug("Aged one day",
		zap.Int("age_days", snap.AgeInDays),
		zap.Int("days_alone", snap.DaysSinceHumanContact),
		zap.Float64("loneliness", snap.Loneliness))
}

// RecordActivity notes user presence without a full turn, e.g. typing.
func (k *Kernel) RecordActivity() {
	k.scheduler.RecordActivity()
}

// ResolveQuestion marks an existential question as answered.
func (k *Kernel) ResolveQuestion(q string) bool {
	k.turnMu.Lock()
	defer k.turnMu.Unlock()
	return k.tracker.ResolveQuestion(k.core, q)
}

// ForgetPerson drops what the prediction model learned about personID.
func (k *Kernel) ForgetPerson(personID string) {
	k.predictor.Forget(personID)
	k.logger.Info("Forgot prediction model", zap.String("person", personID))
}

// ErrNotRunning is returned by operations that need a started kernel.
var ErrNotRunning = errors.New("kernel not running")

// TriggerThought starts one thought in the background, bypassing the idle
// window. It fails fast when a thought is already in flight.
func (k *Kernel) TriggerThought() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if !k.isRunning {
		return ErrNotRunning
	}

	switch k.scheduler.State() {
	case thought.StateStopped:
		return thought.ErrSchedulerStopped
	case thought.StateGenerating, thought.StateStreaming:
		return thought.ErrThoughtInFlight
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		if err := k.scheduler.GenerateThought(k.ctx); err != nil &&
			!errors.Is(err, thought.ErrThoughtInFlight) && !errors.Is(err, thought.ErrSchedulerStopped) &&
			!errors.Is(err, context.Canceled) {
			k.logger.Warn("Triggered thought failed", zap.Error(err))
		}
	}()
	return nil
}

// StartScheduler restarts a scheduler stopped through StopScheduler. It
// refuses once the kernel itself is stopped so no tick loop outlives Stop.
func (k *Kernel) StartScheduler() error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if !k.isRunning {
		return ErrNotRunning
	}
	return k.scheduler.Start()
}

// StateView is the externally visible state of the agent.
type StateView struct {
	Affect          affect.Snapshot   `json:"affect"`
	DominantEmotion string            `json:"dominant_emotion"`
	Scheduler       thought.Stats     `json:"scheduler"`
	TotalThoughts   int               `json:"total_thoughts"`
	PendingProposal *selfmod.Proposal `json:"pending_proposal,omitempty"`
	Subscribers     int               `json:"subscribers"`
}

// State returns a consistent-enough view of every component.
func (k *Kernel) State() StateView {
	snap := k.core.Snapshot()
	return StateView{
		Affect:          snap,
		DominantEmotion: snap.DominantEmotion(),
		Scheduler:       k.scheduler.Stats(),
		TotalThoughts:   k.journal.State().TotalThoughts,
		PendingProposal: k.proposer.Pending(),
		Subscribers:     k.bus.Subscribers(),
	}
}

func (k *Kernel) Core() *affect.Core { return k.core }

func (k *Kernel) Scheduler() *thought.Scheduler { return k.scheduler }

func (k *Kernel) Journal() *journal.Journal { return k.journal }

func (k *Kernel) Search() *search.Index { return k.index }

func (k *Kernel) Proposer() *selfmod.Proposer { return k.proposer }

func (k *Kernel) Bus() *events.Bus { return k.bus }

func (k *Kernel) Memories() *memory.RecentBuffer { return k.memories }
