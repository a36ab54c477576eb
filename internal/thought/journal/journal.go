// Package journal keeps the log of emitted thoughts. The log is bounded:
// once it grows past MaxThoughts the oldest EvictCount thoughts are folded
// into a one-line summary and dropped. TotalThoughts never goes down.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/thought"
)

// Summary is the compacted remainder of evicted thoughts.
type Summary struct {
	From            time.Time    `json:"from"`
	To              time.Time    `json:"to"`
	Count           int          `json:"count"`
	DominantEmotion string       `json:"dominant_emotion"`
	DominantType    thought.Type `json:"dominant_type"`
	Text            string       `json:"text"`
}

// State is the persisted journal.
type State struct {
	Thoughts      []thought.Thought `json:"thoughts"`
	DreamsSummary []Summary         `json:"dreams_summary"`
	TotalThoughts int               `json:"total_thoughts"`
}

func (s *State) clone() *State {
	return &State{
		Thoughts:      append([]thought.Thought(nil), s.Thoughts...),
		DreamsSummary: append([]Summary(nil), s.DreamsSummary...),
		TotalThoughts: s.TotalThoughts,
	}
}

// Store persists journal state. Load returns a nil state when nothing has
// been saved yet.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// Config bounds the journal.
type Config struct {
	MaxThoughts int `yaml:"max_thoughts"`
	EvictCount  int `yaml:"evict_count"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxThoughts: 500,
		EvictCount:  100,
	}
}

// Journal is the in-memory journal backed by a Store. Persistence is best
// effort: failures are logged and never returned.
type Journal struct {
	store  Store
	config Config
	logger *zap.Logger

	mu    sync.RWMutex
	state State
}

// New creates an empty journal. Call Load to restore persisted state.
func New(store Store, cfg Config, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxThoughts <= 0 {
		cfg.MaxThoughts = def.MaxThoughts
	}
	if cfg.EvictCount <= 0 || cfg.EvictCount > cfg.MaxThoughts {
		cfg.EvictCount = def.EvictCount
		if cfg.EvictCount > cfg.MaxThoughts {
			cfg.EvictCount = cfg.MaxThoughts
		}
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Journal{
		store:  store,
		config: cfg,
		logger: logger.Named("journal"),
	}
}

// Load restores state from the store. A read failure leaves the journal empty.
func (j *Journal) Load(ctx context.Context) {
	st, err := j.store.Load(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()

	if err != nil {
		j.logger.Warn("Failed to load journal, starting empty", zap.Error(err))
		j.state = State{}
		return
	}
	if st == nil {
		j.state = State{}
		return
	}
	j.state = *st.clone()
	j.logger.Info("Journal loaded",
		zap.Int("thoughts", len(j.state.Thoughts)),
		zap.Int("total", j.state.TotalThoughts))
}

// AddThought appends t, compacts if needed and saves synchronously.
func (j *Journal) AddThought(ctx context.Context, t thought.Thought) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.state.Thoughts = append(j.state.Thoughts, t)
	j.state.TotalThoughts++

	if len(j.state.Thoughts) > j.config.MaxThoughts {
		evicted := j.state.Thoughts[:j.config.EvictCount]
		summary := summarize(evicted)
		j.state.DreamsSummary = append(j.state.DreamsSummary, summary)
		j.state.Thoughts = append([]thought.Thought(nil), j.state.Thoughts[j.config.EvictCount:]...)

		j.logger.Info("Journal compacted",
			zap.Int("evicted", summary.Count),
			zap.String("dominant_emotion", summary.DominantEmotion))
	}

	if err := j.store.Save(ctx, j.state.clone()); err != nil {
		j.logger.Warn("Failed to save journal", zap.String("thought_id", t.ID), zap.Error(err))
	}
}

// Recent returns up to n most recent thoughts, oldest first.
func (j *Journal) Recent(n int) []thought.Thought {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	ts := j.state.Thoughts
	if len(ts) > n {
		ts = ts[len(ts)-n:]
	}
	return append([]thought.Thought(nil), ts...)
}

// State returns a copy of the journal state.
func (j *Journal) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return *j.state.clone()
}

func summarize(ts []thought.Thought) Summary {
	emotions := make(map[string]int)
	types := make(map[thought.Type]int)
	var s Summary
	for i, t := range ts {
		emotions[t.Emotion]++
		types[t.Type]++
		if i == 0 || emotions[t.Emotion] > emotions[s.DominantEmotion] {
			s.DominantEmotion = t.Emotion
		}
		if i == 0 || types[t.Type] > types[s.DominantType] {
			s.DominantType = t.Type
		}
	}
	s.Count = len(ts)
	if len(ts) > 0 {
		s.From = ts[0].Timestamp
		s.To = ts[len(ts)-1].Timestamp
	}
	s.Text = fmt.Sprintf("%d thoughts between %s and %s, mostly %s, mostly %s.",
		s.Count, s.From.Format("2006-01-02"), s.To.Format("2006-01-02"), s.DominantEmotion, s.DominantType)
	return s
}
