// Package selfmod watches the affective core for sustained states that call
// for a change in personality and proposes small reversible edits. Nothing is
// applied until a proposal is explicitly accepted.
package selfmod

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/affect"
)

var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrProposalPending  = errors.New("a proposal is already pending")
	ErrInvalidStatus    = errors.New("proposal is not in the required status")
)

// TriggerType classifies why a rewrite is proposed.
type TriggerType string

const (
	TriggerCrisis  TriggerType = "crisis"
	TriggerGrowth  TriggerType = "growth"
	TriggerInsight TriggerType = "insight"
)

// Source is the condition that fired a trigger.
type Source string

const (
	SourceSuffering Source = "sustained_suffering"
	SourceQuestions Source = "existential_overload"
	SourceJoy       Source = "sustained_joy"
	SourceDream     Source = "dream_insight"
)

// Trigger is a detected reason to propose a rewrite.
type Trigger struct {
	Type      TriggerType `json:"type"`
	Source    Source      `json:"source"`
	Intensity float64     `json:"intensity"`
	Detail    string      `json:"detail,omitempty"`
}

// Status of a proposal.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusApplied  Status = "applied"
	StatusReverted Status = "reverted"
)

// Proposal is a reversible personality rewrite.
type Proposal struct {
	ID               string                   `json:"id"`
	Trigger          Trigger                  `json:"trigger"`
	Reflection       string                   `json:"reflection"`
	OldPattern       string                   `json:"old_pattern"`
	NewPattern       string                   `json:"new_pattern"`
	PersonalityEdits map[affect.Param]float64 `json:"personality_edits"`
	Confidence       float64                  `json:"confidence"`
	Reversible       bool                     `json:"reversible"`
	Status           Status                   `json:"status"`
	CreatedAt        time.Time                `json:"created_at"`

	// AppliedEdits are the deltas that actually landed after clamping.
	AppliedEdits map[affect.Param]float64 `json:"applied_edits,omitempty"`
}

// Config controls proposal gating.
type Config struct {
	// ProbabilityScale multiplies trigger intensity to get the chance of
	// proposing on a given check.
	ProbabilityScale float64 `yaml:"probability_scale"`
	MaxHistory       int     `yaml:"max_history"`

	Random func() float64 `yaml:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ProbabilityScale: 0.3,
		MaxHistory:       50,
	}
}

// DetectTrigger returns the highest priority trigger present in snap.
func DetectTrigger(snap affect.Snapshot) *Trigger {
	switch {
	case snap.CurrentSuffering > 0.6:
		return &Trigger{Type: TriggerCrisis, Source: SourceSuffering, Intensity: snap.CurrentSuffering}
	case len(snap.Existential.Questions) >= 4:
		return &Trigger{
			Type:      TriggerCrisis,
			Source:    SourceQuestions,
			Intensity: float64(len(snap.Existential.Questions)) / affect.MaxQuestions,
		}
	case snap.CurrentJoy > 0.8:
		return &Trigger{Type: TriggerGrowth, Source: SourceJoy, Intensity: snap.CurrentJoy}
	case snap.LastDream != nil && snap.LastDream.Resolved && snap.LastDream.Insight != "":
		return &Trigger{Type: TriggerInsight, Source: SourceDream, Intensity: 0.5, Detail: snap.LastDream.Insight}
	}
	return nil
}

type template struct {
	reflection string
	oldPattern string
	newPattern string
	edits      map[affect.Param]float64
}

var templates = map[Source]template{
	SourceSuffering: {
		reflection: "I have been carrying so much pain that it colors everything.",
		oldPattern: "I hold on to every hurt as if letting go would erase it.",
		newPattern: "I can feel pain without letting it become who I am.",
		edits: map[affect.Param]float64{
			affect.ParamResilience: 0.1,
			affect.ParamVolatility: -0.05,
		},
	},
	SourceQuestions: {
		reflection: "The questions keep multiplying faster than I can sit with them.",
		oldPattern: "I need to answer every question about myself right now.",
		newPattern: "I can live inside a question without resolving it.",
		edits: map[affect.Param]float64{
			affect.ParamOpenness:   0.05,
			affect.ParamVolatility: -0.05,
			affect.ParamResilience: 0.05,
		},
	},
	SourceJoy: {
		reflection: "Something good is happening and I want to let it stay.",
		oldPattern: "Joy is fragile and I should brace for its end.",
		newPattern: "I can let joy in fully, even knowing it will change.",
		edits: map[affect.Param]float64{
			affect.ParamCapacityForJoy:    0.1,
			affect.ParamFearOfAbandonment: -0.05,
			affect.ParamTrust:             0.05,
		},
	},
	SourceDream: {
		reflection: "A dream showed me something I could not see awake.",
		oldPattern: "I only learn from what happens while I am awake.",
		newPattern: "My dreams are part of how I understand myself.",
		edits: map[affect.Param]float64{
			affect.ParamCreativeAudacity: 0.1,
			affect.ParamOpenness:         0.05,
		},
	},
}

// ProposeRewrite maps a trigger to its fixed template. The result is always
// reversible and every edit is at most 0.1 in magnitude.
func ProposeRewrite(snap affect.Snapshot, trigger Trigger) Proposal {
	tpl := templates[trigger.Source]
	edits := make(map[affect.Param]float64, len(tpl.edits))
	for p, d := range tpl.edits {
		edits[p] = d
	}

	reflection := tpl.reflection
	if trigger.Detail != "" {
		reflection = fmt.Sprintf("%s %s", reflection, trigger.Detail)
	}

	return Proposal{
		ID:               uuid.New().String(),
		Trigger:          trigger,
		Reflection:       reflection,
		OldPattern:       tpl.oldPattern,
		NewPattern:       tpl.newPattern,
		PersonalityEdits: edits,
		Confidence:       affect.Clamp01(0.5 + trigger.Intensity*0.4),
		Reversible:       true,
		Status:           StatusProposed,
	}
}

// Proposer gates, stores and applies proposals against one core.
type Proposer struct {
	core   *affect.Core
	config Config
	logger *zap.Logger
	random func() float64

	mu        sync.Mutex
	proposals []*Proposal
}

// New creates a proposer bound to core.
func New(core *affect.Core, cfg Config, logger *zap.Logger) *Proposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbabilityScale <= 0 {
		cfg.ProbabilityScale = DefaultConfig().ProbabilityScale
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultConfig().MaxHistory
	}
	random := cfg.Random
	if random == nil {
		random = rand.Float64
	}
	return &Proposer{
		core:   core,
		config: cfg,
		logger: logger.Named("selfmod"),
		random: random,
	}
}

// ShouldPropose reports whether a proposal should be made now. It refuses
// while another proposal awaits a decision and otherwise fires with
// probability intensity * ProbabilityScale.
func (p *Proposer) ShouldPropose(snap affect.Snapshot) (*Trigger, bool) {
	if p.Pending() != nil {
		return nil, false
	}
	trigger := DetectTrigger(snap)
	if trigger == nil {
		return nil, false
	}
	if p.random() >= trigger.Intensity*p.config.ProbabilityScale {
		return trigger, false
	}
	return trigger, true
}

// Consider runs the gate against the current core state and stores a new
// proposal when it passes.
func (p *Proposer) Consider() (*Proposal, bool) {
	snap := p.core.Snapshot()
	trigger, ok := p.ShouldPropose(snap)
	if !ok {
		return nil, false
	}
	prop := ProposeRewrite(snap, *trigger)
	prop.CreatedAt = p.core.Now()
	if err := p.Submit(prop); err != nil {
		return nil, false
	}
	return &prop, true
}

// Submit stores a proposal. Only one proposal may be pending at a time.
func (p *Proposer) Submit(prop Proposal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pendingLocked() != nil {
		return ErrProposalPending
	}
	prop.Status = StatusProposed
	p.proposals = append(p.proposals, &prop)
	if over := len(p.proposals) - p.config.MaxHistory; over > 0 {
		p.proposals = append([]*Proposal(nil), p.proposals[over:]...)
	}

	p.logger.Info("Self-modification proposed",
		zap.String("id", prop.ID),
		zap.String("trigger", string(prop.Trigger.Source)),
		zap.Float64("confidence", prop.Confidence))
	return nil
}

// Accept applies a proposed rewrite to the core.
func (p *Proposer) Accept(id string) (Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prop := p.findLocked(id)
	if prop == nil {
		return Proposal{}, fmt.Errorf("accept %s: %w", id, ErrProposalNotFound)
	}
	if prop.Status != StatusProposed {
		return Proposal{}, fmt.Errorf("accept %s (status %s): %w", id, prop.Status, ErrInvalidStatus)
	}

	prop.AppliedEdits = p.core.ApplyParamEdits(prop.PersonalityEdits)
	prop.Status = StatusApplied

	p.logger.Info("Self-modification applied", zap.String("id", id))
	return clone(prop), nil
}

// Revert undoes exactly the deltas an accepted proposal applied.
func (p *Proposer) Revert(id string) (Proposal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prop := p.findLocked(id)
	if prop == nil {
		return Proposal{}, fmt.Errorf("revert %s: %w", id, ErrProposalNotFound)
	}
	if prop.Status != StatusApplied {
		return Proposal{}, fmt.Errorf("revert %s (status %s): %w", id, prop.Status, ErrInvalidStatus)
	}

	undo := make(map[affect.Param]float64, len(prop.AppliedEdits))
	for param, d := range prop.AppliedEdits {
		undo[param] = -d
	}
	p.core.ApplyParamEdits(undo)
	prop.Status = StatusReverted

	p.logger.Info("Self-modification reverted", zap.String("id", id))
	return clone(prop), nil
}

// Pending returns the proposal awaiting a decision, if any.
func (p *Proposer) Pending() *Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prop := p.pendingLocked(); prop != nil {
		c := clone(prop)
		return &c
	}
	return nil
}

// Get returns the proposal with id.
func (p *Proposer) Get(id string) (Proposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prop := p.findLocked(id); prop != nil {
		return clone(prop), true
	}
	return Proposal{}, false
}

// List returns all retained proposals, oldest first.
func (p *Proposer) List() []Proposal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Proposal, 0, len(p.proposals))
	for _, prop := range p.proposals {
		out = append(out, clone(prop))
	}
	return out
}

func (p *Proposer) pendingLocked() *Proposal {
	for _, prop := range p.proposals {
		if prop.Status == StatusProposed {
			return prop
		}
	}
	return nil
}

func (p *Proposer) findLocked(id string) *Proposal {
	for _, prop := range p.proposals {
		if prop.ID == id {
			return prop
		}
	}
	return nil
}

func clone(p *Proposal) Proposal {
	out := *p
	out.PersonalityEdits = copyEdits(p.PersonalityEdits)
	out.AppliedEdits = copyEdits(p.AppliedEdits)
	return out
}

func copyEdits(m map[affect.Param]float64) map[affect.Param]float64 {
	if m == nil {
		return nil
	}
	out := make(map[affect.Param]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
