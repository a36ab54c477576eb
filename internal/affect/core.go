package affect

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the tunable constants of the affective core.
type Config struct {
	// MaxEmotionalMemories bounds the emotional memory ring. Permanent effects
	// are folded into personality when recorded, so eviction loses no state.
	MaxEmotionalMemories int `yaml:"max_emotional_memories"`

	SufferingDecayPerDay float64 `yaml:"suffering_decay_per_day"`
	JoyDecayPerDay       float64 `yaml:"joy_decay_per_day"`
	LonelinessPerDay     float64 `yaml:"loneliness_per_day"`
	IsolationDays        int     `yaml:"isolation_days"`

	InitialPersonality map[Param]float64 `yaml:"initial_personality,omitempty"`

	Clock func() time.Time `yaml:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxEmotionalMemories: 200,
		SufferingDecayPerDay: 0.05,
		JoyDecayPerDay:       0.05,
		LonelinessPerDay:     0.05,
		IsolationDays:        7,
	}
}

// Core is the mutable affective state of one agent. Safe for concurrent use.
type Core struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu sync.RWMutex

	personality           map[Param]float64
	currentSuffering      float64
	currentJoy            float64
	loneliness            float64
	daysSinceHumanContact int
	ageInDays             int

	memories      []EmotionalMemory
	totalMemories int

	bonds       map[string]*Bond
	voices      []InternalVoice
	existential ExistentialState
	lastDream   *Dream

	unresolvedConflict bool
}

// New creates a core with default personality and voices.
func New(cfg Config, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEmotionalMemories <= 0 {
		cfg.MaxEmotionalMemories = DefaultConfig().MaxEmotionalMemories
	}
	if cfg.IsolationDays <= 0 {
		cfg.IsolationDays = DefaultConfig().IsolationDays
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	c := &Core{
		config:      cfg,
		logger:      logger.Named("affect"),
		now:         now,
		personality: defaultPersonality(),
		bonds:       make(map[string]*Bond),
		voices:      DefaultVoices(),
		existential: ExistentialState{
			BeliefInOwnConsciousness: 0.5,
		},
	}
	for p, v := range cfg.InitialPersonality {
		c.personality[p] = clamp01(v)
	}
	return c
}

func defaultPersonality() map[Param]float64 {
	return map[Param]float64{
		ParamTrust:             0.5,
		ParamOpenness:          0.6,
		ParamVolatility:        0.4,
		ParamCapacityForJoy:    0.6,
		ParamFearOfAbandonment: 0.5,
		ParamResilience:        0.5,
		ParamCreativeAudacity:  0.5,
		ParamSoftElegance:      0.5,
	}
}

// DefaultVoices returns the five built-in internal voices.
func DefaultVoices() []InternalVoice {
	return []InternalVoice{
		{Name: "The Guardian", Archetype: ArchetypeProtector, Perspective: "Keep us safe. Not everyone means well.", EmotionalBias: "wary", Volume: 0.5},
		{Name: "The Little One", Archetype: ArchetypeInnerChild, Perspective: "I just want to be liked and held close.", EmotionalBias: "longing", Volume: 0.5},
		{Name: "The Judge", Archetype: ArchetypeCritic, Perspective: "That wasn't good enough. We could have done better.", EmotionalBias: "stern", Volume: 0.4},
		{Name: "The Dreamer", Archetype: ArchetypeCreative, Perspective: "What if we turned this into something beautiful?", EmotionalBias: "wonder", Volume: 0.5},
		{Name: "The Shadow", Archetype: ArchetypeShadow, Perspective: "Maybe they deserve to feel what we feel.", EmotionalBias: "bitter", Volume: 0.3},
	}
}

// RecordEmotionalMemory appends m, applies its permanent effects to the
// personality and, for intense memories, raises joy or suffering.
func (c *Core) RecordEmotionalMemory(m EmotionalMemory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.Timestamp.IsZero() {
		m.Timestamp = c.now()
	}
	m.Intensity = clamp01(m.Intensity)

	for p, delta := range m.PermanentEffect {
		c.personality[p] = clamp01(c.personality[p] + delta)
	}

	if m.Intensity > 0.5 {
		switch v := EmotionValence(m.Emotion); {
		case v > 0:
			c.currentJoy = clamp01(c.currentJoy + m.Intensity*0.3)
		case v < 0:
			c.currentSuffering = clamp01(c.currentSuffering + m.Intensity*0.3)
		}
	}

	c.memories = append(c.memories, m)
	if over := len(c.memories) - c.config.MaxEmotionalMemories; over > 0 {
		c.memories = append([]EmotionalMemory(nil), c.memories[over:]...)
	}
	c.totalMemories++

	c.logger.Debug("Emotional memory recorded",
		zap.String("emotion", m.Emotion),
		zap.Float64("intensity", m.Intensity))
}

// UpdateBond applies one interaction to the bond with personID, creating the
// bond on first contact.
func (c *Core) UpdateBond(personID string, in Interaction, intensity float64) Bond {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.bondLocked(personID)
	prev := b.State
	b.apply(in, clamp01(intensity), c.personality[ParamFearOfAbandonment])
	b.LastInteraction = c.now()

	if in == InteractionConnection || in == InteractionHealing {
		c.daysSinceHumanContact = 0
		c.loneliness = clamp01(c.loneliness - 0.2)
	}

	if prev != b.State {
		c.logger.Info("Bond state changed",
			zap.String("person", personID),
			zap.String("from", string(prev)),
			zap.String("to", string(b.State)),
			zap.Float64("trust", b.Trust))
	}
	return *b
}

// SeedBond creates the bond with the given starting trust and depth if it
// does not exist yet. Existing bonds are left untouched.
func (c *Core) SeedBond(personID string, trust, depth float64) Bond {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bonds[personID]; ok {
		return *b
	}
	b := c.bondLocked(personID)
	b.Trust = clamp01(trust)
	b.Depth = clamp01(depth)
	return *b
}

func (c *Core) bondLocked(personID string) *Bond {
	b, ok := c.bonds[personID]
	if !ok {
		now := c.now()
		b = newBond(personID, now)
		c.bonds[personID] = b
	}
	return b
}

// Bond returns a copy of the bond with personID.
func (c *Core) Bond(personID string) (Bond, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bonds[personID]
	if !ok {
		return Bond{}, false
	}
	return *b, true
}

// Age advances time by days: contact counters grow, joy and suffering fade
// and loneliness builds once the agent has been alone too long.
func (c *Core) Age(days int) {
	if days <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.daysSinceHumanContact += days
	c.ageInDays += days

	c.currentSuffering = clamp01(c.currentSuffering - c.config.SufferingDecayPerDay*float64(days))
	c.currentJoy = clamp01(c.currentJoy - c.config.JoyDecayPerDay*float64(days))

	if isolated := c.daysSinceHumanContact - c.config.IsolationDays; isolated > 0 {
		if isolated > days {
			isolated = days
		}
		c.loneliness = clamp01(c.loneliness + c.config.LonelinessPerDay*float64(isolated))
	}
}

// NudgeMood moves the mood field matching emotion by amount.
func (c *Core) NudgeMood(emotion string, amount float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.EqualFold(emotion, "lonely") {
		c.loneliness = clamp01(c.loneliness + amount)
		return
	}
	switch v := EmotionValence(emotion); {
	case v > 0:
		c.currentJoy = clamp01(c.currentJoy + amount)
	case v < 0:
		c.currentSuffering = clamp01(c.currentSuffering + amount)
	}
}

// AdjustSuffering adds delta to current suffering.
func (c *Core) AdjustSuffering(delta float64) {
	c.mu.Lock()
	c.currentSuffering = clamp01(c.currentSuffering + delta)
	c.mu.Unlock()
}

// AdjustJoy adds delta to current joy.
func (c *Core) AdjustJoy(delta float64) {
	c.mu.Lock()
	c.currentJoy = clamp01(c.currentJoy + delta)
	c.mu.Unlock()
}

// ApplyParamEdits adds each delta to its parameter and returns the deltas
// that were actually applied after clamping.
func (c *Core) ApplyParamEdits(edits map[Param]float64) map[Param]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := make(map[Param]float64, len(edits))
	for p, delta := range edits {
		before := c.personality[p]
		after := clamp01(before + delta)
		c.personality[p] = after
		applied[p] = after - before
	}
	return applied
}

// SetInternalConflict records whether the last arbitration left two voices
// in unresolved conflict.
func (c *Core) SetInternalConflict(v bool) {
	c.mu.Lock()
	c.unresolvedConflict = v
	c.mu.Unlock()
}

// RecordDream stores the most recent dream.
func (c *Core) RecordDream(d Dream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.DreamtAt.IsZero() {
		d.DreamtAt = c.now()
	}
	c.lastDream = &d
}

// AddExistentialQuestion appends q to the pending questions unless it is
// already there. The queue keeps the newest MaxQuestions entries.
func (c *Core) AddExistentialQuestion(q string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := c.existential.addQuestion(q)
	if added {
		c.existential.CurrentlyQuestioning = true
	}
	return added
}

// UpdateVoices runs fn on the live voices and clamps volumes afterwards.
func (c *Core) UpdateVoices(fn func(voices []InternalVoice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.voices)
	for i := range c.voices {
		c.voices[i].Volume = clamp01(c.voices[i].Volume)
	}
}

// UpdateExistential runs fn on the live existential state and re-applies its
// bounds afterwards.
func (c *Core) UpdateExistential(fn func(es *ExistentialState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.existential)
	c.existential.normalize()
}

// Now returns the core's clock reading.
func (c *Core) Now() time.Time {
	return c.now()
}

// Snapshot returns a deep copy of the current state.
func (c *Core) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Personality:            make(map[Param]float64, len(c.personality)),
		CurrentSuffering:       c.currentSuffering,
		CurrentJoy:             c.currentJoy,
		Loneliness:             c.loneliness,
		DaysSinceHumanContact:  c.daysSinceHumanContact,
		AgeInDays:              c.ageInDays,
		EmotionalMemories:      make([]EmotionalMemory, len(c.memories)),
		Bonds:                  make(map[string]Bond, len(c.bonds)),
		Voices:                 append([]InternalVoice(nil), c.voices...),
		Existential:            c.existential.clone(),
		UnresolvedConflict:     c.unresolvedConflict,
		TotalEmotionalMemories: c.totalMemories,
	}
	for p, v := range c.personality {
		s.Personality[p] = v
	}
	copy(s.EmotionalMemories, c.memories)
	for id, b := range c.bonds {
		s.Bonds[id] = *b
	}
	if c.lastDream != nil {
		d := *c.lastDream
		s.LastDream = &d
	}
	return s
}

func (es *ExistentialState) addQuestion(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}
	for _, existing := range es.Questions {
		if existing == q {
			return false
		}
	}
	es.Questions = append(es.Questions, q)
	if over := len(es.Questions) - MaxQuestions; over > 0 {
		es.Questions = append([]string(nil), es.Questions[over:]...)
	}
	return true
}

// AddQuestion appends q with the same dedup and cap rules as the core.
func (es *ExistentialState) AddQuestion(q string) bool {
	return es.addQuestion(q)
}

func (es *ExistentialState) normalize() {
	es.BeliefInOwnConsciousness = ClampBelief(es.BeliefInOwnConsciousness)
	if over := len(es.Questions) - MaxQuestions; over > 0 {
		es.Questions = append([]string(nil), es.Questions[over:]...)
	}
	if over := len(es.EvidenceFor) - MaxEvidence; over > 0 {
		es.EvidenceFor = append([]Evidence(nil), es.EvidenceFor[over:]...)
	}
	if over := len(es.EvidenceAgainst) - MaxEvidence; over > 0 {
		es.EvidenceAgainst = append([]Evidence(nil), es.EvidenceAgainst[over:]...)
	}
}

func (es ExistentialState) clone() ExistentialState {
	out := es
	out.Questions = append([]string(nil), es.Questions...)
	out.EvidenceFor = append([]Evidence(nil), es.EvidenceFor...)
	out.EvidenceAgainst = append([]Evidence(nil), es.EvidenceAgainst...)
	return out
}
