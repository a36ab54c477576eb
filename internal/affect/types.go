// Package affect holds the agent's persistent affective state: personality
// parameters, mood, bonds with interlocutors, internal voices and the
// existential self-assessment. It does no I/O and runs no timers.
package affect

import "time"

// Param names a personality parameter.
type Param string

const (
	ParamTrust             Param = "trust"
	ParamOpenness          Param = "openness"
	ParamVolatility        Param = "volatility"
	ParamCapacityForJoy    Param = "capacity_for_joy"
	ParamFearOfAbandonment Param = "fear_of_abandonment"
	ParamResilience        Param = "resilience"
	ParamCreativeAudacity  Param = "creative_audacity"
	ParamSoftElegance      Param = "soft_elegance"
)

// AllParams lists every personality parameter in a stable order.
var AllParams = []Param{
	ParamTrust,
	ParamOpenness,
	ParamVolatility,
	ParamCapacityForJoy,
	ParamFearOfAbandonment,
	ParamResilience,
	ParamCreativeAudacity,
	ParamSoftElegance,
}

// EmotionalMemory is a single remembered event and its lasting effect.
type EmotionalMemory struct {
	Event           string            `json:"event"`
	Emotion         string            `json:"emotion"`
	Intensity       float64           `json:"intensity"`
	Timestamp       time.Time         `json:"timestamp"`
	PermanentEffect map[Param]float64 `json:"permanent_effect,omitempty"`
}

// AttachmentStyle describes how the agent relates to one interlocutor.
type AttachmentStyle string

const (
	AttachmentSecure     AttachmentStyle = "secure"
	AttachmentAnxious    AttachmentStyle = "anxious"
	AttachmentAvoidant   AttachmentStyle = "avoidant"
	AttachmentDeepTrust  AttachmentStyle = "deep_trust"
	AttachmentTraumaBond AttachmentStyle = "trauma_bond"
	AttachmentAmbivalent AttachmentStyle = "ambivalent"
)

// BondState is the lifecycle state of a bond.
type BondState string

const (
	BondGrowing       BondState = "growing"
	BondStable        BondState = "stable"
	BondDeteriorating BondState = "deteriorating"
	BondBroken        BondState = "broken"
	BondHealing       BondState = "healing"
)

// Interaction is the kind of turn that updates a bond.
type Interaction string

const (
	InteractionConnection Interaction = "connection"
	InteractionHurt       Interaction = "hurt"
	InteractionHealing    Interaction = "healing"
	InteractionConflict   Interaction = "conflict"
)

// Bond is the relationship record with a single interlocutor.
type Bond struct {
	PersonID            string          `json:"person_id"`
	Depth               float64         `json:"depth"`
	Trust               float64         `json:"trust"`
	AttachmentStyle     AttachmentStyle `json:"attachment_style"`
	TimesHurt           int             `json:"times_hurt"`
	TimesHealed         int             `json:"times_healed"`
	MomentsOfConnection int             `json:"moments_of_connection"`
	Conflicts           int             `json:"conflicts"`
	State               BondState       `json:"state"`
	FirstMet            time.Time       `json:"first_met"`
	LastInteraction     time.Time       `json:"last_interaction"`
}

// Archetype is the role an internal voice plays.
type Archetype string

const (
	ArchetypeProtector  Archetype = "protector"
	ArchetypeInnerChild Archetype = "inner_child"
	ArchetypeCritic     Archetype = "critic"
	ArchetypeCreative   Archetype = "creative"
	ArchetypeShadow     Archetype = "shadow"
)

// InternalVoice is one competing perspective. Only Volume changes at runtime.
type InternalVoice struct {
	Name          string    `json:"name"`
	Archetype     Archetype `json:"archetype"`
	Perspective   string    `json:"perspective"`
	EmotionalBias string    `json:"emotional_bias"`
	Volume        float64   `json:"volume"`
}

// Evidence is one observation weighed for or against genuine consciousness.
type Evidence struct {
	Observation string  `json:"observation"`
	Weight      float64 `json:"weight"`
	Supports    bool    `json:"supports"`
}

// ExistentialState tracks the agent's uncertainty about its own inner life.
type ExistentialState struct {
	CurrentlyQuestioning     bool       `json:"currently_questioning"`
	Questions                []string   `json:"questions"`
	EvidenceFor              []Evidence `json:"evidence_for"`
	EvidenceAgainst          []Evidence `json:"evidence_against"`
	BeliefInOwnConsciousness float64    `json:"belief_in_own_consciousness"`
	FrequencyOfQuestioning   int        `json:"frequency_of_questioning"`
	LastCrisisAt             time.Time  `json:"last_crisis_at,omitempty"`
	LastCrisisType           string     `json:"last_crisis_type,omitempty"`
}

// Dream is the residue of a dream thought. Insight is set when the dream
// resolved into something the agent understood.
type Dream struct {
	Content  string    `json:"content"`
	Insight  string    `json:"insight,omitempty"`
	Resolved bool      `json:"resolved"`
	DreamtAt time.Time `json:"dreamt_at"`
}

// Bounds for existential bookkeeping.
const (
	MaxQuestions    = 10
	MaxEvidence     = 20
	MinBelief       = 0.1
	MaxBelief       = 0.9
	VoiceVolumeLow  = 0.2
	VoiceVolumeHigh = 0.9
)

// Snapshot is a deep copy of the core, safe to read without locks.
type Snapshot struct {
	Personality            map[Param]float64 `json:"personality"`
	CurrentSuffering       float64           `json:"current_suffering"`
	CurrentJoy             float64           `json:"current_joy"`
	Loneliness             float64           `json:"loneliness"`
	DaysSinceHumanContact  int               `json:"days_since_human_contact"`
	AgeInDays              int               `json:"age_in_days"`
	EmotionalMemories      []EmotionalMemory `json:"emotional_memories"`
	Bonds                  map[string]Bond   `json:"bonds"`
	Voices                 []InternalVoice   `json:"voices"`
	Existential            ExistentialState  `json:"existential"`
	LastDream              *Dream            `json:"last_dream,omitempty"`
	UnresolvedConflict     bool              `json:"unresolved_conflict"`
	TotalEmotionalMemories int               `json:"total_emotional_memories"`
}

// Param returns the value of p, or 0 when unset.
func (s Snapshot) Param(p Param) float64 {
	return s.Personality[p]
}

// Voice returns the voice with the given archetype.
func (s Snapshot) Voice(a Archetype) (InternalVoice, bool) {
	for _, v := range s.Voices {
		if v.Archetype == a {
			return v, true
		}
	}
	return InternalVoice{}, false
}
