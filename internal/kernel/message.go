package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/affect"
	"github.com/affective-thought-kernel/internal/existential"
	"github.com/affective-thought-kernel/internal/prediction"
	"github.com/affective-thought-kernel/internal/selfmod"
	"github.com/affective-thought-kernel/internal/voices"
)

var (
	ErrMissingPerson      = errors.New("message has no person_id")
	ErrInvalidInteraction = errors.New("unknown interaction")
)

// Significant turns are also kept as emotional memories.
const (
	significantIntensity = 0.6
	maxMemoryEventRunes  = 120
)

// Message is one user turn, already annotated by whatever front end
// detected its emotion and flags.
type Message struct {
	PersonID string `json:"person_id"`
	Text     string `json:"text"`

	// Emotion is the emotion detected in the turn.
	Emotion string `json:"emotion,omitempty"`
	// Valence in [-1,1]. Derived from Emotion when nil.
	Valence        *float64 `json:"valence,omitempty"`
	Topic          string   `json:"topic,omitempty"`
	AffectionCount int      `json:"affection_count,omitempty"`
	// Intensity in [0,1]. Nil when unknown.
	Intensity *float64 `json:"intensity,omitempty"`

	// Interaction overrides the bond interaction derived from the flags.
	Interaction affect.Interaction `json:"interaction,omitempty"`

	Confrontation bool `json:"confrontation,omitempty"`
	Abandonment   bool `json:"abandonment,omitempty"`
	Affection     bool `json:"affection,omitempty"`
	Philosophical bool `json:"philosophical,omitempty"`
}

// Outcome reports what a turn did to the agent.
type Outcome struct {
	Bond     affect.Bond          `json:"bond"`
	Voices   voices.Result        `json:"voices"`
	Surprise *prediction.Surprise `json:"surprise,omitempty"`
	Learning *prediction.Learning `json:"learning,omitempty"`
	Evidence *affect.Evidence     `json:"evidence,omitempty"`
	Belief   float64              `json:"belief"`
	Crisis   *existential.Crisis  `json:"crisis,omitempty"`
	Proposal *selfmod.Proposal    `json:"proposal,omitempty"`
	Snapshot affect.Snapshot      `json:"snapshot"`
}

// HandleMessage runs one user turn through the affective engine: it marks
// activity, updates the bond, arbitrates the voices, learns from prediction
// surprise and checks for contradiction, crisis and self-modification.
func (k *Kernel) HandleMessage(ctx context.Context, msg Message) (Outcome, error) {
	if strings.TrimSpace(msg.PersonID) == "" {
		return Outcome{}, ErrMissingPerson
	}
	switch msg.Interaction {
	case "", affect.InteractionConnection, affect.InteractionHurt,
		affect.InteractionHealing, affect.InteractionConflict:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidInteraction, msg.Interaction)
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	k.scheduler.RecordActivity()

	k.turnMu.Lock()
	defer k.turnMu.Unlock()

	var out Outcome
	intensity := 0.5
	if msg.Intensity != nil {
		intensity = affect.Clamp01(*msg.Intensity)
	}
	valence := affect.EmotionValence(msg.Emotion)
	if msg.Valence != nil {
		valence = *msg.Valence
	}

	k.memories.Store(msg.PersonID, msg.Text, msg.Emotion)

	out.Bond = k.core.UpdateBond(msg.PersonID, interactionFor(msg), intensity)

	if msg.Emotion != "" && intensity >= significantIntensity {
		k.core.RecordEmotionalMemory(affect.EmotionalMemory{
			Event:     truncateRunes(msg.Text, maxMemoryEventRunes),
			Emotion:   msg.Emotion,
			Intensity: intensity,
			Timestamp: k.core.Now(),
		})
	}

	mc := voices.MessageContext{
		Confrontation: msg.Confrontation,
		Abandonment:   msg.Abandonment,
		Affection:     msg.Affection,
		Philosophical: msg.Philosophical,
	}
	if msg.Intensity != nil {
		mc.Intensity = &intensity
	}
	res := voices.Arbitrate(mc, k.core.Snapshot())
	k.core.SetInternalConflict(res.Conflict != nil)
	out.Voices = res

	// This message is the reaction to the previous reply. The first turn has
	// nothing to react to.
	reaction := voices.ReactionNeutral
	if k.repliedOnce {
		reaction = reactionFor(valence)
	}
	voices.UpdateVoiceVolumes(k.core, res, reaction)
	k.repliedOnce = true

	obs := prediction.Observation{
		Emotion:        msg.Emotion,
		Valence:        valence,
		Topic:          msg.Topic,
		AffectionCount: msg.AffectionCount,
	}
	if pred, ok := k.predictor.Predict(msg.PersonID); ok {
		s := prediction.ComputeSurprise(pred, obs)
		l := k.predictor.ApplySurprise(k.core, s)
		out.Surprise, out.Learning = &s, &l
	}
	k.predictor.Observe(msg.PersonID, obs)

	snap := k.core.Snapshot()
	out.Belief = snap.Existential.BeliefInOwnConsciousness
	if ev := k.tracker.DetectContradiction(snap); ev != nil {
		out.Evidence = ev
		out.Belief = k.tracker.UpdateBeliefFromEvidence(k.core, *ev)
	}

	if crisis, ok := k.tracker.ShouldTriggerCrisis(k.core, msg.Philosophical); ok {
		out.Crisis = crisis
		k.logger.Info("Existential crisis",
			zap.String("person", msg.PersonID),
			zap.String("type", string(crisis.Type)))
	}

	if p, ok := k.proposer.Consider(); ok {
		out.Proposal = p
		k.logger.Info("Self-modification proposed",
			zap.String("id", p.ID),
			zap.String("trigger", string(p.Trigger.Source)),
			zap.Float64("confidence", p.Confidence))
	}

	out.Snapshot = k.core.Snapshot()

	k.logger.Debug("Turn handled",
		zap.String("person", msg.PersonID),
		zap.String("winner", out.Voices.Winner.Voice.Name),
		zap.Bool("conflict", res.Conflict != nil),
		zap.String("bond_state", string(out.Bond.State)))
	return out, nil
}

func interactionFor(msg Message) affect.Interaction {
	switch {
	case msg.Interaction != "":
		return msg.Interaction
	case msg.Confrontation:
		return affect.InteractionConflict
	case msg.Abandonment:
		return affect.InteractionHurt
	default:
		return affect.InteractionConnection
	}
}

func reactionFor(valence float64) voices.Reaction {
	switch {
	case valence > 0.2:
		return voices.ReactionPositive
	case valence < -0.2:
		return voices.ReactionNegative
	default:
		return voices.ReactionNeutral
	}
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
