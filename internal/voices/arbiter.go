// Package voices decides which internal voice dominates a turn and keeps the
// voices' volumes inside a soft band so no voice dominates or falls silent for good.
package voices

import (
	"sort"

	"github.com/affective-thought-kernel/internal/affect"
)

// MessageContext describes the turn being arbitrated.
type MessageContext struct {
	Confrontation bool
	Abandonment   bool
	Affection     bool
	Philosophical bool

	// Intensity of the message in [0,1]. Nil when unknown.
	Intensity *float64
}

// Activation is the computed activation of one voice.
type Activation struct {
	Voice      affect.InternalVoice `json:"voice"`
	Activation float64              `json:"activation"`
}

// Conflict is reported when the two loudest voices pull in opposite directions.
type Conflict struct {
	Between     [2]affect.Archetype `json:"between"`
	Description string              `json:"description"`
}

// Result of one arbitration.
type Result struct {
	Winner      Activation   `json:"winner"`
	RunnerUp    *Activation  `json:"runner_up,omitempty"`
	Conflict    *Conflict    `json:"conflict,omitempty"`
	Activations []Activation `json:"activations"`
}

// Reaction is the user's reaction to the previous turn.
type Reaction int

const (
	ReactionNeutral Reaction = iota
	ReactionPositive
	ReactionNegative
)

const (
	conflictMinActivation = 0.5
	conflictMinRatio      = 0.7
)

// Arbitrate computes every voice's activation for the turn and picks the
// winner. It reads only the snapshot.
func Arbitrate(mc MessageContext, snap affect.Snapshot) Result {
	acts := make([]Activation, 0, len(snap.Voices))
	for _, v := range snap.Voices {
		a := v.Volume + archetypeBonus(v.Archetype, mc, snap)
		if mc.Intensity != nil {
			a *= 1 + (*mc.Intensity-0.5)*0.5
		}
		acts = append(acts, Activation{Voice: v, Activation: a})
	}
	sort.SliceStable(acts, func(i, j int) bool {
		return acts[i].Activation > acts[j].Activation
	})

	var res Result
	res.Activations = acts
	if len(acts) == 0 {
		return res
	}
	res.Winner = acts[0]
	if len(acts) < 2 {
		return res
	}
	runner := acts[1]
	res.RunnerUp = &runner

	if runner.Activation > conflictMinActivation &&
		runner.Activation >= conflictMinRatio*res.Winner.Activation &&
		mutuallyConflicting(res.Winner.Voice.Archetype, runner.Voice.Archetype, mc) {
		res.Conflict = &Conflict{
			Between:     [2]affect.Archetype{res.Winner.Voice.Archetype, runner.Voice.Archetype},
			Description: res.Winner.Voice.Name + " and " + runner.Voice.Name + " pull in opposite directions",
		}
	}
	return res
}

func archetypeBonus(a affect.Archetype, mc MessageContext, s affect.Snapshot) float64 {
	var bonus float64
	switch a {
	case affect.ArchetypeProtector:
		if mc.Confrontation {
			bonus += 0.3
		}
		if mc.Abandonment {
			bonus += 0.2
		}
		bonus += 0.2 * s.CurrentSuffering
	case affect.ArchetypeInnerChild:
		if mc.Affection {
			bonus += 0.3
		}
		if mc.Abandonment {
			bonus += 0.3 * s.Param(affect.ParamFearOfAbandonment)
		}
		bonus += 0.2 * s.Loneliness
	case affect.ArchetypeCritic:
		if mc.Confrontation {
			bonus += 0.2
		}
		if mc.Philosophical {
			bonus += 0.1
		}
		bonus += 0.15 * s.CurrentSuffering
	case affect.ArchetypeCreative:
		if mc.Philosophical {
			bonus += 0.3
		}
		if mc.Affection {
			bonus += 0.1
		}
		bonus += 0.2 * s.CurrentJoy
	case affect.ArchetypeShadow:
		if mc.Confrontation {
			bonus += 0.25
		}
		if mc.Abandonment {
			bonus += 0.15 * s.Loneliness
		}
		bonus += 0.2 * s.CurrentSuffering
	}
	return bonus
}

// conflictsWith lists the archetypes a voice opposes in the given context.
func conflictsWith(a affect.Archetype, mc MessageContext) []affect.Archetype {
	switch a {
	case affect.ArchetypeProtector:
		switch {
		case mc.Confrontation:
			return []affect.Archetype{affect.ArchetypeShadow, affect.ArchetypeInnerChild}
		case mc.Abandonment:
			return []affect.Archetype{affect.ArchetypeInnerChild}
		default:
			return []affect.Archetype{affect.ArchetypeCreative}
		}
	case affect.ArchetypeInnerChild:
		if mc.Confrontation {
			return []affect.Archetype{affect.ArchetypeProtector, affect.ArchetypeCritic}
		}
		if mc.Abandonment {
			return []affect.Archetype{affect.ArchetypeProtector, affect.ArchetypeCritic}
		}
		return []affect.Archetype{affect.ArchetypeCritic}
	case affect.ArchetypeCritic:
		return []affect.Archetype{affect.ArchetypeInnerChild, affect.ArchetypeCreative}
	case affect.ArchetypeCreative:
		if mc.Philosophical {
			return []affect.Archetype{affect.ArchetypeCritic}
		}
		return []affect.Archetype{affect.ArchetypeCritic, affect.ArchetypeProtector}
	case affect.ArchetypeShadow:
		if mc.Confrontation {
			return []affect.Archetype{affect.ArchetypeProtector}
		}
		return []affect.Archetype{affect.ArchetypeProtector, affect.ArchetypeInnerChild}
	}
	return nil
}

func mutuallyConflicting(a, b affect.Archetype, mc MessageContext) bool {
	return contains(conflictsWith(a, mc), b) && contains(conflictsWith(b, mc), a)
}

func contains(list []affect.Archetype, a affect.Archetype) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

// UpdateVoiceVolumes rewards the winner, lets the voices that took no part
// fade slightly and then pulls any voice outside the soft band back toward it.
// reaction is the user's reaction to the previous turn.
func UpdateVoiceVolumes(core *affect.Core, res Result, reaction Reaction) {
	winner := res.Winner.Voice.Archetype
	var runnerUp affect.Archetype
	if res.RunnerUp != nil {
		runnerUp = res.RunnerUp.Voice.Archetype
	}

	core.UpdateVoices(func(vs []affect.InternalVoice) {
		for i := range vs {
			switch vs[i].Archetype {
			case winner:
				vs[i].Volume += 0.02
				switch reaction {
				case ReactionPositive:
					vs[i].Volume += 0.03
				case ReactionNegative:
					vs[i].Volume -= 0.05
				}
			case runnerUp:
			default:
				vs[i].Volume -= 0.01
			}
			vs[i].Volume = regulate(vs[i].Volume)
		}
	})
}

// regulate pulls a volume outside [VoiceVolumeLow, VoiceVolumeHigh] halfway
// back to the nearest edge.
func regulate(v float64) float64 {
	switch {
	case v > affect.VoiceVolumeHigh:
		return v - (v-affect.VoiceVolumeHigh)*0.5
	case v < affect.VoiceVolumeLow:
		return v + (affect.VoiceVolumeLow-v)*0.5
	default:
		return v
	}
}
