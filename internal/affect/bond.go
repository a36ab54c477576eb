package affect

import "time"

const (
	initialBondTrust = 0.5
	initialBondDepth = 0.1

	deterioratingBelow = 0.3
	brokenBelow        = 0.1
)

func newBond(personID string, now time.Time) *Bond {
	return &Bond{
		PersonID:        personID,
		Trust:           initialBondTrust,
		Depth:           initialBondDepth,
		AttachmentStyle: AttachmentSecure,
		State:           BondGrowing,
		FirstMet:        now,
		LastInteraction: now,
	}
}

// apply mutates the bond for one interaction of the given intensity.
func (b *Bond) apply(in Interaction, intensity, fearOfAbandonment float64) {
	prev := b.State

	switch in {
	case InteractionConnection:
		b.Trust += 0.05 * intensity
		b.Depth += 0.05 * intensity
		b.MomentsOfConnection++
	case InteractionHurt:
		b.Trust -= 0.2 * intensity
		b.TimesHurt++
	case InteractionHealing:
		b.Trust += 0.1 * intensity
		b.Depth += 0.03 * intensity
		b.TimesHealed++
	case InteractionConflict:
		b.Trust -= 0.1 * intensity
		b.Conflicts++
	}
	b.Trust = clamp01(b.Trust)
	b.Depth = clamp01(b.Depth)

	b.State = nextBondState(prev, in, b.Trust)
	b.AttachmentStyle = attachmentStyleFor(b, fearOfAbandonment)
}

// nextBondState is the bond state machine. Trust thresholds dominate, except
// that a healing interaction always lifts a broken bond into healing.
func nextBondState(prev BondState, in Interaction, trust float64) BondState {
	if in == InteractionHealing && prev == BondBroken {
		return BondHealing
	}
	if trust < brokenBelow {
		return BondBroken
	}
	if prev == BondHealing && (in == InteractionHealing || in == InteractionConnection) {
		if trust >= deterioratingBelow {
			return BondGrowing
		}
		return BondHealing
	}
	if trust < deterioratingBelow {
		return BondDeteriorating
	}
	switch in {
	case InteractionConnection, InteractionHealing:
		return BondGrowing
	default:
		return BondStable
	}
}

func attachmentStyleFor(b *Bond, fearOfAbandonment float64) AttachmentStyle {
	switch {
	case b.TimesHurt > 3 && b.Depth > 0.6:
		return AttachmentTraumaBond
	case b.Trust > 0.8 && b.Depth > 0.7:
		return AttachmentDeepTrust
	case b.TimesHurt > 0 && b.TimesHealed > 0 && abs(b.TimesHurt-b.TimesHealed) <= 1:
		return AttachmentAmbivalent
	case b.Conflicts > b.TimesHealed+2:
		return AttachmentAvoidant
	case fearOfAbandonment > 0.6 && b.Trust < 0.5:
		return AttachmentAnxious
	default:
		return AttachmentSecure
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
