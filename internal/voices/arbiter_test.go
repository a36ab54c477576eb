package voices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/affect"
)

func snapshotWithVolumes(vols map[affect.Archetype]float64) affect.Snapshot {
	vs := affect.DefaultVoices()
	for i := range vs {
		if v, ok := vols[vs[i].Archetype]; ok {
			vs[i].Volume = v
		}
	}
	return affect.Snapshot{
		Personality: map[affect.Param]float64{affect.ParamFearOfAbandonment: 0.5},
		Voices:      vs,
	}
}

func ptr(f float64) *float64 { return &f }

func TestArbitrateConfrontationConflict(t *testing.T) {
	snap := snapshotWithVolumes(map[affect.Archetype]float64{
		affect.ArchetypeShadow: 0.5,
	})
	res := Arbitrate(MessageContext{Confrontation: true}, snap)

	assert.Equal(t, affect.ArchetypeProtector, res.Winner.Voice.Archetype)
	assert.InDelta(t, 0.8, res.Winner.Activation, 1e-9)
	require.NotNil(t, res.RunnerUp)
	assert.Equal(t, affect.ArchetypeShadow, res.RunnerUp.Voice.Archetype)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, [2]affect.Archetype{affect.ArchetypeProtector, affect.ArchetypeShadow}, res.Conflict.Between)
	assert.Len(t, res.Activations, 5)
}

func TestArbitrateNoConflictWhenRunnerUpTooQuiet(t *testing.T) {
	snap := snapshotWithVolumes(map[affect.Archetype]float64{
		affect.ArchetypeProtector: 0.9,
		affect.ArchetypeShadow:    0.3,
		affect.ArchetypeCritic:    0.2,
	})
	res := Arbitrate(MessageContext{Confrontation: true}, snap)
	assert.Equal(t, affect.ArchetypeProtector, res.Winner.Voice.Archetype)
	assert.Nil(t, res.Conflict)
}

func TestArbitrateNoConflictWhenNotMutual(t *testing.T) {
	// During abandonment the protector only opposes the inner child.
	snap := snapshotWithVolumes(map[affect.Archetype]float64{
		affect.ArchetypeProtector:  0.8,
		affect.ArchetypeCreative:   0.7,
		affect.ArchetypeInnerChild: 0.2,
		affect.ArchetypeCritic:     0.2,
		affect.ArchetypeShadow:     0.2,
	})
	res := Arbitrate(MessageContext{}, snap)
	require.NotNil(t, res.Conflict)

	res = Arbitrate(MessageContext{Abandonment: true}, snap)
	assert.Equal(t, affect.ArchetypeProtector, res.Winner.Voice.Archetype)
	assert.Equal(t, affect.ArchetypeCreative, res.RunnerUp.Voice.Archetype)
	assert.Nil(t, res.Conflict)
}

func TestArbitrateIntensityScaling(t *testing.T) {
	snap := snapshotWithVolumes(nil)
	plain := Arbitrate(MessageContext{Philosophical: true}, snap)
	intense := Arbitrate(MessageContext{Philosophical: true, Intensity: ptr(1.0)}, snap)
	calm := Arbitrate(MessageContext{Philosophical: true, Intensity: ptr(0.5)}, snap)

	assert.Equal(t, affect.ArchetypeCreative, plain.Winner.Voice.Archetype)
	assert.InDelta(t, plain.Winner.Activation*1.25, intense.Winner.Activation, 1e-9)
	assert.InDelta(t, plain.Winner.Activation, calm.Winner.Activation, 1e-9)
}

func TestArbitrateUsesCoreFields(t *testing.T) {
	snap := snapshotWithVolumes(nil)
	snap.Loneliness = 1.0
	res := Arbitrate(MessageContext{Affection: true}, snap)
	assert.Equal(t, affect.ArchetypeInnerChild, res.Winner.Voice.Archetype)
	assert.InDelta(t, 0.5+0.3+0.2, res.Winner.Activation, 1e-9)
}

func TestArbitrateEmpty(t *testing.T) {
	res := Arbitrate(MessageContext{}, affect.Snapshot{})
	assert.Nil(t, res.RunnerUp)
	assert.Nil(t, res.Conflict)
	assert.Empty(t, res.Activations)
}

func TestUpdateVoiceVolumes(t *testing.T) {
	core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
	res := Arbitrate(MessageContext{Confrontation: true}, core.Snapshot())
	require.Equal(t, affect.ArchetypeProtector, res.Winner.Voice.Archetype)
	runner := res.RunnerUp.Voice.Archetype

	UpdateVoiceVolumes(core, res, ReactionPositive)

	snap := core.Snapshot()
	protector, _ := snap.Voice(affect.ArchetypeProtector)
	assert.InDelta(t, 0.55, protector.Volume, 1e-9)

	r, _ := snap.Voice(runner)
	before, _ := affect.Snapshot{Voices: affect.DefaultVoices()}.Voice(runner)
	assert.InDelta(t, before.Volume, r.Volume, 1e-9)

	creative, _ := snap.Voice(affect.ArchetypeCreative)
	assert.InDelta(t, 0.49, creative.Volume, 1e-9)
}

func TestUpdateVoiceVolumesNegativeReaction(t *testing.T) {
	core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
	res := Arbitrate(MessageContext{Philosophical: true}, core.Snapshot())
	require.Equal(t, affect.ArchetypeCreative, res.Winner.Voice.Archetype)

	UpdateVoiceVolumes(core, res, ReactionNegative)
	creative, _ := core.Snapshot().Voice(affect.ArchetypeCreative)
	assert.InDelta(t, 0.47, creative.Volume, 1e-9)
}

func TestSoftRegulatorKeepsVoicesInBand(t *testing.T) {
	core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))

	for i := 0; i < 200; i++ {
		res := Arbitrate(MessageContext{Philosophical: true}, core.Snapshot())
		UpdateVoiceVolumes(core, res, ReactionPositive)
	}
	snap := core.Snapshot()
	for _, v := range snap.Voices {
		assert.LessOrEqual(t, v.Volume, 1.0, v.Name)
		assert.GreaterOrEqual(t, v.Volume, 0.1, v.Name)
	}
	creative, _ := snap.Voice(affect.ArchetypeCreative)
	assert.Less(t, creative.Volume, 0.97)
}

func TestRegulate(t *testing.T) {
	assert.InDelta(t, 0.95, regulate(1.0), 1e-9)
	assert.InDelta(t, 0.15, regulate(0.1), 1e-9)
	assert.Equal(t, 0.5, regulate(0.5))
}
