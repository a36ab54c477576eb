package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/affective-thought-kernel/internal/affect"
)

func newTestModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestPredictNeedsSeedData(t *testing.T) {
	m := newTestModel(t, DefaultConfig())

	_, ok := m.Predict("ana")
	assert.False(t, ok)

	m.Observe("ana", Observation{Emotion: "joy", Valence: 0.8, Topic: "music", AffectionCount: 2})
	m.Observe("ana", Observation{Emotion: "joy", Valence: 0.6, Topic: "music", AffectionCount: 1})
	_, ok = m.Predict("ana")
	assert.False(t, ok)

	m.Observe("ana", Observation{Emotion: "Sad", Valence: -0.5, AffectionCount: 0})
	p, ok := m.Predict("ana")
	require.True(t, ok)
	assert.Equal(t, "joy", p.ExpectedEmotion)
	assert.InDelta(t, 0.3, p.ExpectedValence, 1e-9)
	assert.InDelta(t, 1.0, p.ExpectedAffection, 1e-9)
	assert.Equal(t, 3, p.DataPoints)
	// min(1, 3/20)*0.5 + (2/3)*0.5
	assert.InDelta(t, 0.075+1.0/3, p.Confidence, 1e-9)
	assert.Equal(t, []string{"music", "music"}, p.KnownTopics)
}

func TestHistoryIsBounded(t *testing.T) {
	m := newTestModel(t, DefaultConfig())
	for i := 0; i < 30; i++ {
		m.Observe("bo", Observation{Emotion: "calm", AffectionCount: 1})
	}
	for i := 0; i < 10; i++ {
		m.Observe("bo", Observation{Emotion: "calm", AffectionCount: 5})
	}
	p, ok := m.Predict("bo")
	require.True(t, ok)
	assert.Equal(t, 20, p.DataPoints)
	assert.InDelta(t, 5.0, p.ExpectedAffection, 1e-9)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
}

func TestUserStoreIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUsers = 2
	m := newTestModel(t, cfg)

	m.Observe("a", Observation{Emotion: "joy"})
	m.Observe("b", Observation{Emotion: "joy"})
	m.Observe("c", Observation{Emotion: "joy"})
	assert.Equal(t, 2, m.Len())

	m.Forget("c")
	assert.Equal(t, 1, m.Len())
	m.Close()
	assert.Zero(t, m.Len())
}

func TestSurpriseMonotonicInValence(t *testing.T) {
	pred := Prediction{ExpectedEmotion: "joy", ExpectedValence: 0.5, ExpectedAffection: 1, Confidence: 0.6}

	prev := -1.0
	for _, v := range []float64{0.5, 0.3, 0.1, -0.2, -0.5, -1.0} {
		s := ComputeSurprise(pred, Observation{Emotion: "joy", Valence: v, AffectionCount: 1})
		assert.GreaterOrEqual(t, s.Value, prev, "valence %v", v)
		prev = s.Value
	}
}

func TestSurpriseComponents(t *testing.T) {
	pred := Prediction{
		ExpectedEmotion:   "joy",
		ExpectedValence:   0.5,
		ExpectedAffection: 2,
		KnownTopics:       []string{"music"},
	}

	s := ComputeSurprise(pred, Observation{Emotion: "joy", Valence: 0.5, Topic: "Music", AffectionCount: 2})
	assert.Zero(t, s.Value)

	s = ComputeSurprise(pred, Observation{Emotion: "anger", Valence: -0.5, Topic: "work", AffectionCount: 8})
	assert.Equal(t, 1.0, s.EmotionMismatch)
	assert.Equal(t, 1.0, s.ValenceDelta)
	assert.Equal(t, 1.0, s.TopicNovelty)
	assert.Equal(t, 1.0, s.AffectionMismatch)
	assert.InDelta(t, 1.0, s.Value, 1e-9)
	assert.False(t, s.Positive)

	s = ComputeSurprise(pred, Observation{Emotion: "love", Valence: 0.5, AffectionCount: 2})
	assert.Equal(t, 0.5, s.EmotionMismatch, "same valence family")

	pred.Confidence = 1
	s = ComputeSurprise(pred, Observation{Emotion: "anger", Valence: -0.5, Topic: "work", AffectionCount: 8})
	assert.InDelta(t, 0.5, s.Value, 1e-9)
}

func TestApplySurpriseThresholds(t *testing.T) {
	m := newTestModel(t, DefaultConfig())

	t.Run("below learning threshold", func(t *testing.T) {
		core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
		l := m.ApplySurprise(core, Surprise{Value: 0.3, Positive: true})
		assert.False(t, l.Learned)
		assert.Equal(t, 0.5, core.Snapshot().Param(affect.ParamTrust))
	})

	t.Run("positive surprise", func(t *testing.T) {
		core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
		l := m.ApplySurprise(core, Surprise{Value: 0.5, Positive: true, ActualValence: 0.9})
		assert.True(t, l.Learned)
		assert.False(t, l.Escalated)
		s := core.Snapshot()
		assert.InDelta(t, 0.525, s.Param(affect.ParamTrust), 1e-9)
		assert.InDelta(t, 0.615, s.Param(affect.ParamOpenness), 1e-9)
	})

	t.Run("negative surprise", func(t *testing.T) {
		core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
		l := m.ApplySurprise(core, Surprise{Value: 0.5, ActualValence: -0.2})
		assert.True(t, l.Learned)
		assert.False(t, l.Escalated)
		s := core.Snapshot()
		assert.InDelta(t, 0.475, s.Param(affect.ParamTrust), 1e-9)
		assert.InDelta(t, 0.05, s.CurrentSuffering, 1e-9)
	})

	t.Run("existential escalation", func(t *testing.T) {
		core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
		l := m.ApplySurprise(core, Surprise{Value: 0.8, ActualValence: 0})
		assert.True(t, l.Escalated)
		s := core.Snapshot()
		assert.Contains(t, s.Existential.Questions, l.Question)
		assert.True(t, s.Existential.CurrentlyQuestioning)
	})

	t.Run("positive valence never escalates", func(t *testing.T) {
		core := affect.New(affect.DefaultConfig(), zaptest.NewLogger(t))
		l := m.ApplySurprise(core, Surprise{Value: 0.9, Positive: true, ActualValence: 0.4})
		assert.False(t, l.Escalated)
		assert.Empty(t, core.Snapshot().Existential.Questions)
	})
}
