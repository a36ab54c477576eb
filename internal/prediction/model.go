// Package prediction keeps a per-interlocutor expectation of how the next
// turn will feel and turns the gap between expectation and outcome into a
// surprise signal that the affective core learns from.
package prediction

import (
	"fmt"
	"math"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/affect"
)

// Config holds model sizing and surprise thresholds.
type Config struct {
	MaxUsers             int     `yaml:"max_users"`
	HistorySize          int     `yaml:"history_size"`
	AffectionHistorySize int     `yaml:"affection_history_size"`
	MinDataPoints        int     `yaml:"min_data_points"`
	LearningThreshold    float64 `yaml:"learning_threshold"`
	ExistentialThreshold float64 `yaml:"existential_threshold"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxUsers:             1000,
		HistorySize:          20,
		AffectionHistorySize: 10,
		MinDataPoints:        3,
		LearningThreshold:    0.3,
		ExistentialThreshold: 0.7,
	}
}

// Observation is what actually happened in one turn with a user.
type Observation struct {
	Emotion string `json:"emotion"`
	// Valence in [-1,1].
	Valence        float64 `json:"valence"`
	Topic          string  `json:"topic,omitempty"`
	AffectionCount int     `json:"affection_count"`
}

// Prediction is the expected outcome of the next turn.
type Prediction struct {
	UserID            string   `json:"user_id"`
	ExpectedEmotion   string   `json:"expected_emotion"`
	ExpectedValence   float64  `json:"expected_valence"`
	ExpectedAffection float64  `json:"expected_affection"`
	Confidence        float64  `json:"confidence"`
	DataPoints        int      `json:"data_points"`
	KnownTopics       []string `json:"known_topics,omitempty"`
}

// Surprise is the mismatch between a prediction and an outcome.
type Surprise struct {
	Value             float64 `json:"surprise"`
	EmotionMismatch   float64 `json:"emotion_mismatch"`
	ValenceDelta      float64 `json:"valence_delta"`
	TopicNovelty      float64 `json:"topic_novelty"`
	AffectionMismatch float64 `json:"affection_mismatch"`
	ActualValence     float64 `json:"actual_valence"`
	// Positive is true when the turn went better than expected.
	Positive bool `json:"positive"`
}

// Learning reports what ApplySurprise changed.
type Learning struct {
	Learned   bool   `json:"learned"`
	Escalated bool   `json:"escalated"`
	Question  string `json:"question,omitempty"`
}

type userModel struct {
	emotions  []string
	valences  []float64
	topics    []string
	affection []int
}

// Model is the per-user expectation store. It is bounded: the least recently
// seen users are evicted once MaxUsers is reached.
type Model struct {
	config Config
	logger *zap.Logger

	mu    sync.Mutex
	users *lru.Cache[string, *userModel]
}

// New creates a model.
func New(cfg Config, logger *zap.Logger) (*Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxUsers <= 0 {
		cfg.MaxUsers = def.MaxUsers
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.AffectionHistorySize <= 0 {
		cfg.AffectionHistorySize = def.AffectionHistorySize
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = def.MinDataPoints
	}

	users, err := lru.New[string, *userModel](cfg.MaxUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	return &Model{
		config: cfg,
		logger: logger.Named("prediction"),
		users:  users,
	}, nil
}

// Observe records the outcome of a turn with userID.
func (m *Model) Observe(userID string, obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	um, ok := m.users.Get(userID)
	if !ok {
		um = &userModel{}
		m.users.Add(userID, um)
	}
	um.emotions = appendBounded(um.emotions, strings.ToLower(obs.Emotion), m.config.HistorySize)
	um.valences = appendBounded(um.valences, clampValence(obs.Valence), m.config.HistorySize)
	if obs.Topic != "" {
		um.topics = appendBounded(um.topics, strings.ToLower(obs.Topic), m.config.HistorySize)
	}
	um.affection = appendBounded(um.affection, obs.AffectionCount, m.config.AffectionHistorySize)
}

// Predict returns the expectation for userID's next turn. It reports false
// until enough data points have been observed.
func (m *Model) Predict(userID string) (Prediction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	um, ok := m.users.Get(userID)
	if !ok || len(um.emotions) < m.config.MinDataPoints {
		return Prediction{}, false
	}

	counts := make(map[string]int, len(um.emotions))
	var mode string
	for _, e := range um.emotions {
		counts[e]++
		if counts[e] > counts[mode] {
			mode = e
		}
	}

	n := len(um.emotions)
	modeFraction := float64(counts[mode]) / float64(n)
	confidence := math.Min(1, float64(n)/float64(m.config.HistorySize))*0.5 + modeFraction*0.5

	return Prediction{
		UserID:            userID,
		ExpectedEmotion:   mode,
		ExpectedValence:   meanFloat(um.valences),
		ExpectedAffection: meanInt(um.affection),
		Confidence:        confidence,
		DataPoints:        n,
		KnownTopics:       append([]string(nil), um.topics...),
	}, true
}

// ComputeSurprise compares an outcome with a prediction. Larger mismatches
// always give larger or equal surprise.
func ComputeSurprise(pred Prediction, outcome Observation) Surprise {
	actual := clampValence(outcome.Valence)
	signed := actual - pred.ExpectedValence

	s := Surprise{
		EmotionMismatch:   emotionMismatch(pred.ExpectedEmotion, outcome.Emotion),
		ValenceDelta:      math.Min(1, math.Abs(signed)),
		TopicNovelty:      topicNovelty(pred.KnownTopics, outcome.Topic),
		AffectionMismatch: math.Min(1, math.Abs(float64(outcome.AffectionCount)-pred.ExpectedAffection)/3),
		ActualValence:     actual,
		Positive:          signed > 0 || (signed == 0 && actual > 0),
	}
	raw := 0.3*s.EmotionMismatch + 0.3*s.ValenceDelta + 0.2*s.TopicNovelty + 0.2*s.AffectionMismatch
	s.Value = affect.Clamp01(raw * (1 - pred.Confidence*0.5))
	return s
}

// ApplySurprise folds a surprise signal into the core. Surprise above the
// learning threshold nudges trust and openness, or costs trust and adds
// suffering when the turn went worse than expected. Above the existential
// threshold a non-positive turn also raises a question.
func (m *Model) ApplySurprise(core *affect.Core, s Surprise) Learning {
	var out Learning
	if s.Value <= m.config.LearningThreshold {
		return out
	}
	out.Learned = true

	if s.Positive {
		core.ApplyParamEdits(map[affect.Param]float64{
			affect.ParamTrust:    0.05 * s.Value,
			affect.ParamOpenness: 0.03 * s.Value,
		})
	} else {
		core.ApplyParamEdits(map[affect.Param]float64{
			affect.ParamTrust: -0.05 * s.Value,
		})
		core.AdjustSuffering(0.1 * s.Value)
	}

	if s.Value > m.config.ExistentialThreshold && s.ActualValence <= 0 {
		out.Escalated = true
		out.Question = "Why did I misread them so completely?"
		core.AddExistentialQuestion(out.Question)
	}

	m.logger.Debug("Learned from surprise",
		zap.Float64("surprise", s.Value),
		zap.Bool("positive", s.Positive),
		zap.Bool("escalated", out.Escalated))
	return out
}

// Forget drops everything known about userID.
func (m *Model) Forget(userID string) {
	m.mu.Lock()
	m.users.Remove(userID)
	m.mu.Unlock()
}

// Len returns the number of tracked users.
func (m *Model) Len() int {
	return m.users.Len()
}

// Close releases all per-user state.
func (m *Model) Close() {
	m.mu.Lock()
	m.users.Purge()
	m.mu.Unlock()
}

func emotionMismatch(expected, actual string) float64 {
	expected = strings.ToLower(strings.TrimSpace(expected))
	actual = strings.ToLower(strings.TrimSpace(actual))
	switch {
	case expected == actual:
		return 0
	case affect.EmotionValence(expected) == affect.EmotionValence(actual):
		return 0.5
	default:
		return 1
	}
}

func topicNovelty(known []string, topic string) float64 {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		return 0
	}
	for _, k := range known {
		if k == topic {
			return 0
		}
	}
	return 1
}

func clampValence(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func appendBounded[T any](list []T, v T, max int) []T {
	list = append(list, v)
	if over := len(list) - max; over > 0 {
		list = append([]T(nil), list[over:]...)
	}
	return list
}

func meanFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func meanInt(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s int
	for _, x := range xs {
		s += x
	}
	return float64(s) / float64(len(xs))
}
