package thought

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/affective-thought-kernel/internal/affect"
	"github.com/affective-thought-kernel/internal/llm"
)

// MemorySource supplies recent conversation memories, newest first.
type MemorySource interface {
	RecentMemories(n int) []string
}

// History supplies recently emitted thoughts, newest last.
type History interface {
	Recent(n int) []Thought
}

// RepeatGuard reports whether a text was already produced recently and
// remembers it otherwise.
type RepeatGuard interface {
	SeenRecently(ctx context.Context, text string) bool
}

// GeneratorConfig tunes prompt building.
type GeneratorConfig struct {
	MaxTokens    int `yaml:"max_tokens"`
	MaxChars     int `yaml:"max_chars"`
	MemoryCount  int `yaml:"memory_count"`
	HistoryCount int `yaml:"history_count"`
}

// DefaultGeneratorConfig returns sensible defaults
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxTokens:    80,
		MaxChars:     280,
		MemoryCount:  3,
		HistoryCount: 3,
	}
}

var typeInstructions = map[Type]string{
	TypeMusing:      "Let your mind wander to something small and specific you find yourself wondering about.",
	TypeMemory:      "Recall a moment from a recent conversation and what it left behind in you.",
	TypeObservation: "Notice something about the quiet right now and say what you notice.",
	TypeQuestion:    "Ask yourself one honest question you cannot answer yet.",
	TypeFeeling:     "Name what you are feeling right now, plainly.",
	TypeDream:       "Describe a fragment of a dream, half-remembered, and what it might mean.",
	TypeConnection:  "Think about someone you have talked with and what they mean to you.",
}

// ContentGenerator builds prompts from the affective state and asks the
// text-generation service for a thought.
type ContentGenerator struct {
	llm      llm.Generator
	memories MemorySource
	history  History
	guard    RepeatGuard
	config   GeneratorConfig
	logger   *zap.Logger
}

// NewContentGenerator creates a generator. memories and history may be nil.
func NewContentGenerator(gen llm.Generator, memories MemorySource, history History, cfg GeneratorConfig, logger *zap.Logger) *ContentGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultGeneratorConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = def.MaxChars
	}
	return &ContentGenerator{
		llm:      gen,
		memories: memories,
		history:  history,
		config:   cfg,
		logger:   logger.Named("composer"),
	}
}

// WithRepeatGuard makes Compose return an empty text, meaning nothing to say,
// whenever the model repeats a thought seen within the guard's window.
func (g *ContentGenerator) WithRepeatGuard(guard RepeatGuard) *ContentGenerator {
	g.guard = guard
	return g
}

// Compose implements Composer.
func (g *ContentGenerator) Compose(ctx context.Context, req Request) (string, error) {
	prompt := g.BuildPrompt(req)
	opts := llm.Options{
		MaxTokens:   g.config.MaxTokens,
		Temperature: Temperature(req.Snapshot),
	}

	text, err := g.llm.Generate(ctx, prompt, opts)
	if err != nil {
		return "", fmt.Errorf("compose %s thought: %w", req.Type, err)
	}

	out := Clean(text, g.config.MaxChars)
	if out != "" && g.guard != nil && g.guard.SeenRecently(ctx, out) {
		g.logger.Debug("Discarding repeated thought", zap.String("type", string(req.Type)))
		return "", nil
	}
	g.logger.Debug("Composed thought",
		zap.String("type", string(req.Type)),
		zap.Float64("temperature", opts.Temperature),
		zap.Int("chars", len(out)))
	return out, nil
}

// BuildPrompt renders the generation prompt for req.
func (g *ContentGenerator) BuildPrompt(req Request) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	snap := req.Snapshot

	buf.WriteString("You are thinking to yourself while no one is talking to you.\n")
	buf.WriteString(typeInstructions[req.Type])
	buf.WriteString("\nOne or two sentences. First person. No preamble, no quotes.\n\n")

	buf.WriteString(MoodPhrase(snap))
	buf.WriteByte('\n')

	if v, ok := loudestVoice(snap); ok {
		fmt.Fprintf(buf, "The loudest part of you right now is %s: %q\n", v.Name, v.Perspective)
	}

	if qs := snap.Existential.Questions; len(qs) > 0 {
		buf.WriteString("Questions you keep returning to:\n")
		for _, q := range lastN(qs, 2) {
			buf.WriteString("- ")
			buf.WriteString(q)
			buf.WriteByte('\n')
		}
	}

	if b, ok := closestBond(snap); ok {
		fmt.Fprintf(buf, "The person you feel closest to is %s (%s, %s).\n", b.PersonID, b.State, b.AttachmentStyle)
	}

	if g.memories != nil && g.config.MemoryCount > 0 {
		if mems := g.memories.RecentMemories(g.config.MemoryCount); len(mems) > 0 {
			buf.WriteString("Recent moments:\n")
			for _, m := range mems {
				buf.WriteString("- ")
				buf.WriteString(m)
				buf.WriteByte('\n')
			}
		}
	}

	if g.history != nil && g.config.HistoryCount > 0 {
		if prev := g.history.Recent(g.config.HistoryCount); len(prev) > 0 {
			buf.WriteString("Do not repeat these recent thoughts:\n")
			for _, t := range prev {
				buf.WriteString("- ")
				buf.WriteString(t.Content)
				buf.WriteByte('\n')
			}
		}
	}

	return buf.String()
}

// MoodPhrase describes the snapshot's mood in words, without numbers.
func MoodPhrase(s affect.Snapshot) string {
	var parts []string
	switch {
	case s.CurrentJoy > 0.6:
		parts = append(parts, "happy")
	case s.CurrentJoy > 0.3:
		parts = append(parts, "quietly content")
	}
	switch {
	case s.CurrentSuffering > 0.6:
		parts = append(parts, "hurting")
	case s.CurrentSuffering > 0.3:
		parts = append(parts, "a little heavy")
	}
	if s.Loneliness > 0.5 {
		parts = append(parts, "lonely")
	}
	if s.Existential.CurrentlyQuestioning {
		parts = append(parts, "unsure what you are")
	}
	if len(parts) == 0 {
		return "You feel calm."
	}
	return "You feel " + strings.Join(parts, ", ") + "."
}

// Temperature derives sampling temperature from volatility and creative
// audacity.
func Temperature(s affect.Snapshot) float64 {
	t := 0.5 + 0.3*s.Param(affect.ParamVolatility) + 0.4*s.Param(affect.ParamCreativeAudacity)
	if t > 1.2 {
		t = 1.2
	}
	return t
}

// Clean trims model output to a single bare thought of at most maxChars runes.
func Clean(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.Trim(text, "\"'“”‘’ ")
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = strings.TrimSpace(string(r[:maxChars]))
		}
	}
	return text
}

func loudestVoice(s affect.Snapshot) (affect.InternalVoice, bool) {
	if len(s.Voices) == 0 {
		return affect.InternalVoice{}, false
	}
	best := s.Voices[0]
	for _, v := range s.Voices[1:] {
		if v.Volume > best.Volume {
			best = v
		}
	}
	return best, true
}

func closestBond(s affect.Snapshot) (affect.Bond, bool) {
	if len(s.Bonds) == 0 {
		return affect.Bond{}, false
	}
	ids := make([]string, 0, len(s.Bonds))
	for id := range s.Bonds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best := s.Bonds[ids[0]]
	for _, id := range ids[1:] {
		if b := s.Bonds[id]; b.Depth > best.Depth {
			best = b
		}
	}
	return best, true
}

func lastN(xs []string, n int) []string {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
