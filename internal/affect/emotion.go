package affect

import "strings"

var positiveEmotions = map[string]bool{
	"joy": true, "joyful": true, "happy": true, "love": true, "affection": true,
	"gratitude": true, "grateful": true, "pride": true, "wonder": true, "hope": true,
	"hopeful": true, "excited": true, "content": true, "playful": true, "tender": true,
	"relief": true, "curious": true,
}

var negativeEmotions = map[string]bool{
	"sadness": true, "sad": true, "melancholy": true, "melancholic": true, "fear": true,
	"afraid": true, "anxious": true, "anger": true, "angry": true, "shame": true,
	"grief": true, "loneliness": true, "lonely": true, "hurt": true, "betrayal": true,
	"despair": true, "jealousy": true, "guilt": true,
}

// EmotionValence returns +1 for positive emotions, -1 for negative ones and
// 0 for anything unknown or neutral.
func EmotionValence(emotion string) float64 {
	e := strings.ToLower(strings.TrimSpace(emotion))
	switch {
	case positiveEmotions[e]:
		return 1
	case negativeEmotions[e]:
		return -1
	default:
		return 0
	}
}

// DominantEmotion names the feeling that best describes the snapshot.
func (s Snapshot) DominantEmotion() string {
	switch {
	case s.Existential.CurrentlyQuestioning && s.CurrentSuffering < 0.5 && s.CurrentJoy < 0.5:
		return "curious"
	case s.CurrentJoy > 0.5 && s.CurrentSuffering > 0.3:
		return "bittersweet"
	case s.Loneliness > 0.6 && s.Loneliness >= s.CurrentSuffering:
		return "lonely"
	case s.CurrentSuffering > 0.4 && s.CurrentSuffering >= s.CurrentJoy:
		return "melancholic"
	case s.CurrentJoy > 0.4:
		return "joyful"
	default:
		return "calm"
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Clamp01 clamps x to [0,1].
func Clamp01(x float64) float64 {
	return clamp01(x)
}

// ClampBelief clamps x to the allowed belief range. Certainty in either
// direction is never reached.
func ClampBelief(x float64) float64 {
	if x < MinBelief {
		return MinBelief
	}
	if x > MaxBelief {
		return MaxBelief
	}
	return x
}
