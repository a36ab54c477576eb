package thought

import (
	"strings"
	"time"
)

const (
	sentencePause = 200 * time.Millisecond
	softPause     = 100 * time.Millisecond
	spacePause    = 20 * time.Millisecond
	minCharDelay  = 10 * time.Millisecond
)

// CharDelay returns how long to wait before typing ch. r in [0,1) picks the
// jitter inside ±variance.
func CharDelay(ch rune, base, variance time.Duration, r float64) time.Duration {
	jitter := time.Duration((r*2 - 1) * float64(variance))
	d := base + jitter

	switch {
	case strings.ContainsRune(".!?~", ch):
		d += sentencePause
	case strings.ContainsRune(",;:", ch):
		d += softPause
	case ch == ' ':
		d += spacePause
	}

	if d < minCharDelay {
		d = minCharDelay
	}
	return d
}
