package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		missing []string
	}{
		{
			name:    "url and address",
			in:      `generation failed: ollama request: Post "http://10.0.0.4:11434/api/generate": connection refused`,
			missing: []string{"10.0.0.4", "11434", "/api/generate"},
		},
		{
			name:    "credentials",
			in:      "redis auth failed: password=hunter2 token: abc",
			missing: []string{"hunter2", "abc"},
		},
		{
			name:    "stack fragments",
			in:      "panic in goroutine 17 at scheduler.go:212 pc=0xdeadbeef",
			missing: []string{"goroutine 17", "scheduler.go:212", "0xdeadbeef"},
		},
		{
			name: "plain message untouched",
			in:   "generation failed:  model   busy",
			want: "generation failed: model busy",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeString(tt.in)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			for _, m := range tt.missing {
				assert.NotContains(t, got, m)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	assert.Empty(t, SanitizeError(nil))
	assert.Equal(t, "boom [REDACTED]", SanitizeError(errors.New("boom /var/lib/kernel/journal.json")))
}
