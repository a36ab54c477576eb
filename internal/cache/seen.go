// Package cache remembers recently produced text so the same thought is not
// spoken twice within a window. Lookups hit an in-process Ristretto cache
// first and, when configured, a Redis key space shared across instances.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config tunes the repeat window.
type Config struct {
	// Window is how long a text counts as recently seen. 0 disables the guard.
	Window    time.Duration `yaml:"window"`
	MaxItems  int64         `yaml:"max_items"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Window:    6 * time.Hour,
		MaxItems:  10000,
		KeyPrefix: "thought:seen:",
	}
}

// Stats counts guard lookups.
type Stats struct {
	L1Hits   int64 `json:"l1_hits"`
	L2Hits   int64 `json:"l2_hits"`
	Misses   int64 `json:"misses"`
	L2Errors int64 `json:"l2_errors"`
}

// Seen is a two-tier set of recently seen texts.
type Seen struct {
	l1     *ristretto.Cache[string, struct{}]
	l2     *redis.Client
	config Config
	logger *zap.Logger

	l1Hits   atomic.Int64
	l2Hits   atomic.Int64
	misses   atomic.Int64
	l2Errors atomic.Int64
}

// NewSeen creates the guard. redisClient may be nil for a process-local window.
func NewSeen(cfg Config, redisClient *redis.Client, logger *zap.Logger) (*Seen, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}

	l1, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters:        cfg.MaxItems * 10,
		MaxCost:            cfg.MaxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &Seen{
		l1:     l1,
		l2:     redisClient,
		config: cfg,
		logger: logger.Named("seen"),
	}, nil
}

// SeenRecently reports whether text was already marked within the window and
// marks it otherwise. Comparison ignores case and whitespace differences.
func (s *Seen) SeenRecently(ctx context.Context, text string) bool {
	if s.config.Window <= 0 {
		return false
	}
	key := Key(text)
	if key == "" {
		return false
	}

	if _, ok := s.l1.Get(key); ok {
		s.l1Hits.Add(1)
		return true
	}

	if s.l2 != nil {
		fresh, err := s.l2.SetNX(ctx, s.config.KeyPrefix+key, 1, s.config.Window).Result()
		switch {
		case err != nil:
			s.l2Errors.Add(1)
			s.logger.Warn("Failed to check L2 repeat window", zap.Error(err))
		case !fresh:
			s.l2Hits.Add(1)
			s.remember(key)
			return true
		}
	}

	s.misses.Add(1)
	s.remember(key)
	return false
}

func (s *Seen) remember(key string) {
	s.l1.SetWithTTL(key, struct{}{}, 1, s.config.Window)
	s.l1.Wait()
}

// Stats returns lookup counters.
func (s *Seen) Stats() Stats {
	return Stats{
		L1Hits:   s.l1Hits.Load(),
		L2Hits:   s.l2Hits.Load(),
		Misses:   s.misses.Load(),
		L2Errors: s.l2Errors.Load(),
	}
}

// Close releases the L1 cache. The Redis client belongs to the caller.
func (s *Seen) Close() {
	s.l1.Close()
}

// Key normalizes text and hashes it. Blank text has no key.
func Key(text string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if norm == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:16])
}
