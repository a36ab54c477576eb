// Package memory keeps the short-term conversational memory that autonomous
// thoughts draw on: the last few exchanges per person in a ring buffer.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPerPerson is the ring buffer size for each interlocutor.
const DefaultPerPerson = 50

// Entry is one remembered exchange.
type Entry struct {
	PersonID  string    `json:"person_id"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ringBuffer is a fixed-size circular buffer of entries.
type ringBuffer struct {
	entries  []Entry
	head     int
	size     int
	capacity int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// push adds an entry, overwriting the oldest if full.
func (rb *ringBuffer) push(e Entry) {
	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// all returns the buffered entries newest first.
func (rb *ringBuffer) all() []Entry {
	out := make([]Entry, rb.size)
	for i := 0; i < rb.size; i++ {
		idx := (rb.head - 1 - i + rb.capacity) % rb.capacity
		out[i] = rb.entries[idx]
	}
	return out
}

// RecentBuffer is a per-person store of recent exchanges.
type RecentBuffer struct {
	perPerson int
	byPerson  map[string]*ringBuffer
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// NewRecentBuffer creates an empty store holding perPerson entries per person.
func NewRecentBuffer(perPerson int, logger *zap.Logger) *RecentBuffer {
	if perPerson <= 0 {
		perPerson = DefaultPerPerson
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecentBuffer{
		perPerson: perPerson,
		byPerson:  make(map[string]*ringBuffer),
		logger:    logger.Named("memory"),
		now:       time.Now,
	}
}

// Store remembers text said by personID. Blank text is ignored.
func (r *RecentBuffer) Store(personID, text, emotion string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rb, ok := r.byPerson[personID]
	if !ok {
		rb = newRingBuffer(r.perPerson)
		r.byPerson[personID] = rb
	}
	rb.push(Entry{
		PersonID:  personID,
		Text:      text,
		Emotion:   emotion,
		Timestamp: r.now(),
	})

	r.logger.Debug("Stored memory",
		zap.String("person_id", personID),
		zap.Int("buffer_size", rb.size))
}

// GetRecent returns up to n entries across everyone, newest first.
func (r *RecentBuffer) GetRecent(n int) []Entry {
	if n <= 0 {
		return nil
	}
	r.mu.RLock()
	var all []Entry
	for _, rb := range r.byPerson {
		all = append(all, rb.all()...)
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// ForPerson returns up to n entries for one person, newest first.
func (r *RecentBuffer) ForPerson(personID string, n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rb, ok := r.byPerson[personID]
	if !ok || n <= 0 {
		return nil
	}
	out := rb.all()
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RecentMemories renders the n most recent entries as prompt lines.
func (r *RecentBuffer) RecentMemories(n int) []string {
	entries := r.GetRecent(n)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.PersonID+" said: "+e.Text)
	}
	return out
}

// Stats returns buffer statistics.
func (r *RecentBuffer) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, rb := range r.byPerson {
		total += rb.size
	}
	return map[string]interface{}{
		"people":   len(r.byPerson),
		"memories": total,
	}
}
