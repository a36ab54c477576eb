// Package thought produces the agent's autonomous idle-time thoughts. The
// Scheduler decides when to think, asks a Composer for text and streams it
// out character by character until user activity interrupts it.
package thought

import (
	"context"
	"time"

	"github.com/affective-thought-kernel/internal/affect"
)

// Type is the kind of thought.
type Type string

const (
	TypeMusing      Type = "musing"
	TypeMemory      Type = "memory"
	TypeObservation Type = "observation"
	TypeQuestion    Type = "question"
	TypeFeeling     Type = "feeling"
	TypeDream       Type = "dream"
	TypeConnection  Type = "connection"
)

// AllTypes lists every thought type in a stable order.
var AllTypes = []Type{
	TypeMusing,
	TypeMemory,
	TypeObservation,
	TypeQuestion,
	TypeFeeling,
	TypeDream,
	TypeConnection,
}

// Thought is one emitted thought. It is never modified after emission.
type Thought struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	Content        string    `json:"content"`
	Emotion        string    `json:"emotion"`
	Timestamp      time.Time `json:"timestamp"`
	WasInterrupted bool      `json:"was_interrupted"`
}

// State of the scheduler.
type State string

const (
	StateStopped     State = "stopped"
	StateIdleWaiting State = "idle_waiting"
	StateGenerating  State = "generating"
	StateStreaming   State = "streaming"
)

// EventType names a scheduler event.
type EventType string

const (
	EventStarted            EventType = "started"
	EventStopped            EventType = "stopped"
	EventStateChanged       EventType = "state_changed"
	EventThinkingStart      EventType = "thinking_start"
	EventThinkingEnd        EventType = "thinking_end"
	EventThoughtStart       EventType = "thought_start"
	EventChar               EventType = "char"
	EventThoughtEnd         EventType = "thought_end"
	EventThoughtInterrupted EventType = "thought_interrupted"
	EventThoughtError       EventType = "thought_error"
)

// Event is delivered to the Emitter. Only the fields relevant to Type are set.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`

	Thought     *Thought `json:"thought,omitempty"`
	Char        string   `json:"char,omitempty"`
	Index       int      `json:"index,omitempty"`
	Total       int      `json:"total,omitempty"`
	Interrupted bool     `json:"interrupted,omitempty"`
	Error       string   `json:"error,omitempty"`
	From        State    `json:"from,omitempty"`
	To          State    `json:"to,omitempty"`

	Err error `json:"-"`
}

// Emitter receives scheduler events. Emit is called synchronously from the
// scheduler's goroutine without any scheduler lock held, so it may call
// RecordActivity. It must not call Stop.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(e Event) { f(e) }

// Recorder persists finished thoughts. Implementations handle their own
// failures.
type Recorder interface {
	AddThought(ctx context.Context, t Thought)
}

// Recorders fans a thought out to several recorders in order.
type Recorders []Recorder

// AddThought implements Recorder.
func (rs Recorders) AddThought(ctx context.Context, t Thought) {
	for _, r := range rs {
		r.AddThought(ctx, t)
	}
}

// Request is what the Composer needs to write one thought.
type Request struct {
	Type     Type
	Snapshot affect.Snapshot
}

// Composer writes the text of a thought. An empty result means there is
// nothing to say this cycle.
type Composer interface {
	Compose(ctx context.Context, req Request) (string, error)
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	State            State     `json:"state"`
	Enabled          bool      `json:"enabled"`
	ThoughtCount     int       `json:"thought_count"`
	LastThought      *Thought  `json:"last_thought,omitempty"`
	LastThoughtAt    time.Time `json:"last_thought_at,omitempty"`
	LastUserActivity time.Time `json:"last_user_activity"`
}

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

type nopRecorder struct{}

func (nopRecorder) AddThought(context.Context, Thought) {}
