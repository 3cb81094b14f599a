package engine

import (
	"container/heap"

	"github.com/talgya/goalnet/internal/agents"
)

// EventKind tags what a scheduled event does when it fires.
type EventKind uint8

const (
	EventTaskCreation EventKind = iota
	EventAgentActivation
	EventDataCollection
)

var eventKindNames = [...]string{"task_creation", "agent_activation", "data_collection"}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is a scheduled occurrence on the simulation timeline.
type Event struct {
	At    float64        `json:"at"`
	Kind  EventKind      `json:"kind"`
	Agent agents.AgentID `json:"agent,omitempty"` // EventAgentActivation only
}

type queued struct {
	ev  Event
	seq uint64 // Insertion order, breaks timestamp ties
}

// eventQueue is a min-heap ordered by (At, seq).
type eventQueue []queued

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].ev.At != q[j].ev.At {
		return q[i].ev.At < q[j].ev.At
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q *eventQueue) push(ev Event, seq uint64) {
	heap.Push(q, queued{ev: ev, seq: seq})
}

func (q *eventQueue) pop() Event {
	return heap.Pop(q).(queued).ev
}

func (q eventQueue) peek() Event {
	return q[0].ev
}
