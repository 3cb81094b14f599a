// Package agents provides the agent data model, its message protocol, and the
// per-activation decision cycle.
package agents

import (
	"sort"

	"github.com/talgya/goalnet/internal/social"
	"github.com/talgya/goalnet/internal/tasks"
)

// AgentID is a unique identifier for an agent.
type AgentID = social.AgentID

// MessageKind enumerates the message types agents exchange.
type MessageKind uint8

const (
	MsgHelpRequest    MessageKind = iota // Data: task ID
	MsgContactRequest                    // No payload
	MsgAcknowledgment                    // Data: task ID
	MsgPayoff                            // Data: task ID and amount
)

var messageKindNames = [...]string{"HelpRequest", "ContactRequest", "Acknowledgment", "Payoff"}

func (k MessageKind) String() string {
	if int(k) < len(messageKindNames) {
		return messageKindNames[k]
	}
	return "Unknown"
}

// Message is an immutable communication between two agents.
type Message struct {
	Sender    AgentID      `json:"sender"`
	Receiver  AgentID      `json:"receiver"`
	Timestamp float64      `json:"timestamp"`
	Kind      MessageKind  `json:"type"`
	TaskID    tasks.TaskID `json:"task_id,omitempty"`
	Amount    float64      `json:"amount,omitempty"` // Payoff only
}

// HistoryEvent is one entry in an agent's interaction log.
type HistoryEvent struct {
	Counterparty AgentID `json:"counterparty"`
	Value        float64 `json:"value"`
	Time         float64 `json:"time"`
}

// Agent is a message-driven actor that owns at most one task at a time.
type Agent struct {
	ID AgentID `json:"id"`

	// Traits, fixed at creation, each in [0,1).
	PropensityToHelp float64 `json:"propensity_to_help"`
	Centralization   float64 `json:"centralization"` // Reluctance to introduce contacts
	Greed            float64 `json:"greed"`          // Fraction of task payoff kept by owner

	Inbox            []Message      `json:"-"`
	Task             *tasks.TaskID  `json:"task,omitempty"`
	TaskContributors []AgentID      `json:"-"` // Reset every activation
	PossibleTasks    []tasks.TaskID `json:"-"` // Reset every activation
	History          []HistoryEvent `json:"-"` // Append-only

	Network map[AgentID]struct{} `json:"-"`
	Wealth  float64              `json:"wealth"`
	Turns   int                  `json:"turns"`
}

// NewAgent creates an agent with the given traits and an empty neighborhood.
func NewAgent(id AgentID, propensity, centralization, greed float64) *Agent {
	return &Agent{
		ID:               id,
		PropensityToHelp: propensity,
		Centralization:   centralization,
		Greed:            greed,
		Network:          make(map[AgentID]struct{}),
	}
}

// Receive appends a message to the inbox. It is consumed on the next activation.
func (a *Agent) Receive(msg Message) {
	a.Inbox = append(a.Inbox, msg)
}

// AddNeighbor records id in the local neighbor list.
func (a *Agent) AddNeighbor(id AgentID) {
	if id == a.ID {
		return
	}
	a.Network[id] = struct{}{}
}

// IsNeighbor reports whether id is in the local neighbor list.
func (a *Agent) IsNeighbor(id AgentID) bool {
	_, ok := a.Network[id]
	return ok
}

// Neighbors returns the neighbor list in ascending order.
func (a *Agent) Neighbors() []AgentID {
	out := make([]AgentID, 0, len(a.Network))
	for id := range a.Network {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasTask reports whether the agent currently owns a task.
func (a *Agent) HasTask() bool {
	return a.Task != nil
}

// AssignTask hands ownership of id to the agent.
func (a *Agent) AssignTask(id tasks.TaskID) {
	a.Task = &id
}

// HasPendingAck reports whether an acknowledgment from sender for taskID is
// already waiting in the inbox.
func (a *Agent) HasPendingAck(sender AgentID, taskID tasks.TaskID) bool {
	for _, m := range a.Inbox {
		if m.Kind == MsgAcknowledgment && m.Sender == sender && m.TaskID == taskID {
			return true
		}
	}
	return false
}

func (a *Agent) log(counterparty AgentID, value, at float64) {
	a.History = append(a.History, HistoryEvent{Counterparty: counterparty, Value: value, Time: at})
}

func (a *Agent) addContributor(id AgentID) {
	for _, c := range a.TaskContributors {
		if c == id {
			return
		}
	}
	a.TaskContributors = append(a.TaskContributors, id)
}
