// Agent activation: read the inbox, pick an action by weighted lottery, act,
// then settle a completed task.
package agents

import (
	"log/slog"

	"github.com/talgya/goalnet/internal/tasks"
)

// Introduction outcomes logged by an agent answering a contact request.
const (
	introductionMade   = 0.5
	introductionDenied = -1.0
	acknowledgedValue  = 1.0
)

// ActionKind enumerates what an agent can do in one activation.
type ActionKind uint8

const (
	ActionAct         ActionKind = iota // Execute a subtask on a task
	ActionCommunicate                   // Broadcast to every neighbor
	ActionSeek                          // Ask the world for a new random neighbor
)

var actionKindNames = [...]string{"ACT", "COMMUNICATE", "SEEK"}

func (k ActionKind) String() string {
	if int(k) < len(actionKindNames) {
		return actionKindNames[k]
	}
	return "UNKNOWN"
}

// Action is the decision an agent took during an activation.
type Action struct {
	AgentID AgentID
	Kind    ActionKind
	Task    tasks.TaskID // ActionAct only
	Own     bool         // ActionAct on the agent's own task
}

// Outcome summarizes one activation for the caller's event log.
type Outcome struct {
	Action    Action
	Completed *tasks.TaskID // Set when the agent's own task completed this activation
}

type candidate struct {
	action Action
	weight float64
}

// Activate runs one full activation cycle against ctx.
func (a *Agent) Activate(ctx Context) Outcome {
	a.Turns++
	a.PossibleTasks = a.PossibleTasks[:0]
	a.TaskContributors = a.TaskContributors[:0]

	for _, msg := range a.Inbox {
		a.evaluateMessage(ctx, msg)
	}

	action := a.chooseAction(ctx)
	a.execute(ctx, action)

	out := Outcome{Action: action}
	if t := a.ownTask(ctx); t != nil && t.IsComplete() {
		a.distributePayoff(ctx, t)
		id := t.ID
		out.Completed = &id
	}

	a.Inbox = nil
	return out
}

func (a *Agent) evaluateMessage(ctx Context, msg Message) {
	switch msg.Kind {
	case MsgHelpRequest:
		a.PossibleTasks = append(a.PossibleTasks, msg.TaskID)
	case MsgContactRequest:
		a.handleContactRequest(ctx, msg.Sender)
	case MsgAcknowledgment:
		a.log(msg.Sender, acknowledgedValue, msg.Timestamp)
		if msg.Sender != a.ID && a.Task != nil && *a.Task == msg.TaskID {
			a.addContributor(msg.Sender)
		}
	case MsgPayoff:
		a.Wealth += msg.Amount
		t := ctx.Task(msg.TaskID)
		if t == nil || t.Owner == nil {
			return
		}
		owner := ctx.Agent(*t.Owner)
		if owner == nil {
			return
		}
		fair := t.FairPay(owner.Greed)
		a.log(msg.Sender, 1+(msg.Amount-fair)/fair, msg.Timestamp)
	}
}

// handleContactRequest introduces requester to one of a's neighbors with
// probability 1 - Centralization. The outcome is logged in a's own history
// with the requester as counterparty.
func (a *Agent) handleContactRequest(ctx Context, requester AgentID) {
	rng := ctx.Rand()
	requesterAgent := ctx.Agent(requester)
	if requesterAgent == nil || rng.Float() < a.Centralization {
		a.log(requester, introductionDenied, ctx.Clock())
		return
	}

	var options []AgentID
	for _, nb := range a.Neighbors() {
		if nb != requester && !requesterAgent.IsNeighbor(nb) {
			options = append(options, nb)
		}
	}
	if len(options) == 0 {
		a.log(requester, introductionDenied, ctx.Clock())
		return
	}

	pick := options[rng.Intn(len(options))]
	if ctx.Connect(requester, pick) {
		a.log(requester, introductionMade, ctx.Clock())
		return
	}
	a.log(requester, introductionDenied, ctx.Clock())
}

// ownTask returns the agent's task if it is still active.
func (a *Agent) ownTask(ctx Context) *tasks.Task {
	if a.Task == nil {
		return nil
	}
	t := ctx.Task(*a.Task)
	if t == nil || !t.Active {
		return nil
	}
	return t
}

func (a *Agent) chooseAction(ctx Context) Action {
	cands := a.actionCandidates(ctx)
	weights := make([]float64, len(cands))
	for i, c := range cands {
		weights[i] = c.weight
	}
	if idx := ctx.Rand().WeightedIndex(weights); idx >= 0 {
		return cands[idx].action
	}

	// Nothing worth weighing: reach out or look for someone new.
	if len(a.Network) == 0 || ctx.Rand().Float() < 0.5 {
		return Action{AgentID: a.ID, Kind: ActionSeek}
	}
	return Action{AgentID: a.ID, Kind: ActionCommunicate}
}

// actionCandidates lists the weighted options for this activation: helping on
// each distinct foreign task offered, then either the own task against
// broadcasting for help or, with offers but no task, one outreach option
// weighted by the mean offer.
func (a *Agent) actionCandidates(ctx Context) []candidate {
	var cands []candidate

	seen := make(map[tasks.TaskID]bool, len(a.PossibleTasks))
	for _, id := range a.PossibleTasks {
		if seen[id] {
			continue
		}
		seen[id] = true

		t := ctx.Task(id)
		if t == nil || !t.Active || t.Owner == nil || *t.Owner == a.ID {
			continue
		}
		owner := ctx.Agent(*t.Owner)
		if owner == nil {
			continue
		}
		cands = append(cands, candidate{
			action: Action{AgentID: a.ID, Kind: ActionAct, Task: id},
			weight: a.helpWeight(ctx, owner.ID) * t.FairPay(owner.Greed),
		})
	}

	if own := a.ownTask(ctx); own != nil {
		cands = append(cands, candidate{
			action: Action{AgentID: a.ID, Kind: ActionAct, Task: own.ID, Own: true},
			weight: own.Payoff * a.Greed,
		})
		if len(a.Network) > 0 {
			cands = append(cands, candidate{
				action: Action{AgentID: a.ID, Kind: ActionCommunicate},
				weight: own.Payoff * (1 - a.Greed),
			})
		}
	} else if len(a.PossibleTasks) > 0 {
		mean := 0.0
		if len(cands) > 0 {
			for _, c := range cands {
				mean += c.weight
			}
			mean /= float64(len(cands))
		}
		kind := ActionSeek
		if len(a.Network) > 0 {
			kind = ActionCommunicate
		}
		cands = append(cands, candidate{action: Action{AgentID: a.ID, Kind: kind}, weight: mean})
	}
	return cands
}

func (a *Agent) execute(ctx Context, action Action) {
	switch action.Kind {
	case ActionAct:
		t := ctx.Task(action.Task)
		if t == nil || !t.Active {
			return
		}
		t.ExecuteSubtask(ctx.Clock())
		if action.Own || t.Owner == nil {
			return
		}
		owner := ctx.Agent(*t.Owner)
		if owner == nil || owner.HasPendingAck(a.ID, t.ID) {
			return
		}
		ctx.Deliver(Message{
			Sender:    a.ID,
			Receiver:  owner.ID,
			Timestamp: ctx.Clock(),
			Kind:      MsgAcknowledgment,
			TaskID:    t.ID,
		})
		t.Workers = append(t.Workers, a.ID)

	case ActionCommunicate:
		own := a.ownTask(ctx)
		for _, nb := range a.Neighbors() {
			msg := Message{Sender: a.ID, Receiver: nb, Timestamp: ctx.Clock(), Kind: MsgContactRequest}
			if own != nil {
				msg.Kind = MsgHelpRequest
				msg.TaskID = own.ID
			}
			ctx.Deliver(msg)
		}

	case ActionSeek:
		ctx.IntroduceRandom(a.ID)
	}
}

// distributePayoff completes t, keeps the owner's cut, and splits the rest
// among this activation's contributors by floored willingness to help.
// If no contributor carries positive weight the owner keeps everything.
func (a *Agent) distributePayoff(ctx Context, t *tasks.Task) {
	t.Complete()

	ownerShare := a.Greed * t.Payoff
	pool := t.Payoff - ownerShare

	weights := make([]float64, len(a.TaskContributors))
	total := 0.0
	for i, c := range a.TaskContributors {
		weights[i] = a.helpWeight(ctx, c)
		total += weights[i]
	}

	payouts := make(map[AgentID]float64)
	if total <= 0 {
		ownerShare += pool
	} else {
		for i, c := range a.TaskContributors {
			share := pool * weights[i] / total
			if share <= 0 {
				continue
			}
			payouts[c] = share
			ctx.Deliver(Message{
				Sender:    a.ID,
				Receiver:  c,
				Timestamp: ctx.Clock(),
				Kind:      MsgPayoff,
				TaskID:    t.ID,
				Amount:    share,
			})
		}
	}

	a.Wealth += ownerShare
	t.RecordPayouts(ownerShare, payouts)
	a.Task = nil

	slog.Debug("task completed",
		"task", t.ID,
		"owner", a.ID,
		"payoff", t.Payoff,
		"owner_share", ownerShare,
		"contributors", len(payouts),
	)
}
