// Package routing gates every staff-initiated ticket mutation against the
// profile's workflow graph and the actor's role.
package routing

import (
	"context"
	"log"
	"time"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
)

// Action is a legal next move from a ticket's current state, rendered as a
// console button.
type Action struct {
	Label       string `json:"label"`
	TargetState string `json:"targetState"`
}

// Actor identifies who is applying a transition and from which station.
type Actor struct {
	Role      string
	PointCode string
}

// WorkflowLoader yields the backfilled definition for a profile.
type WorkflowLoader interface {
	Load(ctx context.Context, profileID string) (models.WorkflowDefinition, error)
}

type Validator struct {
	workflows WorkflowLoader
	tickets   store.TicketStore
}

func NewValidator(workflows WorkflowLoader, tickets store.TicketStore) *Validator {
	return &Validator{workflows: workflows, tickets: tickets}
}

// AvailableActions returns the transitions out of the given state that the
// role may take. A FINAL or unknown state yields an empty list, not an
// error: a console pointed at a stale or foreign state simply shows no
// buttons.
func AvailableActions(def models.WorkflowDefinition, groupCode, stateCode, role string) []Action {
	group, ok := def.Group(groupCode)
	if !ok {
		log.Printf("routing unknown group profile=%s group=%s", def.ProfileID, groupCode)
		return []Action{}
	}
	state, ok := group.State(stateCode)
	if !ok {
		log.Printf("routing unknown state profile=%s group=%s state=%s", def.ProfileID, groupCode, stateCode)
		return []Action{}
	}
	// A FINAL state is terminal even if the stored definition carries
	// edges out of it.
	if state.Type == models.StateTypeFinal {
		return []Action{}
	}
	actions := []Action{}
	for _, transition := range state.Transitions {
		if !transition.AllowsRole(role) {
			continue
		}
		actions = append(actions, Action{Label: transition.Action, TargetState: transition.To})
	}
	return actions
}

// ActionsForTicket resolves the ticket's current server-confirmed state and
// returns the actions available to the role.
func (v *Validator) ActionsForTicket(ctx context.Context, docNo, role string) ([]Action, error) {
	ticket, err := v.tickets.GetTicket(ctx, docNo)
	if err != nil {
		return nil, err
	}
	def, err := v.workflows.Load(ctx, ticket.ProfileID)
	if err != nil {
		return nil, err
	}
	return AvailableActions(def, ticket.ServiceGroup, ticket.Status, role), nil
}

// Apply moves a ticket to targetState if the workflow graph has a matching
// role-permitted edge from the ticket's current state. The store performs
// the actual update as a compare-and-swap on that current state, so a race
// with another station surfaces as store.ErrStateMismatch and the caller
// must refresh and re-derive actions before retrying.
func (v *Validator) Apply(ctx context.Context, requestID, docNo, targetState string, actor Actor) (models.Ticket, error) {
	ticket, err := v.tickets.GetTicket(ctx, docNo)
	if err != nil {
		return models.Ticket{}, err
	}
	def, err := v.workflows.Load(ctx, ticket.ProfileID)
	if err != nil {
		return models.Ticket{}, err
	}
	group, ok := def.Group(ticket.ServiceGroup)
	if !ok {
		return models.Ticket{}, store.ErrGroupNotFound
	}
	state, ok := group.State(ticket.Status)
	if !ok {
		return models.Ticket{}, store.ErrTransitionNotAllowed
	}
	if state.Type == models.StateTypeFinal {
		return models.Ticket{}, store.ErrTransitionNotAllowed
	}
	if !hasEdge(state, targetState, actor.Role) {
		return models.Ticket{}, store.ErrTransitionNotAllowed
	}
	return v.tickets.TransitionTicket(ctx, store.TransitionInput{
		RequestID:  requestID,
		DocNo:      docNo,
		FromStatus: ticket.Status,
		ToStatus:   targetState,
		ActorRole:  actor.Role,
		PointCode:  actor.PointCode,
		OccurredAt: time.Now().UTC(),
	})
}

// BulkResult reports per-ticket outcomes of a bulk action.
type BulkResult struct {
	Applied  []string          `json:"applied"`
	Rejected map[string]string `json:"rejected,omitempty"`
}

// ApplyBulk applies the named action (matched by button label) to each
// ticket from its own current state. Every ticket is validated and moved
// independently; one rejection never aborts the rest.
func (v *Validator) ApplyBulk(ctx context.Context, requestID string, docNos []string, actionLabel string, actor Actor) (BulkResult, error) {
	result := BulkResult{Applied: []string{}, Rejected: map[string]string{}}
	for _, docNo := range docNos {
		ticket, err := v.tickets.GetTicket(ctx, docNo)
		if err != nil {
			result.Rejected[docNo] = err.Error()
			continue
		}
		def, err := v.workflows.Load(ctx, ticket.ProfileID)
		if err != nil {
			return result, err
		}
		target, ok := targetForLabel(def, ticket, actionLabel, actor.Role)
		if !ok {
			result.Rejected[docNo] = store.ErrTransitionNotAllowed.Error()
			continue
		}
		if _, err := v.Apply(ctx, requestID, docNo, target, actor); err != nil {
			result.Rejected[docNo] = err.Error()
			continue
		}
		result.Applied = append(result.Applied, docNo)
	}
	return result, nil
}

func targetForLabel(def models.WorkflowDefinition, ticket models.Ticket, label, role string) (string, bool) {
	for _, action := range AvailableActions(def, ticket.ServiceGroup, ticket.Status, role) {
		if action.Label == label {
			return action.TargetState, true
		}
	}
	return "", false
}

func hasEdge(state models.StateDefinition, targetState, role string) bool {
	for _, transition := range state.Transitions {
		if transition.To == targetState && transition.AllowsRole(role) {
			return true
		}
	}
	return false
}
