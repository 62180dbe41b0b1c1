package workflow

import (
	"errors"
	"fmt"
	"strings"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"

	"github.com/google/uuid"
)

var (
	ErrLastState     = errors.New("cannot delete the only state of a group")
	ErrStateNotFound = errors.New("state not found")
	ErrNoSuchEdge    = errors.New("transition not found")
)

const (
	defaultInitialState = "WAIT"
	defaultEstDuration  = 5
)

// Draft is an administrator's in-memory working copy of a workflow
// definition. Mutations are pure local edits; nothing touches the backing
// store until Store.Save is called with the draft's definition.
type Draft struct {
	def models.WorkflowDefinition
}

func NewDraft(def models.WorkflowDefinition) *Draft {
	return &Draft{def: Backfill(def, def.ProfileID)}
}

func (d *Draft) Definition() models.WorkflowDefinition {
	return d.def
}

// AddServiceGroup creates a group with a single INITIAL "Waiting" state and
// no transitions, and returns the generated code so the caller can select
// it immediately.
func (d *Draft) AddServiceGroup() string {
	code := "Q-" + shortCode()
	group := models.ServiceGroup{
		Code:         code,
		Name:         "New Queue Type",
		Priority:     "Standard",
		InitialState: defaultInitialState,
		States: map[string]models.StateDefinition{
			defaultInitialState: {
				Code:        defaultInitialState,
				Label:       "Waiting",
				Type:        models.StateTypeInitial,
				Transitions: []models.Transition{},
			},
		},
	}
	d.def.ServiceGroups = append(d.def.ServiceGroups, group)
	return code
}

// AddState appends a NORMAL state with a placeholder duration and returns
// its generated code.
func (d *Draft) AddState(groupCode string) (string, error) {
	group, gi, err := d.group(groupCode)
	if err != nil {
		return "", err
	}
	code := nextStateCode(group.States)
	group.States[code] = models.StateDefinition{
		Code:        code,
		Label:       "New State",
		Type:        models.StateTypeNormal,
		Transitions: []models.Transition{},
		EstDuration: defaultEstDuration,
	}
	d.def.ServiceGroups[gi] = group
	return code, nil
}

// StateUpdate carries optional field changes; nil pointers leave the field
// untouched.
type StateUpdate struct {
	Label       *string
	Type        *string
	Color       *string
	EstDuration *int
}

func (d *Draft) UpdateState(groupCode, stateCode string, update StateUpdate) error {
	group, gi, err := d.group(groupCode)
	if err != nil {
		return err
	}
	state, ok := group.States[stateCode]
	if !ok {
		return ErrStateNotFound
	}
	if update.Label != nil {
		state.Label = *update.Label
	}
	if update.Type != nil {
		state.Type = *update.Type
	}
	if update.Color != nil {
		state.Color = *update.Color
	}
	if update.EstDuration != nil {
		state.EstDuration = *update.EstDuration
	}
	group.States[stateCode] = state
	d.def.ServiceGroups[gi] = group
	return nil
}

func (d *Draft) RenameState(groupCode, stateCode, label string) error {
	return d.UpdateState(groupCode, stateCode, StateUpdate{Label: &label})
}

// DeleteState removes a state. Deleting the last remaining state is
// rejected since initialState must always resolve. Transitions elsewhere
// that pointed at the deleted state are left dangling on purpose: Validate
// reports them and Save refuses the definition until the admin fixes the
// graph.
func (d *Draft) DeleteState(groupCode, stateCode string) error {
	group, gi, err := d.group(groupCode)
	if err != nil {
		return err
	}
	if _, ok := group.States[stateCode]; !ok {
		return ErrStateNotFound
	}
	if len(group.States) == 1 {
		return ErrLastState
	}
	delete(group.States, stateCode)
	d.def.ServiceGroups[gi] = group
	return nil
}

// AddTransition appends a labeled edge. Cycles are legal (for example
// "Hold" and "Resume" between two states); both endpoints must currently
// exist in the group.
func (d *Draft) AddTransition(groupCode, fromState, toState, action string, requiredRole ...string) error {
	group, gi, err := d.group(groupCode)
	if err != nil {
		return err
	}
	state, ok := group.States[fromState]
	if !ok {
		return ErrStateNotFound
	}
	if _, ok := group.States[toState]; !ok {
		return ErrStateNotFound
	}
	state.Transitions = append(state.Transitions, models.Transition{
		Action:       action,
		To:           toState,
		RequiredRole: requiredRole,
	})
	group.States[fromState] = state
	d.def.ServiceGroups[gi] = group
	return nil
}

// RemoveTransition deletes the edge at the given index of a state's
// transition list, matching how the designer edits them positionally.
func (d *Draft) RemoveTransition(groupCode, stateCode string, index int) error {
	group, gi, err := d.group(groupCode)
	if err != nil {
		return err
	}
	state, ok := group.States[stateCode]
	if !ok {
		return ErrStateNotFound
	}
	if index < 0 || index >= len(state.Transitions) {
		return ErrNoSuchEdge
	}
	state.Transitions = append(state.Transitions[:index], state.Transitions[index+1:]...)
	group.States[stateCode] = state
	d.def.ServiceGroups[gi] = group
	return nil
}

func (d *Draft) group(code string) (models.ServiceGroup, int, error) {
	for i, group := range d.def.ServiceGroups {
		if group.Code == code {
			return group, i, nil
		}
	}
	return models.ServiceGroup{}, -1, store.ErrGroupNotFound
}

func nextStateCode(states map[string]models.StateDefinition) string {
	for i := len(states) + 1; ; i++ {
		code := fmt.Sprintf("STATE_%d", i)
		if _, ok := states[code]; !ok {
			return code
		}
	}
}

func shortCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}
