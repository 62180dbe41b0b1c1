// Package workflow holds the per-profile workflow definition: loading with
// defaulting, draft mutations for the designer, structural validation, and
// last-writer-wins persistence.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
)

type Store struct {
	backend store.WorkflowStore
}

func NewStore(backend store.WorkflowStore) *Store {
	return &Store{backend: backend}
}

// Load fetches the profile's workflow definition and backfills missing
// optional collections to empty slices, so downstream code never branches
// on nil. The defaulting happens once here, never ad hoc at read sites.
func (s *Store) Load(ctx context.Context, profileID string) (models.WorkflowDefinition, error) {
	def, err := s.backend.GetWorkflow(ctx, profileID)
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return Backfill(def, profileID), nil
}

// Save validates the definition and replaces the persisted document
// wholesale. Last writer wins; there is no concurrency token because saves
// are administrator-initiated and infrequent. On failure the caller keeps
// its local draft.
func (s *Store) Save(ctx context.Context, def models.WorkflowDefinition) error {
	if findings := Validate(def); len(findings) > 0 {
		return &ValidationError{Findings: findings}
	}
	return s.backend.SaveWorkflow(ctx, def)
}

// Backfill normalizes a loaded definition: nil collections become empty
// slices, each group's states learn their own codes, and the profile id is
// injected when the stored document predates it.
func Backfill(def models.WorkflowDefinition, profileID string) models.WorkflowDefinition {
	if def.ProfileID == "" {
		def.ProfileID = profileID
	}
	if def.ServiceGroups == nil {
		def.ServiceGroups = []models.ServiceGroup{}
	}
	if def.ServicePoints == nil {
		def.ServicePoints = []models.ServicePoint{}
	}
	if def.Kiosks == nil {
		def.Kiosks = []models.Kiosk{}
	}
	if def.DisplayBoards == nil {
		def.DisplayBoards = []models.DisplayBoard{}
	}
	for gi, group := range def.ServiceGroups {
		if group.States == nil {
			def.ServiceGroups[gi].States = map[string]models.StateDefinition{}
			continue
		}
		for code, state := range group.States {
			if state.Code == "" {
				state.Code = code
			}
			if state.Transitions == nil {
				state.Transitions = []models.Transition{}
			}
			group.States[code] = state
		}
	}
	return def
}

// Finding is a single structural problem in a workflow definition.
type Finding struct {
	GroupCode string `json:"groupCode,omitempty"`
	StateCode string `json:"stateCode,omitempty"`
	Message   string `json:"message"`
}

type ValidationError struct {
	Findings []Finding
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		if f.GroupCode != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", f.GroupCode, f.Message))
			continue
		}
		parts = append(parts, f.Message)
	}
	return "invalid workflow: " + strings.Join(parts, "; ")
}

// Validate checks the structural invariants of a definition and returns
// every finding rather than stopping at the first. Dangling transition
// targets (for example after a state deletion) are reported here instead
// of being silently repaired.
func Validate(def models.WorkflowDefinition) []Finding {
	var findings []Finding
	seen := map[string]bool{}
	for _, group := range def.ServiceGroups {
		if group.Code == "" {
			findings = append(findings, Finding{Message: "service group with empty code"})
			continue
		}
		if seen[group.Code] {
			findings = append(findings, Finding{GroupCode: group.Code, Message: "duplicate service group code"})
			continue
		}
		seen[group.Code] = true

		if len(group.States) == 0 {
			findings = append(findings, Finding{GroupCode: group.Code, Message: "service group has no states"})
			continue
		}

		initialCount := 0
		for code, state := range group.States {
			if state.Type == models.StateTypeInitial {
				initialCount++
				if code != group.InitialState {
					findings = append(findings, Finding{
						GroupCode: group.Code,
						StateCode: code,
						Message:   "INITIAL state does not match initialState",
					})
				}
			}
			for _, transition := range state.Transitions {
				if _, ok := group.States[transition.To]; !ok {
					findings = append(findings, Finding{
						GroupCode: group.Code,
						StateCode: code,
						Message:   fmt.Sprintf("transition %q targets unknown state %q", transition.Action, transition.To),
					})
				}
			}
		}
		if initialCount != 1 {
			findings = append(findings, Finding{
				GroupCode: group.Code,
				Message:   fmt.Sprintf("expected exactly one INITIAL state, found %d", initialCount),
			})
		}
		if _, ok := group.States[group.InitialState]; !ok {
			findings = append(findings, Finding{
				GroupCode: group.Code,
				Message:   fmt.Sprintf("initialState %q is not a defined state", group.InitialState),
			})
		}
	}
	return findings
}
