package workflow

import (
	"context"
	"errors"
	"testing"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clinicDefinition() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ProfileID:   "PF-CLINIC",
		ProfileName: "Downtown Clinic",
		ServiceGroups: []models.ServiceGroup{
			{
				Code:         "CONSULT",
				Name:         "Consultation",
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT": {
						Code:  "WAIT",
						Label: "Waiting",
						Type:  models.StateTypeInitial,
						Transitions: []models.Transition{
							{Action: "Call", To: "CALL"},
						},
					},
					"CALL": {
						Code:  "CALL",
						Label: "Calling",
						Type:  models.StateTypeNormal,
						Transitions: []models.Transition{
							{Action: "Start", To: "SERVE"},
							{Action: "No Show", To: "DONE"},
						},
					},
					"SERVE": {
						Code:  "SERVE",
						Label: "Serving",
						Type:  models.StateTypeNormal,
						Transitions: []models.Transition{
							{Action: "Finish", To: "DONE"},
						},
					},
					"DONE": {
						Code:        "DONE",
						Label:       "Completed",
						Type:        models.StateTypeFinal,
						Transitions: []models.Transition{},
					},
				},
			},
		},
	}
}

func TestValidateAcceptsWellFormedDefinition(t *testing.T) {
	assert.Empty(t, Validate(clinicDefinition()))
}

func TestValidateReportsAllFindings(t *testing.T) {
	def := models.WorkflowDefinition{
		ProfileID: "PF-1",
		ServiceGroups: []models.ServiceGroup{
			{Code: "", States: map[string]models.StateDefinition{}},
			{Code: "EMPTY", InitialState: "WAIT", States: map[string]models.StateDefinition{}},
			{
				Code:         "BROKEN",
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT": {Code: "WAIT", Type: models.StateTypeInitial, Transitions: []models.Transition{
						{Action: "Call", To: "GONE"},
					}},
				},
			},
		},
	}

	findings := Validate(def)
	require.Len(t, findings, 3)

	messages := make([]string, len(findings))
	for i, f := range findings {
		messages[i] = f.Message
	}
	assert.Contains(t, messages, "service group with empty code")
	assert.Contains(t, messages, "service group has no states")
	assert.Contains(t, messages, `transition "Call" targets unknown state "GONE"`)
}

func TestValidateRequiresSingleInitialState(t *testing.T) {
	def := clinicDefinition()
	group := def.ServiceGroups[0]
	call := group.States["CALL"]
	call.Type = models.StateTypeInitial
	group.States["CALL"] = call
	def.ServiceGroups[0] = group

	findings := Validate(def)
	require.NotEmpty(t, findings)

	found := false
	for _, f := range findings {
		if f.Message == "expected exactly one INITIAL state, found 2" {
			found = true
		}
	}
	assert.True(t, found, "findings: %v", findings)
}

func TestValidateRejectsDuplicateGroupCodes(t *testing.T) {
	def := clinicDefinition()
	def.ServiceGroups = append(def.ServiceGroups, def.ServiceGroups[0])

	findings := Validate(def)
	require.Len(t, findings, 1)
	assert.Equal(t, "CONSULT", findings[0].GroupCode)
	assert.Equal(t, "duplicate service group code", findings[0].Message)
}

func TestBackfillNormalizesLoadedDocument(t *testing.T) {
	def := Backfill(models.WorkflowDefinition{
		ServiceGroups: []models.ServiceGroup{
			{
				Code:         "TRIAGE",
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT": {Label: "Waiting", Type: models.StateTypeInitial},
				},
			},
		},
	}, "PF-9")

	assert.Equal(t, "PF-9", def.ProfileID)
	assert.NotNil(t, def.ServicePoints)
	assert.NotNil(t, def.Kiosks)
	assert.NotNil(t, def.DisplayBoards)
	assert.Equal(t, "WAIT", def.ServiceGroups[0].States["WAIT"].Code)
	assert.NotNil(t, def.ServiceGroups[0].States["WAIT"].Transitions)
}

type fakeBackend struct {
	getFn  func(ctx context.Context, profileID string) (models.WorkflowDefinition, error)
	saveFn func(ctx context.Context, def models.WorkflowDefinition) error
}

func (f fakeBackend) ListProfiles(ctx context.Context) ([]models.Profile, error) { return nil, nil }
func (f fakeBackend) CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	return p, nil
}
func (f fakeBackend) UpdateProfile(ctx context.Context, p models.Profile) error { return nil }
func (f fakeBackend) DeleteProfile(ctx context.Context, code string) error      { return nil }
func (f fakeBackend) GetWorkflow(ctx context.Context, profileID string) (models.WorkflowDefinition, error) {
	return f.getFn(ctx, profileID)
}
func (f fakeBackend) SaveWorkflow(ctx context.Context, def models.WorkflowDefinition) error {
	if f.saveFn == nil {
		return nil
	}
	return f.saveFn(ctx, def)
}

func TestSaveRefusesInvalidDefinition(t *testing.T) {
	saved := false
	s := NewStore(fakeBackend{saveFn: func(ctx context.Context, def models.WorkflowDefinition) error {
		saved = true
		return nil
	}})

	def := clinicDefinition()
	group := def.ServiceGroups[0]
	delete(group.States, "DONE")
	def.ServiceGroups[0] = group

	err := s.Save(context.Background(), def)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.Findings)
	assert.False(t, saved, "invalid definition must not reach the backend")
}

func TestSavePersistsValidDefinition(t *testing.T) {
	var got models.WorkflowDefinition
	s := NewStore(fakeBackend{saveFn: func(ctx context.Context, def models.WorkflowDefinition) error {
		got = def
		return nil
	}})

	require.NoError(t, s.Save(context.Background(), clinicDefinition()))
	assert.Equal(t, "PF-CLINIC", got.ProfileID)
}

func TestLoadBackfillsAndPropagatesNotFound(t *testing.T) {
	s := NewStore(fakeBackend{getFn: func(ctx context.Context, profileID string) (models.WorkflowDefinition, error) {
		if profileID == "PF-MISSING" {
			return models.WorkflowDefinition{}, store.ErrWorkflowNotFound
		}
		return models.WorkflowDefinition{}, nil
	}})

	def, err := s.Load(context.Background(), "PF-1")
	require.NoError(t, err)
	assert.Equal(t, "PF-1", def.ProfileID)
	assert.NotNil(t, def.ServiceGroups)

	_, err = s.Load(context.Background(), "PF-MISSING")
	assert.True(t, errors.Is(err, store.ErrWorkflowNotFound))
}

func TestDraftAddServiceGroupSeedsInitialState(t *testing.T) {
	draft := NewDraft(models.WorkflowDefinition{ProfileID: "PF-1"})
	code := draft.AddServiceGroup()

	def := draft.Definition()
	require.Len(t, def.ServiceGroups, 1)
	group := def.ServiceGroups[0]
	assert.Equal(t, code, group.Code)
	assert.Equal(t, "WAIT", group.InitialState)
	require.Contains(t, group.States, "WAIT")
	assert.Equal(t, models.StateTypeInitial, group.States["WAIT"].Type)
	assert.Empty(t, Validate(def))
}

func TestDraftAddAndUpdateState(t *testing.T) {
	draft := NewDraft(models.WorkflowDefinition{ProfileID: "PF-1"})
	groupCode := draft.AddServiceGroup()

	stateCode, err := draft.AddState(groupCode)
	require.NoError(t, err)
	assert.Equal(t, "STATE_2", stateCode)

	label := "Vitals Check"
	color := "#22c55e"
	duration := 10
	require.NoError(t, draft.UpdateState(groupCode, stateCode, StateUpdate{
		Label:       &label,
		Color:       &color,
		EstDuration: &duration,
	}))

	state := draft.Definition().ServiceGroups[0].States[stateCode]
	assert.Equal(t, "Vitals Check", state.Label)
	assert.Equal(t, "#22c55e", state.Color)
	assert.Equal(t, 10, state.EstDuration)
	assert.Equal(t, models.StateTypeNormal, state.Type)
}

func TestDraftDeleteLastStateRejected(t *testing.T) {
	draft := NewDraft(models.WorkflowDefinition{ProfileID: "PF-1"})
	groupCode := draft.AddServiceGroup()

	err := draft.DeleteState(groupCode, "WAIT")
	assert.ErrorIs(t, err, ErrLastState)
}

func TestDraftDeleteStateLeavesDanglingEdgeForValidation(t *testing.T) {
	draft := NewDraft(clinicDefinition())
	require.NoError(t, draft.DeleteState("CONSULT", "SERVE"))

	findings := Validate(draft.Definition())
	require.Len(t, findings, 1)
	assert.Equal(t, "CALL", findings[0].StateCode)
	assert.Equal(t, `transition "Start" targets unknown state "SERVE"`, findings[0].Message)
}

func TestDraftTransitionEndpointsMustExist(t *testing.T) {
	draft := NewDraft(clinicDefinition())

	assert.ErrorIs(t, draft.AddTransition("CONSULT", "WAIT", "NOWHERE", "Jump"), ErrStateNotFound)
	assert.ErrorIs(t, draft.AddTransition("CONSULT", "NOWHERE", "WAIT", "Jump"), ErrStateNotFound)
	assert.ErrorIs(t, draft.AddTransition("GHOST", "WAIT", "CALL", "Jump"), store.ErrGroupNotFound)

	require.NoError(t, draft.AddTransition("CONSULT", "SERVE", "CALL", "Recall", models.RoleStaff))
	state := draft.Definition().ServiceGroups[0].States["SERVE"]
	require.Len(t, state.Transitions, 2)
	assert.Equal(t, []string{models.RoleStaff}, state.Transitions[1].RequiredRole)
}

func TestDraftCyclesAreLegal(t *testing.T) {
	draft := NewDraft(clinicDefinition())
	require.NoError(t, draft.AddTransition("CONSULT", "SERVE", "WAIT", "Hold"))
	require.NoError(t, draft.AddTransition("CONSULT", "WAIT", "SERVE", "Resume"))
	assert.Empty(t, Validate(draft.Definition()))
}

func TestDraftRemoveTransition(t *testing.T) {
	draft := NewDraft(clinicDefinition())

	require.NoError(t, draft.RemoveTransition("CONSULT", "CALL", 1))
	state := draft.Definition().ServiceGroups[0].States["CALL"]
	require.Len(t, state.Transitions, 1)
	assert.Equal(t, "Start", state.Transitions[0].Action)

	assert.ErrorIs(t, draft.RemoveTransition("CONSULT", "CALL", 5), ErrNoSuchEdge)
}
