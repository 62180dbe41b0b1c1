package models

// State types within a service group's lifecycle. A group has exactly one
// INITIAL state; FINAL states are terminal for normal operation.
const (
	StateTypeInitial = "INITIAL"
	StateTypeNormal  = "NORMAL"
	StateTypeFinal   = "FINAL"
)

// BusinessTypeFlowSteps marks a service group whose display boards render
// one column per workflow state instead of the fixed three-column layout.
const BusinessTypeFlowSteps = "flow-steps"

const (
	RoleAdmin = "ADMIN"
	RoleStaff = "STAFF"
	RoleKiosk = "KIOSK"
)

type Transition struct {
	Action       string   `json:"action" yaml:"action"`
	To           string   `json:"to" yaml:"to"`
	RequiredRole []string `json:"requiredRole,omitempty" yaml:"requiredRole,omitempty"`
}

// AllowsRole reports whether the transition is open to the given actor
// role. An empty RequiredRole list means any role may take the edge.
func (t Transition) AllowsRole(role string) bool {
	if len(t.RequiredRole) == 0 {
		return true
	}
	for _, r := range t.RequiredRole {
		if r == role {
			return true
		}
	}
	return false
}

type StateDefinition struct {
	Code        string       `json:"code" yaml:"code"`
	Label       string       `json:"label" yaml:"label"`
	Type        string       `json:"type" yaml:"type"`
	Color       string       `json:"color,omitempty" yaml:"color,omitempty"`
	Transitions []Transition `json:"transitions" yaml:"transitions"`
	EstDuration int          `json:"estDuration,omitempty" yaml:"estDuration,omitempty"`
}

type ServiceGroup struct {
	Code         string                     `json:"code" yaml:"code"`
	Name         string                     `json:"name" yaml:"name"`
	Description  string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Priority     string                     `json:"priority,omitempty" yaml:"priority,omitempty"`
	BusinessType string                     `json:"businessType,omitempty" yaml:"businessType,omitempty"`
	InitialState string                     `json:"initialState" yaml:"initialState"`
	States       map[string]StateDefinition `json:"states" yaml:"states"`
}

// State looks up a state definition by code.
func (g ServiceGroup) State(code string) (StateDefinition, bool) {
	state, ok := g.States[code]
	return state, ok
}

// ServicePoint is a staff-operated station. FocusStates limits which
// states it acts on (the group's initial state is always implied so new
// arrivals can be picked up); ServiceGroups limits which groups it serves.
// Empty lists mean no restriction.
type ServicePoint struct {
	Code          string   `json:"code" yaml:"code"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	FocusStates   []string `json:"focusStates" yaml:"focusStates"`
	ServiceGroups []string `json:"serviceGroups" yaml:"serviceGroups"`
}

type Kiosk struct {
	Code                 string   `json:"code" yaml:"code"`
	Name                 string   `json:"name" yaml:"name"`
	Description          string   `json:"description,omitempty" yaml:"description,omitempty"`
	Title                string   `json:"title,omitempty" yaml:"title,omitempty"`
	VisibleServiceGroups []string `json:"visibleServiceGroups" yaml:"visibleServiceGroups"`
}

type DisplayBoard struct {
	Code                 string   `json:"code" yaml:"code"`
	Name                 string   `json:"name" yaml:"name"`
	Description          string   `json:"description,omitempty" yaml:"description,omitempty"`
	Title                string   `json:"title,omitempty" yaml:"title,omitempty"`
	VisibleServiceGroups []string `json:"visibleServiceGroups" yaml:"visibleServiceGroups"`
}

// WorkflowDefinition is the persisted per-profile configuration document.
// Its JSON shape is the contract other tooling reads and writes.
type WorkflowDefinition struct {
	ProfileID     string         `json:"profileId" yaml:"profileId"`
	ProfileName   string         `json:"profileName,omitempty" yaml:"profileName,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	ServiceGroups []ServiceGroup `json:"serviceGroups" yaml:"serviceGroups"`
	ServicePoints []ServicePoint `json:"servicePoints" yaml:"servicePoints"`
	Kiosks        []Kiosk        `json:"kiosks" yaml:"kiosks"`
	DisplayBoards []DisplayBoard `json:"displayBoards" yaml:"displayBoards"`
}

// Group looks up a service group by code.
func (d WorkflowDefinition) Group(code string) (ServiceGroup, bool) {
	for _, group := range d.ServiceGroups {
		if group.Code == code {
			return group, true
		}
	}
	return ServiceGroup{}, false
}

// Point looks up a service point by code.
func (d WorkflowDefinition) Point(code string) (ServicePoint, bool) {
	for _, point := range d.ServicePoints {
		if point.Code == code {
			return point, true
		}
	}
	return ServicePoint{}, false
}

// KioskByCode looks up a kiosk by code.
func (d WorkflowDefinition) KioskByCode(code string) (Kiosk, bool) {
	for _, kiosk := range d.Kiosks {
		if kiosk.Code == code {
			return kiosk, true
		}
	}
	return Kiosk{}, false
}

// Board looks up a display board by code.
func (d WorkflowDefinition) Board(code string) (DisplayBoard, bool) {
	for _, board := range d.DisplayBoards {
		if board.Code == code {
			return board, true
		}
	}
	return DisplayBoard{}, false
}

type Profile struct {
	Code    string `json:"code" yaml:"code"`
	Name    string `json:"name" yaml:"name"`
	AgnCode string `json:"agnCode,omitempty" yaml:"agnCode,omitempty"`
}
