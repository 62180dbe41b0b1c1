// Package scope maps a touchpoint's configuration to the subset of groups,
// states, and tickets it may show or act on.
package scope

import (
	"sort"
	"strings"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
)

// Touchpoint kinds carried in a session.
const (
	TouchpointKiosk        = "kiosk"
	TouchpointServicePoint = "service_point"
	TouchpointDisplayBoard = "display_board"
)

// Session is the explicit session context for one physical touchpoint:
// which profile it belongs to, what it is, and the acting role. It is
// initialized at touchpoint startup, cleared on an explicit switch, and
// always re-derivable from the backing store; it is never process-global.
type Session struct {
	ProfileID      string
	Touchpoint     string
	TouchpointCode string
	Role           string
}

// Layouts of a display board render plan.
const (
	LayoutFlowSteps   = "flow-steps"
	LayoutThreeColumn = "three-column"
)

// Fixed three-column layout column codes.
const (
	ColumnWaiting        = "WAITING"
	ColumnInProgress     = "IN_PROGRESS"
	ColumnServiceCounter = "SERVICE_COUNTER"
)

// Statuses always treated as in-progress on the fixed layout, in addition
// to whatever NORMAL states the visible groups define.
var baselineActiveStatuses = []string{"CALLING", "SERVING", "IN_PROGRESS", "IN_ROOM"}

type Column struct {
	Code    string          `json:"code"`
	Title   string          `json:"title"`
	Tickets []models.Ticket `json:"tickets"`
}

// RenderPlan is the derived visual layout a display board renders.
type RenderPlan struct {
	BoardCode string   `json:"boardCode"`
	Title     string   `json:"title"`
	Layout    string   `json:"layout"`
	Columns   []Column `json:"columns"`
}

// Resolver computes touchpoint views over one loaded workflow definition.
type Resolver struct {
	def models.WorkflowDefinition
}

func NewResolver(def models.WorkflowDefinition) *Resolver {
	return &Resolver{def: def}
}

// ForKiosk returns the service groups a kiosk may issue tickets for: the
// workflow's groups intersected with the kiosk's visible list, preserving
// workflow order.
func (r *Resolver) ForKiosk(session Session) ([]models.ServiceGroup, error) {
	kiosk, ok := r.def.KioskByCode(session.TouchpointCode)
	if !ok {
		return nil, store.ErrTouchpointNotFound
	}
	visible := toSet(kiosk.VisibleServiceGroups)
	groups := []models.ServiceGroup{}
	for _, group := range r.def.ServiceGroups {
		if visible[group.Code] {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// ForServicePoint filters live tickets down to the station's work scope:
// its configured groups (empty list means all), and within them its focus
// states plus each group's initial state. The initial state is always
// included so a station whose focus list only names downstream processing
// states can still pick up new arrivals. Result is FIFO by check-in time.
func (r *Resolver) ForServicePoint(session Session, tickets []models.Ticket) ([]models.Ticket, error) {
	point, ok := r.def.Point(session.TouchpointCode)
	if !ok {
		return nil, store.ErrTouchpointNotFound
	}
	groups := toSet(point.ServiceGroups)
	focus := toSet(point.FocusStates)

	result := []models.Ticket{}
	for _, ticket := range tickets {
		if len(groups) > 0 && !groups[ticket.ServiceGroup] {
			continue
		}
		if len(focus) > 0 && !focus[ticket.Status] && !r.isInitialStatus(ticket) {
			continue
		}
		result = append(result, ticket)
	}
	sortFIFO(result)
	return result, nil
}

// ForDisplayBoard derives the board's render plan. A board scoped to
// exactly one flow-steps group gets one column per non-FINAL state of that
// group; any other board gets the fixed Waiting / In-Progress / Service
// Counter layout.
func (r *Resolver) ForDisplayBoard(session Session, tickets []models.Ticket) (RenderPlan, error) {
	board, ok := r.def.Board(session.TouchpointCode)
	if !ok {
		return RenderPlan{}, store.ErrTouchpointNotFound
	}
	title := board.Title
	if title == "" {
		title = board.Name
	}

	if len(board.VisibleServiceGroups) == 1 {
		if group, ok := r.def.Group(board.VisibleServiceGroups[0]); ok &&
			group.BusinessType == models.BusinessTypeFlowSteps && len(group.States) > 0 {
			return RenderPlan{
				BoardCode: board.Code,
				Title:     title,
				Layout:    LayoutFlowSteps,
				Columns:   flowStepColumns(group, tickets),
			}, nil
		}
	}

	return RenderPlan{
		BoardCode: board.Code,
		Title:     title,
		Layout:    LayoutThreeColumn,
		Columns:   r.threeColumns(board, tickets),
	}, nil
}

// flowStepColumns emits one column per non-FINAL state. States are ordered
// INITIAL first, then NORMAL, ties broken by code, since the stored map has
// no order of its own. A ticket lands in a column when its status equals
// the state code or extends it as a case-insensitive prefix, which keeps
// sub-statuses like CALL_REPEAT under the CALL column.
func flowStepColumns(group models.ServiceGroup, tickets []models.Ticket) []Column {
	states := make([]models.StateDefinition, 0, len(group.States))
	for _, state := range group.States {
		if state.Type == models.StateTypeFinal {
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		if ri, rj := typeRank(states[i].Type), typeRank(states[j].Type); ri != rj {
			return ri < rj
		}
		return states[i].Code < states[j].Code
	})

	columns := make([]Column, 0, len(states))
	for _, state := range states {
		column := Column{Code: state.Code, Title: state.Label, Tickets: []models.Ticket{}}
		if column.Title == "" {
			column.Title = state.Code
		}
		for _, ticket := range tickets {
			if ticket.ServiceGroup != group.Code {
				continue
			}
			if statusMatchesState(ticket.Status, state.Code) {
				column.Tickets = append(column.Tickets, ticket)
			}
		}
		sortFIFO(column.Tickets)
		columns = append(columns, column)
	}
	return columns
}

func (r *Resolver) threeColumns(board models.DisplayBoard, tickets []models.Ticket) []Column {
	visible := toSet(board.VisibleServiceGroups)
	active := toSet(baselineActiveStatuses)
	for _, group := range r.def.ServiceGroups {
		if !visible[group.Code] {
			continue
		}
		for code, state := range group.States {
			if state.Type == models.StateTypeNormal {
				active[code] = true
			}
		}
	}

	waiting := []models.Ticket{}
	inProgress := []models.Ticket{}
	for _, ticket := range tickets {
		if !visible[ticket.ServiceGroup] {
			continue
		}
		if r.isInitialStatus(ticket) {
			waiting = append(waiting, ticket)
		}
		if active[ticket.Status] {
			inProgress = append(inProgress, ticket)
		}
	}
	sortFIFO(waiting)
	sortFIFO(inProgress)

	// Same tickets as In-Progress, but labeled by the assigned station
	// rather than the queue number.
	counter := make([]models.Ticket, len(inProgress))
	for i, ticket := range inProgress {
		label := ticket.RefID
		if label == "" {
			label = ticket.RefType
		}
		if label == "" {
			if group, ok := r.def.Group(ticket.ServiceGroup); ok {
				label = group.Name
			} else {
				label = ticket.ServiceGroup
			}
		}
		ticket.TicketNo = label
		counter[i] = ticket
	}

	return []Column{
		{Code: ColumnWaiting, Title: "Waiting", Tickets: waiting},
		{Code: ColumnInProgress, Title: "In Progress", Tickets: inProgress},
		{Code: ColumnServiceCounter, Title: "Service Counter", Tickets: counter},
	}
}

func (r *Resolver) isInitialStatus(ticket models.Ticket) bool {
	group, ok := r.def.Group(ticket.ServiceGroup)
	if !ok {
		return false
	}
	return ticket.Status == group.InitialState
}

func statusMatchesState(status, stateCode string) bool {
	s := strings.ToUpper(status)
	code := strings.ToUpper(stateCode)
	return s == code || strings.HasPrefix(s, code)
}

func typeRank(stateType string) int {
	switch stateType {
	case models.StateTypeInitial:
		return 0
	case models.StateTypeNormal:
		return 1
	default:
		return 2
	}
}

// sortFIFO orders tickets oldest first by check-in time, stably, so equal
// timestamps keep their incoming order. Priority is advisory metadata only
// and never reorders a resolved list.
func sortFIFO(tickets []models.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CheckInTime.Before(tickets[j].CheckInTime)
	})
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
