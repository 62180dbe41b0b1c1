package scope

import (
	"errors"
	"testing"
	"time"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
)

var baseTime = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func hospitalDefinition() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ProfileID: "PF-HOSP",
		ServiceGroups: []models.ServiceGroup{
			{
				Code:         "PHARMACY",
				Name:         "Pharmacy",
				BusinessType: models.BusinessTypeFlowSteps,
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT":  {Code: "WAIT", Label: "Waiting", Type: models.StateTypeInitial},
					"CALL":  {Code: "CALL", Label: "Calling", Type: models.StateTypeNormal},
					"PREP":  {Code: "PREP", Label: "Preparing", Type: models.StateTypeNormal},
					"READY": {Code: "READY", Label: "Ready", Type: models.StateTypeNormal},
					"DONE":  {Code: "DONE", Label: "Collected", Type: models.StateTypeFinal},
				},
			},
			{
				Code:         "LAB",
				Name:         "Laboratory",
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT":    {Code: "WAIT", Type: models.StateTypeInitial},
					"DRAWING": {Code: "DRAWING", Type: models.StateTypeNormal},
					"DONE":    {Code: "DONE", Type: models.StateTypeFinal},
				},
			},
			{
				Code:         "XRAY",
				Name:         "Radiology",
				InitialState: "WAIT",
				States: map[string]models.StateDefinition{
					"WAIT": {Code: "WAIT", Type: models.StateTypeInitial},
					"DONE": {Code: "DONE", Type: models.StateTypeFinal},
				},
			},
		},
		ServicePoints: []models.ServicePoint{
			{Code: "DESK-1", Name: "Lab Desk", ServiceGroups: []string{"LAB"}, FocusStates: []string{"DRAWING"}},
			{Code: "DESK-ALL", Name: "Floor Desk"},
		},
		Kiosks: []models.Kiosk{
			{Code: "K-LOBBY", VisibleServiceGroups: []string{"XRAY", "PHARMACY"}},
			{Code: "K-EMPTY", VisibleServiceGroups: []string{}},
		},
		DisplayBoards: []models.DisplayBoard{
			{Code: "B-PHARM", Title: "Pharmacy Queue", VisibleServiceGroups: []string{"PHARMACY"}},
			{Code: "B-MAIN", Name: "Main Hall", VisibleServiceGroups: []string{"LAB", "XRAY"}},
		},
	}
}

func ticket(docNo, group, status string, offset time.Duration) models.Ticket {
	return models.Ticket{
		DocNo:        docNo,
		TicketNo:     group + "-" + docNo,
		ProfileID:    "PF-HOSP",
		ServiceGroup: group,
		Status:       status,
		CheckInTime:  baseTime.Add(offset),
	}
}

func TestForKioskPreservesWorkflowOrder(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())

	groups, err := resolver.ForKiosk(Session{TouchpointCode: "K-LOBBY"})
	if err != nil {
		t.Fatalf("kiosk scope failed: %v", err)
	}
	// The kiosk lists XRAY first, but workflow order wins.
	if len(groups) != 2 || groups[0].Code != "PHARMACY" || groups[1].Code != "XRAY" {
		t.Fatalf("unexpected kiosk groups %+v", groups)
	}
}

func TestForKioskEmptyVisibilityAndUnknownCode(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())

	groups, err := resolver.ForKiosk(Session{TouchpointCode: "K-EMPTY"})
	if err != nil {
		t.Fatalf("kiosk scope failed: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("empty visibility must yield no groups, got %+v", groups)
	}

	if _, err := resolver.ForKiosk(Session{TouchpointCode: "K-GHOST"}); !errors.Is(err, store.ErrTouchpointNotFound) {
		t.Fatalf("expected ErrTouchpointNotFound, got %v", err)
	}
}

func TestForServicePointFocusPlusInitial(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())
	tickets := []models.Ticket{
		ticket("3", "LAB", "DRAWING", 3*time.Minute),
		ticket("1", "LAB", "WAIT", 1*time.Minute),
		ticket("2", "LAB", "DONE", 2*time.Minute),
		ticket("4", "XRAY", "WAIT", 0),
	}

	scoped, err := resolver.ForServicePoint(Session{TouchpointCode: "DESK-1"}, tickets)
	if err != nil {
		t.Fatalf("point scope failed: %v", err)
	}
	// Focus is DRAWING only, but WAIT (the initial state) is always in
	// scope; DONE and foreign groups are not. FIFO by check-in.
	if len(scoped) != 2 || scoped[0].DocNo != "1" || scoped[1].DocNo != "3" {
		t.Fatalf("unexpected point scope %+v", scoped)
	}
}

func TestForServicePointEmptyListsMeanAll(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())
	tickets := []models.Ticket{
		ticket("2", "XRAY", "WAIT", 2*time.Minute),
		ticket("1", "LAB", "DRAWING", 1*time.Minute),
	}

	scoped, err := resolver.ForServicePoint(Session{TouchpointCode: "DESK-ALL"}, tickets)
	if err != nil {
		t.Fatalf("point scope failed: %v", err)
	}
	if len(scoped) != 2 || scoped[0].DocNo != "1" {
		t.Fatalf("unrestricted point should see everything FIFO, got %+v", scoped)
	}
}

func TestForDisplayBoardFlowSteps(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())
	tickets := []models.Ticket{
		ticket("a", "PHARMACY", "CALL_REPEAT", 2*time.Minute),
		ticket("b", "PHARMACY", "WAIT", 1*time.Minute),
		ticket("c", "PHARMACY", "call", 3*time.Minute),
		ticket("d", "PHARMACY", "DONE", 0),
		ticket("e", "LAB", "WAIT", 0),
	}

	plan, err := resolver.ForDisplayBoard(Session{TouchpointCode: "B-PHARM"}, tickets)
	if err != nil {
		t.Fatalf("board plan failed: %v", err)
	}
	if plan.Layout != LayoutFlowSteps {
		t.Fatalf("expected flow-steps layout, got %s", plan.Layout)
	}
	if plan.Title != "Pharmacy Queue" {
		t.Fatalf("unexpected title %q", plan.Title)
	}
	// INITIAL first, then NORMAL by code; FINAL states get no column.
	codes := make([]string, len(plan.Columns))
	for i, column := range plan.Columns {
		codes[i] = column.Code
	}
	want := []string{"WAIT", "CALL", "PREP", "READY"}
	if len(codes) != len(want) {
		t.Fatalf("unexpected columns %v", codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("column order %v, want %v", codes, want)
		}
	}

	call := plan.Columns[1]
	// Case-insensitive prefix match pulls CALL_REPEAT and "call" into the
	// CALL column, FIFO by check-in.
	if len(call.Tickets) != 2 || call.Tickets[0].DocNo != "a" || call.Tickets[1].DocNo != "c" {
		t.Fatalf("unexpected CALL column %+v", call.Tickets)
	}
	if len(plan.Columns[0].Tickets) != 1 || plan.Columns[0].Tickets[0].DocNo != "b" {
		t.Fatalf("unexpected WAIT column %+v", plan.Columns[0].Tickets)
	}
}

func TestForDisplayBoardThreeColumn(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())
	tickets := []models.Ticket{
		ticket("1", "LAB", "WAIT", 2*time.Minute),
		ticket("2", "LAB", "DRAWING", 1*time.Minute),
		ticket("3", "XRAY", "CALLING", 3*time.Minute),
		ticket("4", "XRAY", "WAIT", 0),
		ticket("5", "PHARMACY", "WAIT", 0),
	}
	tickets[2].RefID = "Room 4"

	plan, err := resolver.ForDisplayBoard(Session{TouchpointCode: "B-MAIN"}, tickets)
	if err != nil {
		t.Fatalf("board plan failed: %v", err)
	}
	if plan.Layout != LayoutThreeColumn {
		t.Fatalf("expected three-column layout, got %s", plan.Layout)
	}
	if plan.Title != "Main Hall" {
		t.Fatalf("name should back a missing title, got %q", plan.Title)
	}
	if len(plan.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(plan.Columns))
	}

	waiting := plan.Columns[0]
	// PHARMACY is not visible on this board.
	if len(waiting.Tickets) != 2 || waiting.Tickets[0].DocNo != "4" || waiting.Tickets[1].DocNo != "1" {
		t.Fatalf("unexpected waiting column %+v", waiting.Tickets)
	}

	inProgress := plan.Columns[1]
	// DRAWING is a NORMAL state of a visible group; CALLING is a baseline
	// active status even though XRAY never defines it.
	if len(inProgress.Tickets) != 2 || inProgress.Tickets[0].DocNo != "2" || inProgress.Tickets[1].DocNo != "3" {
		t.Fatalf("unexpected in-progress column %+v", inProgress.Tickets)
	}

	counter := plan.Columns[2]
	if len(counter.Tickets) != 2 {
		t.Fatalf("counter must mirror in-progress, got %+v", counter.Tickets)
	}
	if counter.Tickets[0].TicketNo != "Laboratory" {
		t.Fatalf("missing ref falls back to group name, got %q", counter.Tickets[0].TicketNo)
	}
	if counter.Tickets[1].TicketNo != "Room 4" {
		t.Fatalf("refId should label the counter entry, got %q", counter.Tickets[1].TicketNo)
	}
	// Relabeling must not leak into the in-progress column.
	if inProgress.Tickets[1].TicketNo == "Room 4" {
		t.Fatal("in-progress tickets must keep their queue numbers")
	}
}

func TestForDisplayBoardResolutionIsIdempotent(t *testing.T) {
	resolver := NewResolver(hospitalDefinition())
	tickets := []models.Ticket{
		ticket("1", "LAB", "WAIT", 1*time.Minute),
		ticket("2", "XRAY", "CALLING", 2*time.Minute),
	}

	first, err := resolver.ForDisplayBoard(Session{TouchpointCode: "B-MAIN"}, tickets)
	if err != nil {
		t.Fatalf("board plan failed: %v", err)
	}
	second, err := resolver.ForDisplayBoard(Session{TouchpointCode: "B-MAIN"}, tickets)
	if err != nil {
		t.Fatalf("board plan failed: %v", err)
	}
	for i := range first.Columns {
		if len(first.Columns[i].Tickets) != len(second.Columns[i].Tickets) {
			t.Fatalf("column %s changed between identical resolutions", first.Columns[i].Code)
		}
	}
}

func TestFIFOIsStableForEqualTimestamps(t *testing.T) {
	tickets := []models.Ticket{
		ticket("x", "LAB", "WAIT", 0),
		ticket("y", "LAB", "WAIT", 0),
		ticket("z", "LAB", "WAIT", 0),
	}
	sortFIFO(tickets)
	if tickets[0].DocNo != "x" || tickets[1].DocNo != "y" || tickets[2].DocNo != "z" {
		t.Fatalf("equal timestamps must keep incoming order, got %+v", tickets)
	}
}
