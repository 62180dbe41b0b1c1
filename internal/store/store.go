package store

import (
	"context"
	"encoding/json"
	"time"

	"adaqueue/routing-service/internal/models"
)

type CreateTicketInput struct {
	RequestID   string
	ProfileID   string
	GroupCode   string
	Channel     string
	Priority    string
	CheckInTime time.Time
}

// TransitionInput is a compare-and-swap move: the update applies only if
// the ticket is still in FromStatus when the store executes it.
type TransitionInput struct {
	RequestID  string
	DocNo      string
	FromStatus string
	ToStatus   string
	ActorRole  string
	PointCode  string
	OccurredAt time.Time
}

// TicketStore is the authoritative ticket record, owned externally. The
// routing engine consumes this contract; it never reimplements numbering
// or persistence.
type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, docNo string) (models.Ticket, error)
	ListTickets(ctx context.Context, profileID string) ([]models.Ticket, error)
	TransitionTicket(ctx context.Context, input TransitionInput) (models.Ticket, error)
}

// WorkflowStore persists profiles and their workflow documents.
type WorkflowStore interface {
	ListProfiles(ctx context.Context) ([]models.Profile, error)
	CreateProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
	UpdateProfile(ctx context.Context, profile models.Profile) error
	DeleteProfile(ctx context.Context, code string) error
	GetWorkflow(ctx context.Context, profileID string) (models.WorkflowDefinition, error)
	SaveWorkflow(ctx context.Context, def models.WorkflowDefinition) error
}

type OutboxEvent struct {
	EventID   string          `json:"eventId"`
	ProfileID string          `json:"profileId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

// OutboxStore is the change-notification source: every ticket mutation
// appends an event, and the publisher drains them in order.
type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, after OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, offset OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error
}
