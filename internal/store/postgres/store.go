// Package postgres implements the engine's collaborator contracts on
// PostgreSQL. The workflow document is stored as JSONB on the profile row;
// ticket mutations and their outbox events commit in one transaction.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, name, COALESCE(agn_code, '')
		FROM profiles
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var profile models.Profile
		if err := rows.Scan(&profile.Code, &profile.Name, &profile.AgnCode); err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *Store) CreateProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	if profile.Code == "" {
		profile.Code = "PF-" + strings.ToUpper(uuid.NewString()[:8])
	}
	empty, err := json.Marshal(models.WorkflowDefinition{
		ProfileID:     profile.Code,
		ProfileName:   profile.Name,
		ServiceGroups: []models.ServiceGroup{},
		ServicePoints: []models.ServicePoint{},
		Kiosks:        []models.Kiosk{},
		DisplayBoards: []models.DisplayBoard{},
	})
	if err != nil {
		return models.Profile{}, err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (code, name, agn_code, workflow, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (code) DO NOTHING
	`, profile.Code, profile.Name, profile.AgnCode, empty)
	if err != nil {
		return models.Profile{}, err
	}
	if tag.RowsAffected() == 0 {
		return models.Profile{}, store.ErrProfileExists
	}
	return profile, nil
}

func (s *Store) UpdateProfile(ctx context.Context, profile models.Profile) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET name = $2, agn_code = $3
		WHERE code = $1
	`, profile.Code, profile.Name, profile.AgnCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, code string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM profiles
		WHERE code = $1
	`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, profileID string) (models.WorkflowDefinition, error) {
	var raw []byte
	row := s.pool.QueryRow(ctx, `
		SELECT workflow
		FROM profiles
		WHERE code = $1
	`, profileID)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.WorkflowDefinition{}, store.ErrWorkflowNotFound
		}
		return models.WorkflowDefinition{}, err
	}
	var def models.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return models.WorkflowDefinition{}, fmt.Errorf("decode workflow %s: %w", profileID, err)
	}
	return def, nil
}

// SaveWorkflow replaces the stored document wholesale. Last writer wins.
func (s *Store) SaveWorkflow(ctx context.Context, def models.WorkflowDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET workflow = $2
		WHERE code = $1
	`, def.ProfileID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}
	return nil
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	def, err := s.GetWorkflow(ctx, input.ProfileID)
	if err != nil {
		return models.Ticket{}, err
	}
	group, ok := def.Group(input.GroupCode)
	if !ok {
		return models.Ticket{}, store.ErrGroupNotFound
	}
	initialState := group.InitialState

	ticket := models.Ticket{
		DocNo:        uuid.NewString(),
		TicketNo:     fmt.Sprintf("%s-%s", input.GroupCode, strings.ToUpper(uuid.NewString()[:4])),
		ProfileID:    input.ProfileID,
		ServiceGroup: input.GroupCode,
		Status:       initialState,
		Channel:      input.Channel,
		Priority:     input.Priority,
		CheckInTime:  input.CheckInTime,
		UpdatedAt:    input.CheckInTime,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (doc_no, ticket_no, profile_id, group_code, status, channel, priority, check_in_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.DocNo, ticket.TicketNo, ticket.ProfileID, ticket.ServiceGroup, ticket.Status,
		ticket.Channel, ticket.Priority, ticket.CheckInTime, ticket.UpdatedAt)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := appendOutbox(ctx, tx, ticket, "ticket.created"); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, docNo string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT doc_no, ticket_no, profile_id, group_code, status, channel, priority, check_in_time,
		       COALESCE(ref_id, ''), COALESCE(ref_type, ''), updated_at
		FROM tickets
		WHERE doc_no = $1
	`, docNo)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return ticket, err
}

func (s *Store) ListTickets(ctx context.Context, profileID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_no, ticket_no, profile_id, group_code, status, channel, priority, check_in_time,
		       COALESCE(ref_id, ''), COALESCE(ref_type, ''), updated_at
		FROM tickets
		WHERE profile_id = $1
		ORDER BY check_in_time ASC
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// TransitionTicket applies a compare-and-swap status move. A row that
// exists but no longer carries FromStatus means another touchpoint won the
// race; that surfaces as ErrStateMismatch, never as a silent overwrite.
func (s *Store) TransitionTicket(ctx context.Context, input store.TransitionInput) (models.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $3,
		    ref_id = CASE WHEN $4 = '' THEN ref_id ELSE $4 END,
		    ref_type = CASE WHEN $4 = '' THEN ref_type ELSE 'service_point' END,
		    updated_at = $5
		WHERE doc_no = $1 AND status = $2
		RETURNING doc_no, ticket_no, profile_id, group_code, status, channel, priority, check_in_time,
		          COALESCE(ref_id, ''), COALESCE(ref_type, ''), updated_at
	`, input.DocNo, input.FromStatus, input.ToStatus, input.PointCode, input.OccurredAt)
	ticket, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		check := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE doc_no = $1)`, input.DocNo)
		if scanErr := check.Scan(&exists); scanErr != nil {
			return models.Ticket{}, scanErr
		}
		if !exists {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, store.ErrStateMismatch
	}
	if err != nil {
		return models.Ticket{}, err
	}

	if err := appendOutbox(ctx, tx, ticket, "ticket.transitioned"); err != nil {
		return models.Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, profile_id, type, payload, created_at
		FROM ticket_outbox
		WHERE (created_at, event_id) > ($1, $2::uuid)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after.LastEventTime, after.LastEventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.ProfileID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id
		FROM outbox_offset
		WHERE id = 1
	`)
	if err := row.Scan(&offset.LastEventTime, &offset.LastEventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offset (id, last_event_time, last_event_id)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET last_event_time = $1, last_event_id = $2
	`, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) CleanupOutbox(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM ticket_outbox
		WHERE created_at < $1
	`, before)
	return err
}

func appendOutbox(ctx context.Context, tx pgx.Tx, ticket models.Ticket, eventType string) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_outbox (event_id, profile_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.NewString(), ticket.ProfileID, eventType, payload)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (models.Ticket, error) {
	var ticket models.Ticket
	err := row.Scan(&ticket.DocNo, &ticket.TicketNo, &ticket.ProfileID, &ticket.ServiceGroup,
		&ticket.Status, &ticket.Channel, &ticket.Priority, &ticket.CheckInTime,
		&ticket.RefID, &ticket.RefType, &ticket.UpdatedAt)
	return ticket, err
}
