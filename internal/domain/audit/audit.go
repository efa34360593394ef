package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hrpayroll/internal/platform/db"
)

const (
	ActionPeriodCreate = "payroll.period.create"
	ActionPeriodUpdate = "payroll.period.update"
	ActionPeriodClose  = "payroll.period.close"
	ActionRunCreate    = "payroll.run.create"
)

type Event struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	ActorID        string          `json:"actorId"`
	Action         string          `json:"action"`
	EntityType     string          `json:"entityType"`
	EntityID       string          `json:"entityId"`
	RequestID      string          `json:"requestId"`
	IP             string          `json:"ip"`
	CreatedAt      time.Time       `json:"createdAt"`
	After          json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
}

// Service appends and reads the organization's audit trail.
type Service struct {
	DB db.DBTX
}

func New(conn db.DBTX) *Service {
	return &Service{DB: conn}
}

func (s *Service) Record(ctx context.Context, evt Event) error {
	var afterJSON []byte
	if evt.After != nil {
		afterJSON = evt.After
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (organization_id, actor_user_id, action, entity_type, entity_id, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, evt.OrganizationID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, afterJSON, evt.RequestID, evt.IP)
	return err
}

func (s *Service) Count(ctx context.Context, orgID string, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", orgID, filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, orgID string, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery(`SELECT id, organization_id, actor_user_id, action, entity_type, entity_id,
      request_id, ip, created_at, COALESCE(after_json, 'null'::jsonb)`, orgID, filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.OrganizationID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID,
			&evt.RequestID, &evt.IP, &evt.CreatedAt, &evt.After); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Payload marshals v for Event.After. Marshal failures drop the payload
// rather than the event.
func Payload(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func buildBaseQuery(prefix, orgID string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE organization_id = $1"
	args := []any{orgID}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", len(args)+1)
		args = append(args, filter.EntityID)
	}
	return query, args
}
