package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditTrail is the append-only device history. There is no update or delete path.
type AuditTrail interface {
	// AppendTx writes one event inside the caller's unit of work.
	AppendTx(ctx context.Context, tx pgx.Tx, deviceID, actorID int, payload AuditPayload) (*AuditEvent, error)
	// History returns a device's events oldest first.
	History(ctx context.Context, deviceID int) ([]AuditEvent, error)
}

type auditTrail struct {
	pool *pgxpool.Pool
}

func NewAuditTrail(pool *pgxpool.Pool) AuditTrail {
	return &auditTrail{pool: pool}
}

func (a *auditTrail) AppendTx(ctx context.Context, tx pgx.Tx, deviceID, actorID int, payload AuditPayload) (*AuditEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", payload.Kind(), err)
	}

	ev := AuditEvent{
		DeviceID: deviceID,
		ActorID:  actorID,
		Kind:     payload.Kind(),
		Payload:  payload,
		Detail:   payload.Render(),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO audit_events (device_id, actor_id, kind, payload, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, deviceID, actorID, string(ev.Kind), raw, ev.Detail).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event for device %d: %w", deviceID, err)
	}
	return &ev, nil
}

func (a *auditTrail) History(ctx context.Context, deviceID int) ([]AuditEvent, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, device_id, actor_id, kind, payload, detail, created_at
		FROM audit_events
		WHERE device_id = $1
		ORDER BY id
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var kind string
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.ActorID, &kind, &raw, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Kind = AuditKind(kind)
		if ev.Payload, err = DecodeAuditPayload(ev.Kind, raw); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
