// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/turnia/turnia/internal/auth"
	"github.com/turnia/turnia/internal/store"
)

// AuditRepository stores security events. It implements auth.AuditRecorder
// and auth.AuditPruner.
type AuditRepository struct {
	db store.Querier
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db store.Querier) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts ev. A zero ID or timestamp is filled in.
func (r *AuditRepository) Record(ctx context.Context, ev auth.SecurityEvent) error {
	if ev.ID.IsZero() {
		ev.ID = ulid.Make()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	detail := ev.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").With("operation", "marshal detail").Wrap(err)
	}

	var identifier *string
	if ev.Identifier != "" {
		identifier = &ev.Identifier
	}

	_, err = store.Conn(ctx, r.db).Exec(ctx, `
		INSERT INTO auth_events (id, event_type, user_id, identifier, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID.String(), string(ev.Type), ulidToStringPtr(ev.UserID), identifier, detailJSON, ev.CreatedAt)
	if err != nil {
		return oops.Code("AUDIT_RECORD_FAILED").
			With("operation", "insert event").
			With("event_type", string(ev.Type)).
			Wrap(err)
	}
	return nil
}

// DeleteBefore removes events created before the cutoff.
func (r *AuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM auth_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, oops.Code("AUDIT_DELETE_FAILED").With("operation", "delete before").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns the user's most recent events, newest first.
func (r *AuditRepository) ListForUser(ctx context.Context, userID ulid.ULID, limit int) ([]auth.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := store.Conn(ctx, r.db).Query(ctx, `
		SELECT id, event_type, user_id, identifier, detail, created_at
		FROM auth_events WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("operation", "list events").With("user_id", userID.String()).Wrap(err)
	}
	defer rows.Close()

	var events []auth.SecurityEvent
	for rows.Next() {
		var (
			ev         auth.SecurityEvent
			id, typ    string
			uid        *string
			identifier *string
			detailJSON []byte
		)
		if err := rows.Scan(&id, &typ, &uid, &identifier, &detailJSON, &ev.CreatedAt); err != nil {
			return nil, oops.Code("AUDIT_QUERY_FAILED").With("operation", "scan event").Wrap(err)
		}
		if ev.ID, err = parseULID(id); err != nil {
			return nil, err
		}
		if ev.UserID, err = parseOptionalULID(uid); err != nil {
			return nil, err
		}
		if identifier != nil {
			ev.Identifier = *identifier
		}
		if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
			return nil, oops.Code("AUDIT_QUERY_FAILED").With("operation", "unmarshal detail").Wrap(err)
		}
		ev.Type = auth.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_QUERY_FAILED").With("operation", "iterate events").Wrap(err)
	}
	return events, nil
}
