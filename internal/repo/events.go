package repo

import (
	"context"
	"database/sql"

	"goalline/internal/domain"
)

// LatestEvents returns the newest events first, optionally for one import session.
func (r Repo) LatestEvents(ctx context.Context, sessionID string, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,session_id,entity_kind,entity_id,payload_json FROM events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id=?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var session, entity sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &session, &e.EntityKind, &entity, &e.PayloadJSON); err != nil {
			return nil, err
		}
		e.SessionID = session.String
		e.EntityID = entity.String
		res = append(res, e)
	}
	return res, rows.Err()
}
