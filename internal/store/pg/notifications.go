package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"gymstudio.app/internal/coach"
)

func (s *Store) InsertNotification(ctx context.Context, n coach.Notification) error {
	meta := []byte("{}")
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	_, err := s.db.ExecContext(ctx, `
		insert into notifications (id, user_id, type, title, message, read, created_at, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Read, n.CreatedAt, meta)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]coach.Notification, error) {
	query := `select id, user_id, type, title, message, read, created_at, metadata
		from notifications where user_id = $1`
	if unreadOnly {
		query += ` and not read`
	}
	query += ` order by created_at desc, id desc`
	args := []any{userID}
	if limit > 0 {
		query += ` limit $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coach.Notification
	for rows.Next() {
		var (
			n   coach.Notification
			raw []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Read, &n.CreatedAt, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
			if len(n.Metadata) == 0 {
				n.Metadata = nil
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `update notifications set read = true where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return coach.NotFoundf("notification not found")
	}
	return nil
}
