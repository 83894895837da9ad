package conversation

import (
	"context"
	"database/sql"

	"github.com/nexus-im/bazaar/store/message"
)

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	query := `
		WITH scoped AS (
			SELECT m.*,
				CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS other_user_id
			FROM messages m
			WHERE m.sender_id = $1 OR m.receiver_id = $1
		), latest AS (
			SELECT DISTINCT ON (product_id, other_user_id) *
			FROM scoped
			ORDER BY product_id, other_user_id, created_at DESC
		), unread AS (
			SELECT product_id, other_user_id,
				COUNT(*) FILTER (WHERE receiver_id = $1 AND read = FALSE) AS unread_count
			FROM scoped
			GROUP BY product_id, other_user_id
		)
		SELECT l.id, l.product_id, l.sender_id, l.receiver_id, l.sender_name, l.body, l.created_at, l.read, l.status, l.delivered_at, l.read_at,
			l.other_user_id, u.unread_count
		FROM latest l
		JOIN unread u USING (product_id, other_user_id)
		ORDER BY l.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var sum Summary
		last, err := message.ScanRow(rows, &sum.OtherUserID, &sum.UnreadCount)
		if err != nil {
			return nil, err
		}
		sum.ProductID = last.ProductID
		sum.LastMessage = last
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
