package message

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Columns is the select list ScanRow expects, in order.
const Columns = `id, product_id, sender_id, receiver_id, sender_name, body, created_at, read, status, delivered_at, read_at`

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Insert(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = StatusSent
	}

	query := `
		INSERT INTO messages (product_id, sender_id, receiver_id, sender_name, body, created_at, read, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	return s.db.QueryRowContext(ctx, query,
		m.ProductID, m.SenderID, m.ReceiverID, m.SenderName, m.Text, m.CreatedAt, m.Read, string(m.Status),
	).Scan(&m.ID)
}

func (s *SQLStore) ListByProduct(ctx context.Context, productID string) ([]Message, error) {
	query := `SELECT ` + Columns + ` FROM messages WHERE product_id = $1 ORDER BY created_at ASC`
	return s.list(ctx, query, productID)
}

func (s *SQLStore) ListConversation(ctx context.Context, productID, userA, userB string) ([]Message, error) {
	query := `SELECT ` + Columns + ` FROM messages
		WHERE product_id = $1
			AND ((sender_id = $2 AND receiver_id = $3) OR (sender_id = $3 AND receiver_id = $2))
		ORDER BY created_at ASC`
	return s.list(ctx, query, productID, userA, userB)
}

func (s *SQLStore) MarkDelivered(ctx context.Context, receiverID string, ids []string, at time.Time) ([]Transition, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// id is compared as text so malformed ids simply match nothing.
	query := `
		UPDATE messages SET status = 'delivered', delivered_at = $3
		WHERE receiver_id = $1 AND status = 'sent' AND id::text = ANY($2)
		RETURNING id, product_id, sender_id, receiver_id
	`
	return s.transitions(ctx, query, receiverID, pq.Array(ids), at)
}

func (s *SQLStore) MarkRead(ctx context.Context, productID, senderID, readerID string, at time.Time) ([]Transition, error) {
	query := `
		UPDATE messages SET read = TRUE, status = 'read', read_at = $4
		WHERE product_id = $1 AND sender_id = $2 AND receiver_id = $3 AND read IS NOT TRUE
		RETURNING id, product_id, sender_id, receiver_id
	`
	return s.transitions(ctx, query, productID, senderID, readerID, at)
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	msgs := make([]Message, 0)
	for rows.Next() {
		m, err := ScanRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLStore) transitions(ctx context.Context, query string, args ...any) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.ProductID, &t.SenderID, &t.ReceiverID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ScanRow reads one row selected with Columns, followed by any extra
// destinations the caller appended to the select list.
func ScanRow(row RowScanner, extra ...any) (Message, error) {
	var (
		m           Message
		status      string
		deliveredAt sql.NullTime
		readAt      sql.NullTime
	)
	dest := []any{
		&m.ID, &m.ProductID, &m.SenderID, &m.ReceiverID, &m.SenderName, &m.Text,
		&m.CreatedAt, &m.Read, &status, &deliveredAt, &readAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return Message{}, err
	}

	m.Status = Status(status)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}
