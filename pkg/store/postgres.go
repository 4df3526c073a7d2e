package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// DB is the pgx-backed Store implementation.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB wraps an existing connection pool.
func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d *DB) CreateConversation(ctx context.Context, c *Conversation) (*Conversation, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, fmt.Errorf("store: conversation user id is required")
	}
	if !ValidID(c.ID) {
		c.ID = uuid.NewString()
	}
	stmt := `INSERT INTO conversation (id, user_id, title, summary, complex_id)
	         VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	         RETURNING created_at, updated_at`
	if err := d.pool.QueryRow(ctx, stmt, c.ID, c.UserID, c.Title, c.Summary, c.ComplexID).
		Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	stmt := `SELECT id, user_id, title, summary, COALESCE(complex_id, ''), created_at, updated_at
	         FROM conversation WHERE id = $1`
	c := &Conversation{}
	err := d.pool.QueryRow(ctx, stmt, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Summary, &c.ComplexID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) ListConversations(ctx context.Context, find FindConversations) ([]*Conversation, error) {
	where, args := []string{"user_id = $1"}, []any{find.UserID}
	if v := find.ComplexID; v != nil {
		where, args = append(where, "complex_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, user_id, title, summary, COALESCE(complex_id, ''), created_at, updated_at
		 FROM conversation WHERE %s ORDER BY updated_at DESC`,
		strings.Join(where, " AND "),
	)
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Summary, &c.ComplexID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		// Legacy rows with short ids are unusable downstream; skip them
		// rather than failing the whole listing.
		if !ValidID(c.ID) {
			continue
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversation(ctx context.Context, update UpdateConversation) (*Conversation, error) {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "summary = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.ComplexID; v != nil {
		set, args = append(set, "complex_id = NULLIF("+placeholder(len(args)+1)+", '')"), append(args, *v)
	}
	if len(set) == 0 {
		return d.GetConversation(ctx, update.ID)
	}
	set = append(set, "updated_at = NOW()")
	args = append(args, update.ID)
	stmt := fmt.Sprintf(
		`UPDATE conversation SET %s WHERE id = %s
		 RETURNING id, user_id, title, summary, COALESCE(complex_id, ''), created_at, updated_at`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	c := &Conversation{}
	err := d.pool.QueryRow(ctx, stmt, args...).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Summary, &c.ComplexID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) DeleteConversation(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM conversation WHERE id = $1`, id)
	return err
}

func (d *DB) CreateComplex(ctx context.Context, c *Complex) (*Complex, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, fmt.Errorf("store: complex user id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return nil, fmt.Errorf("store: complex name is required")
	}
	if !ValidID(c.ID) {
		c.ID = uuid.NewString()
	}
	stmt := `INSERT INTO complex (id, user_id, name, color, description)
	         VALUES ($1, $2, $3, $4, $5)
	         RETURNING created_at, updated_at`
	if err := d.pool.QueryRow(ctx, stmt, c.ID, c.UserID, c.Name, c.Color, c.Description).
		Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) GetComplex(ctx context.Context, id string) (*Complex, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	stmt := `SELECT id, user_id, name, color, description, created_at, updated_at
	         FROM complex WHERE id = $1`
	c := &Complex{}
	err := d.pool.QueryRow(ctx, stmt, id).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) ListComplexes(ctx context.Context, userID string) ([]*Complex, error) {
	stmt := `SELECT id, user_id, name, color, description, created_at, updated_at
	         FROM complex WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := d.pool.Query(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Complex
	for rows.Next() {
		c := &Complex{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if !ValidID(c.ID) {
			continue
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateComplex(ctx context.Context, update UpdateComplex) (*Complex, error) {
	set, args := []string{}, []any{}
	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Color; v != nil {
		set, args = append(set, "color = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return d.GetComplex(ctx, update.ID)
	}
	set = append(set, "updated_at = NOW()")
	args = append(args, update.ID)
	stmt := fmt.Sprintf(
		`UPDATE complex SET %s WHERE id = %s
		 RETURNING id, user_id, name, color, description, created_at, updated_at`,
		strings.Join(set, ", "), placeholder(len(args)),
	)
	c := &Complex{}
	err := d.pool.QueryRow(ctx, stmt, args...).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *DB) DeleteComplex(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM complex WHERE id = $1`, id)
	return err
}

func (d *DB) UpsertDetectedItems(ctx context.Context, items []DetectedItem) error {
	if len(items) == 0 {
		return nil
	}
	stmt := `INSERT INTO detected_item (conversation_id, kind, label, category, frequency, intensity, last_seen)
	         VALUES ($1, $2, $3, $4, $5, $6, $7)
	         ON CONFLICT (conversation_id, kind, label) DO UPDATE SET
	             frequency = detected_item.frequency + EXCLUDED.frequency,
	             intensity = GREATEST(detected_item.intensity, EXCLUDED.intensity),
	             last_seen = GREATEST(detected_item.last_seen, EXCLUDED.last_seen)`
	for _, item := range items {
		if !ValidID(item.ConversationID) {
			return fmt.Errorf("store: detected item conversation id %q is invalid", item.ConversationID)
		}
		if _, err := d.pool.Exec(ctx, stmt,
			item.ConversationID, item.Kind, item.Label, item.Category,
			item.Frequency, item.Intensity, item.LastSeen,
		); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) ListDetectedItems(ctx context.Context, userID string) ([]*DetectedItem, error) {
	stmt := `SELECT di.conversation_id, di.kind, di.label, di.category, di.frequency, di.intensity, di.last_seen
	         FROM detected_item di
	         JOIN conversation c ON c.id = di.conversation_id
	         WHERE c.user_id = $1
	         ORDER BY di.last_seen DESC`
	rows, err := d.pool.Query(ctx, stmt, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*DetectedItem
	for rows.Next() {
		item := &DetectedItem{}
		if err := rows.Scan(&item.ConversationID, &item.Kind, &item.Label, &item.Category,
			&item.Frequency, &item.Intensity, &item.LastSeen); err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}
