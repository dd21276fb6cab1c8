package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/item"
)

// schema is applied at startup. The partial unique index on
// match_records is what makes concurrent auto-match runs safe: at most
// one non-rejected record can exist per item pair, and every racing
// INSERT ... ON CONFLICT DO NOTHING except one becomes a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS items (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL CHECK (type IN ('lost', 'found')),
	status        TEXT NOT NULL DEFAULT 'pending',
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	tags          TEXT[] NOT NULL DEFAULT '{}',
	color         TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	lat           DOUBLE PRECISION,
	lng           DOUBLE PRECISION,
	location_text TEXT NOT NULL DEFAULT '',
	occurred_at   TIMESTAMPTZ,
	image_refs    TEXT[] NOT NULL DEFAULT '{}',
	reported_by   TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_items_type_status ON items (type, status);

CREATE TABLE IF NOT EXISTS match_records (
	id            TEXT PRIMARY KEY,
	lost_item_id  TEXT NOT NULL REFERENCES items(id),
	found_item_id TEXT NOT NULL REFERENCES items(id),
	score         DOUBLE PRECISION NOT NULL,
	breakdown     JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_match_records_active_pair
	ON match_records (lost_item_id, found_item_id)
	WHERE status <> 'rejected';

CREATE INDEX IF NOT EXISTS idx_match_records_lost ON match_records (lost_item_id);
CREATE INDEX IF NOT EXISTS idx_match_records_found ON match_records (found_item_id);
`

// Connection holds the database connection.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens the Postgres connection from PG* environment
// variables and applies the schema.
func NewConnection() (*Connection, error) {
	host := config.GetEnv("PGHOST", "localhost")
	port := config.GetEnv("PGPORT", "5432")
	user := config.GetEnv("PGUSER", "foundly")
	password := config.GetEnv("PGPASSWORD", "foundly")
	dbname := config.GetEnv("PGDATABASE", "foundly")
	sslmode := config.GetEnv("PGSSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Connection{DB: db}, nil
}

// Close closes the database connection.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// PostgresItemStore implements ItemStore on Postgres.
type PostgresItemStore struct {
	db *sql.DB
}

func NewPostgresItemStore(db *sql.DB) *PostgresItemStore {
	return &PostgresItemStore{db: db}
}

const itemColumns = `id, type, status, name, description, tags, color, category,
	lat, lng, location_text, occurred_at, image_refs, reported_by, created_at`

func (s *PostgresItemStore) CreateItem(ctx context.Context, it *item.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		it.ID, it.Type, it.Status, it.Name, it.Description,
		pq.Array(it.Tags), it.Color, it.Category,
		it.Lat, it.Lng, it.LocationText, it.OccurredAt,
		pq.Array(it.ImageRefs), it.ReportedBy, it.CreatedAt)
	if err != nil {
		return &PersistenceError{Op: "create item", Err: err}
	}
	return nil
}

func (s *PostgresItemStore) GetItem(ctx context.Context, id string) (*item.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "item", ID: id}
	}
	if err != nil {
		return nil, &RetrievalError{Op: "get item", Err: err}
	}
	return it, nil
}

func (s *PostgresItemStore) FetchOpenCandidates(ctx context.Context, typ item.Type, excludingID string) ([]*item.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE type = $1 AND status = $2 AND id <> $3
		ORDER BY created_at, id`,
		typ, item.StatusPending, excludingID)
	if err != nil {
		return nil, &RetrievalError{Op: "fetch candidates", Err: err}
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, &RetrievalError{Op: "scan candidate", Err: err}
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalError{Op: "fetch candidates", Err: err}
	}
	return items, nil
}

func (s *PostgresItemStore) SetStatus(ctx context.Context, id string, status item.Status) error {
	var current item.Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM items WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return &NotFoundError{Kind: "item", ID: id}
	}
	if err != nil {
		return &PersistenceError{Op: "set item status", Err: err}
	}
	if !current.CanAdvanceTo(status) {
		return &InvalidTransitionError{ID: id, From: current, To: status}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE items SET status = $1 WHERE id = $2`, status, id); err != nil {
		return &PersistenceError{Op: "set item status", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*item.Item, error) {
	var it item.Item
	var tags, imageRefs pq.StringArray
	var occurredAt sql.NullTime
	var lat, lng sql.NullFloat64

	err := row.Scan(&it.ID, &it.Type, &it.Status, &it.Name, &it.Description,
		&tags, &it.Color, &it.Category,
		&lat, &lng, &it.LocationText, &occurredAt,
		&imageRefs, &it.ReportedBy, &it.CreatedAt)
	if err != nil {
		return nil, err
	}

	it.Tags = []string(tags)
	it.ImageRefs = []string(imageRefs)
	if lat.Valid {
		it.Lat = &lat.Float64
	}
	if lng.Valid {
		it.Lng = &lng.Float64
	}
	if occurredAt.Valid {
		t := occurredAt.Time
		it.OccurredAt = &t
	}
	return &it, nil
}

// PostgresMatchStore implements MatchStore on Postgres.
type PostgresMatchStore struct {
	db *sql.DB
}

func NewPostgresMatchStore(db *sql.DB) *PostgresMatchStore {
	return &PostgresMatchStore{db: db}
}

const matchColumns = `id, lost_item_id, found_item_id, score, breakdown, status, created_at, updated_at`

func (s *PostgresMatchStore) GetMatch(ctx context.Context, id string) (*MatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM match_records WHERE id = $1`, id)

	rec, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "match", ID: id}
	}
	if err != nil {
		return nil, &RetrievalError{Op: "get match", Err: err}
	}
	return rec, nil
}

func (s *PostgresMatchStore) FindActive(ctx context.Context, lostID, foundID string) (*MatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+matchColumns+`
		FROM match_records
		WHERE lost_item_id = $1 AND found_item_id = $2 AND status <> $3`,
		lostID, foundID, MatchRejected)

	rec, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &RetrievalError{Op: "find active match", Err: err}
	}
	return rec, nil
}

// CreateIfAbsent relies on the partial unique index: when a concurrent
// writer already holds the pair, the insert is a silent no-op and the
// surviving record is re-read.
func (s *PostgresMatchStore) CreateIfAbsent(ctx context.Context, rec *MatchRecord) (bool, *MatchRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Status == "" {
		rec.Status = MatchPending
	}

	breakdown, err := json.Marshal(rec.Breakdown)
	if err != nil {
		return false, nil, &PersistenceError{Op: "encode breakdown", Err: err}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_records (`+matchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (lost_item_id, found_item_id) WHERE status <> 'rejected'
		DO NOTHING`,
		rec.ID, rec.LostItemID, rec.FoundItemID, rec.Score, breakdown,
		rec.Status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, nil, &PersistenceError{Op: "create match", Err: err}
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, nil, &PersistenceError{Op: "create match", Err: err}
	}
	if inserted > 0 {
		return true, rec, nil
	}

	existing, err := s.FindActive(ctx, rec.LostItemID, rec.FoundItemID)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// The winning record was rejected between our insert and re-read.
		return false, nil, &PersistenceError{Op: "create match",
			Err: fmt.Errorf("conflicting record disappeared for pair %s/%s", rec.LostItemID, rec.FoundItemID)}
	}
	return false, existing, nil
}

func (s *PostgresMatchStore) UpdateStatus(ctx context.Context, id string, status MatchStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE match_records SET status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return &PersistenceError{Op: "update match status", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Kind: "match", ID: id}
	}
	return nil
}

func (s *PostgresMatchStore) ListForItem(ctx context.Context, itemID string) ([]*MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM match_records
		WHERE lost_item_id = $1 OR found_item_id = $1
		ORDER BY created_at DESC, id`,
		itemID)
	if err != nil {
		return nil, &RetrievalError{Op: "list matches", Err: err}
	}
	defer rows.Close()

	var records []*MatchRecord
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, &RetrievalError{Op: "scan match", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &RetrievalError{Op: "list matches", Err: err}
	}
	return records, nil
}

func scanMatch(row rowScanner) (*MatchRecord, error) {
	var rec MatchRecord
	var breakdown []byte

	err := row.Scan(&rec.ID, &rec.LostItemID, &rec.FoundItemID, &rec.Score,
		&breakdown, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	return &rec, nil
}

var _ ItemStore = (*PostgresItemStore)(nil)
var _ MatchStore = (*PostgresMatchStore)(nil)
