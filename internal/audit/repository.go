// Package audit provides access to the telegrams table recording every
// frame the gateway has accepted off the bus (post-checksum, post-ACK).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Telegram represents one accepted frame, as recorded for the audit trail.
type Telegram struct {
	ID              int64
	RecordedAt      time.Time
	Source          string // individual address, "area.line.device"
	Destination     string // "area.line.device" or "main/middle/sub" depending on Kind
	DestinationKind string // "individual" or "group"
	TPCI            uint8
	APCI            *uint8 // nil when the frame carries no APCI
	Payload         []byte
}

// Filter controls which telegrams to return.
type Filter struct {
	Source          string // optional: filter by source individual address
	Destination     string // optional: filter by destination address
	DestinationKind string // optional: "individual" or "group"
	Since           time.Time
	Until           time.Time
	Limit           int // default 50, max 200
	Offset          int // pagination offset
}

// ListResult contains the paginated telegram results.
type ListResult struct {
	Telegrams []Telegram
	Total     int
	Limit     int
	Offset    int
}

// Repository defines the interface for telegram audit-trail operations.
type Repository interface {
	Record(ctx context.Context, t *Telegram) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository reads and writes telegrams in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new telegram repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a new telegram entry. RecordedAt is stamped with the
// current time if left zero.
func (r *SQLiteRepository) Record(ctx context.Context, t *Telegram) error {
	if t.RecordedAt.IsZero() {
		t.RecordedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO telegrams (recorded_at, source, destination, destination_kind, tpci, apci, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.RecordedAt.Format(time.RFC3339), t.Source, t.Destination, t.DestinationKind,
		t.TPCI, nullableAPCI(t.APCI), t.Payload,
	)
	if err != nil {
		return fmt.Errorf("inserting telegram: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading telegram id: %w", err)
	}
	return nil
}

// nullableAPCI returns nil for an absent APCI, or the dereferenced value
// otherwise. Used for the nullable apci column.
func nullableAPCI(apci *uint8) any {
	if apci == nil {
		return nil
	}
	return *apci
}

// List returns telegrams matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit,gocyclo // dynamic query builder: WHERE clause assembly from filter fields
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for telegram queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Destination != "" {
		conditions = append(conditions, "destination = ?")
		args = append(args, filter.Destination)
	}
	if filter.DestinationKind != "" {
		conditions = append(conditions, "destination_kind = ?")
		args = append(args, filter.DestinationKind)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Get total count.
	// WHERE clause is built from parameterised conditions (? placeholders) — no user input in SQL string.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM telegrams %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting telegrams: %w", err)
	}

	// Get paginated results.
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, recorded_at, source, destination, destination_kind, tpci, apci, payload FROM telegrams %s ORDER BY recorded_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying telegrams: %w", err)
	}
	defer rows.Close()

	var telegrams []Telegram
	for rows.Next() {
		var t Telegram
		var recordedAt string
		var apci sql.NullInt64

		if err := rows.Scan(&t.ID, &recordedAt, &t.Source, &t.Destination, &t.DestinationKind,
			&t.TPCI, &apci, &t.Payload); err != nil {
			return nil, fmt.Errorf("scanning telegram: %w", err)
		}

		if apci.Valid {
			v := uint8(apci.Int64) //nolint:gosec // apci column only ever holds a 4-bit short-form code
			t.APCI = &v
		}

		parsed, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing telegram timestamp %q: %w", recordedAt, err)
		}
		t.RecordedAt = parsed

		telegrams = append(telegrams, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating telegrams: %w", err)
	}

	if telegrams == nil {
		telegrams = []Telegram{}
	}

	return &ListResult{
		Telegrams: telegrams,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}
