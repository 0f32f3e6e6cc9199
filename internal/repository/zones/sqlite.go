package zones

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/reliefops/redzone/internal/domain/geo"
	"github.com/reliefops/redzone/internal/domain/zone"
)

// Repository defines persistence operations for zone definitions.
type Repository interface {
	List(ctx context.Context) ([]*zone.Zone, error)
	Save(ctx context.Context, z *zone.Zone) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// ErrNotFound is returned when a zone does not exist.
var ErrNotFound = errors.New("zone not found")

// schema creates the zone table. Vertices are stored as a JSON array in
// the store's wire shape so the row survives schema-free.
const schema = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	vertices   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`

// SQLiteRepository persists zone definitions in a local SQLite file so the
// server can republish them into the live store after a restart.
type SQLiteRepository struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at the provided path and
// ensures the schema exists.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open zones db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create zones schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// List returns every stored zone ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]*zone.Zone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, vertices, created_at FROM zones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	defer rows.Close()

	var result []*zone.Zone

	for rows.Next() {
		var (
			z         zone.Zone
			kind      string
			vertices  string
			createdAt int64
		)

		if err := rows.Scan(&z.ID, &kind, &vertices, &createdAt); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}

		z.Kind = zone.Kind(kind)
		z.CreatedAt = time.UnixMilli(createdAt).UTC()

		if err := json.Unmarshal([]byte(vertices), &z.Vertices); err != nil {
			// A corrupted vertex column degrades to an inert zone.
			z.Vertices = nil
		}

		result = append(result, &z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zones: %w", err)
	}

	return result, nil
}

// Save inserts or replaces a zone definition.
func (r *SQLiteRepository) Save(ctx context.Context, z *zone.Zone) error {
	if z.Vertices == nil {
		z.Vertices = []geo.Point{}
	}

	vertices, err := json.Marshal(z.Vertices)
	if err != nil {
		return fmt.Errorf("encode vertices: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO zones (id, kind, vertices, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET kind = excluded.kind,
		                               vertices = excluded.vertices,
		                               created_at = excluded.created_at`,
		z.ID, string(z.Kind), string(vertices), z.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save zone %q: %w", z.ID, err)
	}

	return nil
}

// Delete removes a zone definition, returning ErrNotFound for unknown IDs.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete zone %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete zone %q: %w", id, err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
