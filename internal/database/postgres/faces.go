package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Every statement is static and parameterized; keys and labels are only ever bound.
const (
	insertFaceQuery    = `INSERT INTO faces (face_key, original_key) VALUES ($1, $2)`
	setLabelQuery      = `UPDATE faces SET face_name = $2 WHERE face_key = $1`
	listUnlabeledQuery = `
		SELECT face_key
		FROM faces
		WHERE face_name IS NULL
		ORDER BY created_at, face_key
		LIMIT $1
	`
	findByLabelQuery = `
		SELECT original_key
		FROM faces
		WHERE face_name = $1
		GROUP BY original_key
		ORDER BY MIN(created_at), original_key
	`
	getFaceQuery = `
		SELECT face_key, original_key, face_name, created_at
		FROM faces
		WHERE face_key = $1
	`
)

// FaceRepository is the PostgreSQL-backed face index.
type FaceRepository struct {
	pool    *Pool
	timeout time.Duration
}

// NewFaceRepository creates a new PostgreSQL face repository. Every operation
// runs in its own transaction bounded by timeout.
func NewFaceRepository(pool *Pool, timeout time.Duration) *FaceRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &FaceRepository{pool: pool, timeout: timeout}
}

// Insert records a new face crop. It never overwrites an existing row.
func (r *FaceRepository) Insert(ctx context.Context, faceKey, originalKey string) error {
	err := r.inTx(ctx, false, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertFaceQuery, faceKey, originalKey); err != nil {
			return fmt.Errorf("insert face %s: %w", faceKey, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

// SetLabel assigns a label to a face, replacing any previous one.
func (r *FaceRepository) SetLabel(ctx context.Context, faceKey, label string) error {
	err := r.inTx(ctx, false, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, setLabelQuery, faceKey, label)
		if err != nil {
			return fmt.Errorf("update face %s: %w", faceKey, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return faces.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set label: %w", err)
	}
	return nil
}

// ListUnlabeled returns face keys without a label in creation order.
// A limit <= 0 returns every unlabeled face.
func (r *FaceRepository) ListUnlabeled(ctx context.Context, limit int) ([]string, error) {
	// LIMIT NULL is LIMIT ALL in PostgreSQL.
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	var keys []string
	err := r.inTx(ctx, true, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		keys, err = queryStrings(ctx, tx, listUnlabeledQuery, lim)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list unlabeled: %w", err)
	}
	return keys, nil
}

// FindByLabel returns the distinct original keys of faces carrying exactly
// this label. No match is an empty result, not an error.
func (r *FaceRepository) FindByLabel(ctx context.Context, label string) ([]string, error) {
	var keys []string
	err := r.inTx(ctx, true, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		keys, err = queryStrings(ctx, tx, findByLabelQuery, label)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find by label: %w", err)
	}
	return keys, nil
}

// Get returns a single index row.
func (r *FaceRepository) Get(ctx context.Context, faceKey string) (*faces.IndexRow, error) {
	var row faces.IndexRow
	err := r.inTx(ctx, true, func(ctx context.Context, tx *sql.Tx) error {
		var label sql.NullString
		err := tx.QueryRowContext(ctx, getFaceQuery, faceKey).Scan(
			&row.FaceKey,
			&row.OriginalKey,
			&label,
			&row.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return faces.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("scan face %s: %w", faceKey, err)
		}
		if label.Valid {
			row.Label = &label.String
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	return &row, nil
}

// inTx runs fn inside a single transaction bounded by the repository timeout
// and maps driver failures onto the index error taxonomy.
func (r *FaceRepository) inTx(
	ctx context.Context, readOnly bool, fn func(ctx context.Context, tx *sql.Tx) error,
) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return classify(err)
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, faces.ErrNotFound) || errors.Is(err, faces.ErrConflict) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", faces.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", faces.ErrStoreUnavailable, err)
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}
