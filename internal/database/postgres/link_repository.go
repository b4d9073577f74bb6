package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/linktrack/internal/database"
	"github.com/vadimbarashkov/linktrack/internal/models"
)

type linkRecord struct {
	ID         int64     `db:"id"`
	ShortKey   string    `db:"short_key"`
	TargetURL  string    `db:"target_url"`
	VisitCount int64     `db:"visit_count"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *linkRecord) toLink() *models.Link {
	return &models.Link{
		ID:         r.ID,
		ShortKey:   r.ShortKey,
		TargetURL:  r.TargetURL,
		VisitCount: r.VisitCount,
		CreatedAt:  r.CreatedAt,
	}
}

// LinkRepository persists links in the links table.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a new link and fails with database.ErrShortKeyExists when
// the short key is already taken. Used for generated keys, where a
// collision must retry rather than overwrite.
func (r *LinkRepository) Create(ctx context.Context, shortKey, targetURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Create"
	const query = `INSERT INTO links(short_key, target_url) VALUES ($1, $2) RETURNING *`

	var rec linkRecord

	if err := r.db.GetContext(ctx, &rec, query, shortKey, targetURL); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortKeyExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into links table: %w", op, err)
	}

	return rec.toLink(), nil
}

// Upsert creates the link or, when the short key already exists, overwrites
// its target and refreshes created_at while preserving the visit counter.
func (r *LinkRepository) Upsert(ctx context.Context, shortKey, targetURL string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.Upsert"
	const query = `INSERT INTO links(short_key, target_url) VALUES ($1, $2)
		ON CONFLICT (short_key) DO UPDATE
		SET target_url = EXCLUDED.target_url, created_at = now()
		RETURNING *`

	var rec linkRecord

	if err := r.db.GetContext(ctx, &rec, query, shortKey, targetURL); err != nil {
		return nil, fmt.Errorf("%s: failed to upsert links table row: %w", op, err)
	}

	return rec.toLink(), nil
}

// GetByShortKey retrieves a link without touching its visit counter.
func (r *LinkRepository) GetByShortKey(ctx context.Context, shortKey string) (*models.Link, error) {
	const op = "database.postgres.LinkRepository.GetByShortKey"
	const query = `SELECT * FROM links WHERE short_key = $1`

	var rec linkRecord

	if err := r.db.GetContext(ctx, &rec, query, shortKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from links table: %w", op, err)
	}

	return rec.toLink(), nil
}

// List returns all links, in insertion order by default or by descending
// visit count when sort is models.SortByVisits.
func (r *LinkRepository) List(ctx context.Context, sort models.LinkSort) ([]models.Link, error) {
	const op = "database.postgres.LinkRepository.List"

	query := `SELECT * FROM links ORDER BY id`
	if sort == models.SortByVisits {
		query = `SELECT * FROM links ORDER BY visit_count DESC, id`
	}

	var recs []linkRecord

	if err := r.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("%s: failed to select from links table: %w", op, err)
	}

	links := make([]models.Link, 0, len(recs))
	for _, rec := range recs {
		links = append(links, *rec.toLink())
	}

	return links, nil
}

// Delete removes a link by its short key. The tracking record for the key,
// if any, is left untouched.
func (r *LinkRepository) Delete(ctx context.Context, shortKey string) error {
	const op = "database.postgres.LinkRepository.Delete"
	const query = `DELETE FROM links WHERE short_key = $1`

	res, err := r.db.ExecContext(ctx, query, shortKey)
	if err != nil {
		return fmt.Errorf("%s: failed to delete from links table: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
	}

	return nil
}

// IncrementVisitCount bumps the visit counter in a single atomic UPDATE and
// returns the new count. Concurrent callers never lose updates: the
// increment happens inside the statement, not as a read-modify-write.
func (r *LinkRepository) IncrementVisitCount(ctx context.Context, shortKey string) (int64, error) {
	const op = "database.postgres.LinkRepository.IncrementVisitCount"
	const query = `UPDATE links SET visit_count = visit_count + 1 WHERE short_key = $1 RETURNING visit_count`

	var count int64

	if err := r.db.GetContext(ctx, &count, query, shortKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, database.ErrLinkNotFound)
		}

		return 0, fmt.Errorf("%s: failed to increment links table counter: %w", op, err)
	}

	return count, nil
}
