package repository

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the postgres dialect
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/tour-booking/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateReview indicates the user already reviewed the tour.
	ErrDuplicateReview = errors.New("repository: user already reviewed this tour")
	// ErrDuplicateTour indicates a tour with the same name exists.
	ErrDuplicateTour = errors.New("repository: tour name already taken")
	// ErrConstraint indicates a row failed a check constraint.
	ErrConstraint = errors.New("repository: constraint violated")
	// ErrStoreUnavailable indicates the database could not be reached.
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

var dialect = goqu.Dialect("postgres")

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Tours   *ToursRepository
	Reviews *ReviewsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Tours:   &ToursRepository{pool: pool},
		Reviews: &ReviewsRepository{pool: pool},
	}
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func render(b sqlBuilder) (string, []interface{}, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build sql: %w", err)
	}
	return query, args, nil
}

// collectMaps runs a projected select and returns one map per row keyed by the
// column aliases.
func collectMaps(ctx context.Context, pool *pgxpool.Pool, ds *goqu.SelectDataset) ([]map[string]any, error) {
	query, args, err := render(ds.Prepared(true))
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = make([]map[string]any, 0)
	}
	return items, nil
}

// classify maps driver errors onto repository sentinels and attaches op as
// context. Unknown errors pass through wrapped.
func classify(op string, err error, duplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && duplicate != nil:
			return duplicate
		case pgErr.Code == pgForeignKeyViolation:
			return ErrNotFound
		case pgErr.Code == pgCheckViolation:
			return fmt.Errorf("%w: %s", ErrConstraint, pgErr.ConstraintName)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}
