package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `
	id::text,
	COALESCE(name, ''),
	COALESCE(city, ''),
	COALESCE(area, ''),
	COALESCE(price, 0)::float8,
	COALESCE(rating, 0)::float8,
	COALESCE(image_url, ''),
	COALESCE(description, ''),
	COALESCE(view_count, 0)::bigint,
	COALESCE(booking_dot_com_affiliate_url, ''),
	COALESCE(trip_dot_com_affiliate_url, '')`

var orderBy = map[SortBy]string{
	SortPopularity: "view_count DESC NULLS LAST, id",
	SortPrice:      "price ASC NULLS LAST, id",
	SortRating:     "rating DESC NULLS LAST, id",
}

// NewPostgresPool opens and pings a connection pool for databaseURL.
func NewPostgresPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL configuration is required")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// PostgresStore reads the accommodations table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgxpool.Pool cannot be nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FindByCity(ctx context.Context, q Query) ([]Accommodation, error) {
	order, ok := orderBy[q.SortBy]
	if !ok {
		order = orderBy[SortPopularity]
	}

	query := `SELECT ` + selectColumns + `
		FROM accommodations
		WHERE city ILIKE $1 ESCAPE '\'
		ORDER BY ` + order + `
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, likePattern(q.City), q.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to query accommodations: %w", err)
	}
	defer rows.Close()

	var out []Accommodation
	for rows.Next() {
		a, err := scanAccommodation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accommodations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Accommodation, error) {
	query := `SELECT ` + selectColumns + ` FROM accommodations WHERE id::text = $1`

	a, err := scanAccommodation(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Accommodation{}, ErrNotFound
	}
	return a, err
}

// IncrementViews updates the counter in a single statement.
func (s *PostgresStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	query := `UPDATE accommodations
		SET view_count = COALESCE(view_count, 0) + 1
		WHERE id::text = $1
		RETURNING view_count`

	var views int64
	err := s.pool.QueryRow(ctx, query, id).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

func scanAccommodation(row pgx.Row) (Accommodation, error) {
	var (
		a          Accommodation
		bookingURL string
		tripURL    string
	)
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.City,
		&a.Area,
		&a.Price,
		&a.Rating,
		&a.ImageURL,
		&a.Description,
		&a.ViewCount,
		&bookingURL,
		&tripURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Accommodation{}, err
		}
		return Accommodation{}, fmt.Errorf("failed to scan accommodation: %w", err)
	}
	a.SourceURLs = sourceURLs(bookingURL, tripURL)
	return a, nil
}

// likePattern escapes LIKE metacharacters and wraps s for substring matching.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}
