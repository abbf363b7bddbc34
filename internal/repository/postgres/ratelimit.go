package postgres

import (
	"context"
	"time"

	"github.com/jwalitptl/booking-api/internal/repository"
)

type rateLimitRepository struct {
	BaseRepository
}

func NewRateLimitRepository(base BaseRepository) repository.RateLimitRepository {
	return &rateLimitRepository{base}
}

// IncrementAndGet is a single atomic upsert; the expiry is set by the first
// writer and left alone afterwards.
func (r *rateLimitRepository) IncrementAndGet(ctx context.Context, key string, expiresAt time.Time) (int64, error) {
	query := `
		INSERT INTO rate_limit_windows (key, count, expires_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (key) DO UPDATE SET count = rate_limit_windows.count + 1
		RETURNING count
	`
	var count int64
	if err := r.conn(ctx).QueryRowxContext(ctx, query, key, expiresAt).Scan(&count); err != nil {
		return 0, mapError(err, "increment rate limit window")
	}
	return count, nil
}

func (r *rateLimitRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapError(err, "delete expired rate limit windows")
	}
	return res.RowsAffected()
}
