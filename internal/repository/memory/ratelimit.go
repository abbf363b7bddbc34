package memory

import (
	"context"
	"time"

	"github.com/jwalitptl/booking-api/internal/model"
)

type rateLimitRepository struct {
	s *Store
}

func (r *rateLimitRepository) IncrementAndGet(ctx context.Context, key string, expiresAt time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	w, ok := r.s.data.windows[key]
	if !ok {
		w = model.RateLimitWindow{Key: key, ExpiresAt: expiresAt}
	}
	w.Count++
	r.s.data.windows[key] = w
	return w.Count, nil
}

func (r *rateLimitRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lock(ctx)()
	var removed int64
	for key, w := range r.s.data.windows {
		if w.ExpiresAt.Before(before) {
			delete(r.s.data.windows, key)
			removed++
		}
	}
	return removed, nil
}
