package model

import "time"

type RateLimitWindow struct {
	Key       string    `db:"key" json:"key"`
	Count     int64     `db:"count" json:"count"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}
