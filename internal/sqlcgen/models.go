package sqlcgen

import "time"

type KvEntry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
