package pg

import "time"

// Timestamps is embedded by every ledger entity. ModifiedAt is stamped by the
// stores themselves rather than by gorm's autoUpdateTime so a caller cannot
// forget it on raw column updates.
type Timestamps struct {
	CreatedAt  time.Time `gorm:"column:created_at;not null;index"`
	ModifiedAt time.Time `gorm:"column:modified_at;not null"`
}

// Stamp fills CreatedAt when unset and always moves ModifiedAt to now.
func (t *Timestamps) Stamp(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.ModifiedAt = now
}
