package domain

import "time"

// Todo is a single entry of the todo collection. The same struct is the
// on-disk JSON shape of the file store and the gorm model of the postgres
// store.
type Todo struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Text      string    `json:"text" gorm:"not null"`
	Done      bool      `json:"done" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;index"`

	// Seq is the insertion order assigned by the database. It breaks ties
	// between todos created within the same millisecond and is never
	// serialized.
	Seq int64 `json:"-" gorm:"autoIncrement;not null;index"`
}

// Stamp returns the creation timestamp used for new items: UTC, truncated to
// milliseconds so the persisted value matches the ISO-8601 form clients see.
func Stamp(now time.Time) time.Time {
	return now.UTC().Truncate(time.Millisecond)
}
