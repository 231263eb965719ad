package models

import (
	"time"

	"github.com/uptrace/bun"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ID        string      `bun:"id,pk" json:"id"`
	Title     string      `bun:"title,notnull" json:"title"`
	StartsAt  time.Time   `bun:"starts_at,notnull" json:"starts_at"`
	EndsAt    time.Time   `bun:"ends_at,notnull" json:"ends_at"`
	Status    EventStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time   `bun:"created_at,notnull" json:"created_at"`
}

// HasStarted reports whether the event start is at or before now.
func (e *Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

type CreateEventRequest struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Status   string    `json:"status"`
}
