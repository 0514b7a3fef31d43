package reconciler

import (
	"context"

	"github.com/phonego-ryong/holyDayBot/internal/models"
)

// ReservationStore abstracts the reservation tables.
type ReservationStore interface {
	GetReservation(ctx context.Context, table models.Table, day int64) (*models.Reservation, error)
	PutReservation(ctx context.Context, table models.Table, day int64, entries []string) error
	DeleteReservation(ctx context.Context, table models.Table, day int64) error
}

// Messenger abstracts the chat platform's scheduled-post surface.
type Messenger interface {
	ListScheduled(ctx context.Context, channel string, postAt int64) ([]models.ScheduledPost, error)
	DeleteScheduled(ctx context.Context, channel, id string) error
	Schedule(ctx context.Context, channel string, table models.Table, entries []string, postAt int64) error
}

// Applier is what the inbound event surface depends on.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}
