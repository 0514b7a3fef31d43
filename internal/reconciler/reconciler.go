package reconciler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/phonego-ryong/holyDayBot/internal/models"
)

// Reconciler keeps the reservation tables and the channel's scheduled posts
// consistent after each announcement or cancellation. All work is sequential:
// every step for the day-before key completes before the day-of key is
// touched, and any failure aborts the whole event.
type Reconciler struct {
	store ReservationStore
	msgr  Messenger
}

// Event is one announcement to reconcile, with its derived keys.
type Event struct {
	Announcement models.Announcement
	Channel      string
	DayOfKey     int64
	DayBeforeKey int64
	TodayKey     int64
}

func New(store ReservationStore, msgr Messenger) *Reconciler {
	return &Reconciler{store: store, msgr: msgr}
}

// Apply runs the full reconciliation for one event.
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	// A day-before key at or before today's anchor is already in the past
	// from the poster's perspective; no eve artifact is created for it.
	suppressed := ev.DayBeforeKey <= ev.TodayKey

	if ev.Announcement.Cancel {
		return r.applyCancel(ctx, ev, suppressed)
	}
	return r.applyAnnounce(ctx, ev, suppressed)
}

func (r *Reconciler) applyAnnounce(ctx context.Context, ev Event, suppressed bool) error {
	entry := ev.Announcement.Entry()

	if suppressed {
		slog.Info("day-before window already passed, skipping eve roster",
			"name", ev.Announcement.Name, "day_before", ev.DayBeforeKey, "today", ev.TodayKey)
	} else {
		if err := r.appendEntry(ctx, models.TableDayBefore, ev.DayBeforeKey, entry); err != nil {
			return err
		}
		if err := r.reconcilePosts(ctx, models.TableDayBefore, ev.Channel, ev.DayBeforeKey); err != nil {
			return err
		}
	}

	if err := r.appendEntry(ctx, models.TableDayOf, ev.DayOfKey, entry); err != nil {
		return err
	}
	return r.reconcilePosts(ctx, models.TableDayOf, ev.Channel, ev.DayOfKey)
}

func (r *Reconciler) applyCancel(ctx context.Context, ev Event, suppressed bool) error {
	name := ev.Announcement.Name

	removed, err := r.removeEntry(ctx, models.TableDayBefore, ev.DayBeforeKey, name)
	if err != nil {
		return err
	}
	// Cancellation removes from the day-before table even inside the
	// suppression window, while announcements cannot write there. The
	// asymmetry is intentional (it mirrors the observed product behavior)
	// but worth a loud log until the domain owner rules on it.
	if suppressed && removed {
		slog.Warn("suppression asymmetry: cancellation mutated day-before state inside the suppression window",
			"name", name, "day_before", ev.DayBeforeKey, "today", ev.TodayKey)
	}
	if !suppressed {
		if err := r.reconcilePosts(ctx, models.TableDayBefore, ev.Channel, ev.DayBeforeKey); err != nil {
			return err
		}
	}

	if _, err := r.removeEntry(ctx, models.TableDayOf, ev.DayOfKey, name); err != nil {
		return err
	}
	return r.reconcilePosts(ctx, models.TableDayOf, ev.Channel, ev.DayOfKey)
}

// appendEntry creates the roster with one entry or appends to the existing
// list, preserving insertion order.
func (r *Reconciler) appendEntry(ctx context.Context, table models.Table, day int64, entry string) error {
	rec, err := r.store.GetReservation(ctx, table, day)
	if err != nil {
		return err
	}

	if rec == nil {
		slog.Info("creating roster", "table", table, "day", day)
		return r.store.PutReservation(ctx, table, day, []string{entry})
	}
	slog.Info("appending to roster", "table", table, "day", day, "size", len(rec.Entries)+1)
	return r.store.PutReservation(ctx, table, day, append(rec.Entries, entry))
}

// removeEntry removes the first entry containing name and reports whether
// the roster was mutated. A missing roster or a roster with no matching
// entry is a no-op; removing the last entry deletes the roster so an empty
// one is never stored.
func (r *Reconciler) removeEntry(ctx context.Context, table models.Table, day int64, name string) (bool, error) {
	rec, err := r.store.GetReservation(ctx, table, day)
	if err != nil {
		return false, err
	}
	if rec == nil {
		slog.Info("no roster to cancel from", "table", table, "day", day, "name", name)
		return false, nil
	}

	idx := -1
	for i, entry := range rec.Entries {
		if strings.Contains(entry, name) {
			idx = i
			break
		}
	}
	if idx < 0 {
		slog.Warn("cancellation matched no roster entry, leaving roster unchanged",
			"table", table, "day", day, "name", name)
		return false, nil
	}

	entries := append(rec.Entries[:idx:idx], rec.Entries[idx+1:]...)
	if len(entries) == 0 {
		slog.Info("roster emptied, deleting", "table", table, "day", day)
		return true, r.store.DeleteReservation(ctx, table, day)
	}
	return true, r.store.PutReservation(ctx, table, day, entries)
}

// reconcilePosts enforces "at most one live scheduled post per key": delete
// everything currently scheduled at the key's timestamp, re-read the roster,
// and schedule a fresh post only if a roster still exists.
func (r *Reconciler) reconcilePosts(ctx context.Context, table models.Table, channel string, postAt int64) error {
	posts, err := r.msgr.ListScheduled(ctx, channel, postAt)
	if err != nil {
		return err
	}
	for _, post := range posts {
		if err := r.msgr.DeleteScheduled(ctx, post.ChannelID, post.ID); err != nil {
			return err
		}
		slog.Info("deleted stale scheduled post", "table", table, "post_at", postAt, "id", post.ID)
	}

	rec, err := r.store.GetReservation(ctx, table, postAt)
	if err != nil {
		return err
	}
	if rec == nil || len(rec.Entries) == 0 {
		slog.Info("no roster for key, nothing to schedule", "table", table, "day", postAt)
		return nil
	}

	if err := r.msgr.Schedule(ctx, channel, table, rec.Entries, postAt); err != nil {
		return err
	}
	slog.Info("scheduled roster post", "table", table, "post_at", postAt, "entries", len(rec.Entries))
	return nil
}
