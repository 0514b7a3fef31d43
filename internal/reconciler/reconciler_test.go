package reconciler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/phonego-ryong/holyDayBot/internal/models"
)

// --- Mock implementations ---

type mockStore struct {
	tables map[models.Table]map[int64][]string
	getErr error
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{tables: map[models.Table]map[int64][]string{
		models.TableDayOf:     {},
		models.TableDayBefore: {},
	}}
}

func (m *mockStore) GetReservation(_ context.Context, table models.Table, day int64) (*models.Reservation, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	entries, ok := m.tables[table][day]
	if !ok {
		return nil, nil
	}
	return &models.Reservation{Day: day, Entries: slices.Clone(entries)}, nil
}

func (m *mockStore) PutReservation(_ context.Context, table models.Table, day int64, entries []string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.tables[table][day] = slices.Clone(entries)
	return nil
}

func (m *mockStore) DeleteReservation(_ context.Context, table models.Table, day int64) error {
	delete(m.tables[table], day)
	return nil
}

// checkNoEmptyRosters asserts the invariant that an empty entry list is never
// stored.
func (m *mockStore) checkNoEmptyRosters(t *testing.T) {
	t.Helper()
	for table, days := range m.tables {
		for day, entries := range days {
			if len(entries) == 0 {
				t.Errorf("table %s holds an empty roster at %d", table, day)
			}
		}
	}
}

type mockMessenger struct {
	posts       []models.ScheduledPost
	nextID      int
	calls       []string
	lastEntries map[int64][]string
	listErr     error
	scheduleErr error
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{lastEntries: map[int64][]string{}}
}

func (m *mockMessenger) ListScheduled(_ context.Context, channel string, postAt int64) ([]models.ScheduledPost, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.calls = append(m.calls, fmt.Sprintf("list:%d", postAt))
	var out []models.ScheduledPost
	for _, p := range m.posts {
		if p.ChannelID == channel && p.PostAt == postAt {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockMessenger) DeleteScheduled(_ context.Context, channel, id string) error {
	m.calls = append(m.calls, "delete:"+id)
	m.posts = slices.DeleteFunc(m.posts, func(p models.ScheduledPost) bool {
		return p.ChannelID == channel && p.ID == id
	})
	return nil
}

func (m *mockMessenger) Schedule(_ context.Context, channel string, table models.Table, entries []string, postAt int64) error {
	if m.scheduleErr != nil {
		return m.scheduleErr
	}
	m.nextID++
	m.calls = append(m.calls, fmt.Sprintf("schedule:%s:%d", table, postAt))
	m.posts = append(m.posts, models.ScheduledPost{
		ID:        fmt.Sprintf("Q%d", m.nextID),
		ChannelID: channel,
		PostAt:    postAt,
	})
	m.lastEntries[postAt] = slices.Clone(entries)
	return nil
}

// postsAt counts live scheduled posts at a timestamp.
func (m *mockMessenger) postsAt(postAt int64) int {
	n := 0
	for _, p := range m.posts {
		if p.PostAt == postAt {
			n++
		}
	}
	return n
}

const (
	dayOfKey     = int64(2000)
	dayBeforeKey = int64(1000)
	todayKey     = int64(500)
	channel      = "C123"
)

func announceEvent(name, text string) Event {
	return Event{
		Announcement: models.Announcement{Name: name, RawText: text, Month: 9, Day: 5},
		Channel:      channel,
		DayOfKey:     dayOfKey,
		DayBeforeKey: dayBeforeKey,
		TodayKey:     todayKey,
	}
}

func cancelEvent(name string) Event {
	ev := announceEvent(name, "취소 9월 5일")
	ev.Announcement.Cancel = true
	return ev
}

// --- Tests ---

func TestApply_NewAnnouncement(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	if err := r.Apply(context.Background(), announceEvent("Kim", "출장 갑니다 9월 5일")); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	wantEntry := "Kim님 : 출장 갑니다 9월 5일"
	if got := store.tables[models.TableDayBefore][dayBeforeKey]; len(got) != 1 || got[0] != wantEntry {
		t.Errorf("day-before roster = %v, want [%s]", got, wantEntry)
	}
	if got := store.tables[models.TableDayOf][dayOfKey]; len(got) != 1 || got[0] != wantEntry {
		t.Errorf("day-of roster = %v, want [%s]", got, wantEntry)
	}
	if msgr.postsAt(dayBeforeKey) != 1 || msgr.postsAt(dayOfKey) != 1 {
		t.Errorf("posts = %d/%d at eve/day, want 1/1", msgr.postsAt(dayBeforeKey), msgr.postsAt(dayOfKey))
	}
	store.checkNoEmptyRosters(t)
}

func TestApply_DayBeforeOrderedFirst(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	if err := r.Apply(context.Background(), announceEvent("Kim", "9월 5일")); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	want := []string{
		fmt.Sprintf("list:%d", dayBeforeKey),
		fmt.Sprintf("schedule:%s:%d", models.TableDayBefore, dayBeforeKey),
		fmt.Sprintf("list:%d", dayOfKey),
		fmt.Sprintf("schedule:%s:%d", models.TableDayOf, dayOfKey),
	}
	if !slices.Equal(msgr.calls, want) {
		t.Errorf("call order = %v, want %v", msgr.calls, want)
	}
}

func TestApply_SecondAnnouncementAppendsAndReplacesPost(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	ctx := context.Background()
	if err := r.Apply(ctx, announceEvent("Kim", "출장 9월 5일")); err != nil {
		t.Fatalf("first Apply() error: %v", err)
	}
	if err := r.Apply(ctx, announceEvent("Lee", "휴가 9월 5일")); err != nil {
		t.Fatalf("second Apply() error: %v", err)
	}

	if got := store.tables[models.TableDayOf][dayOfKey]; len(got) != 2 {
		t.Fatalf("day-of roster = %v, want 2 entries", got)
	} else if got[0] != "Kim님 : 출장 9월 5일" || got[1] != "Lee님 : 휴가 9월 5일" {
		t.Errorf("roster order wrong: %v", got)
	}

	// The first post must have been deleted and replaced with one listing both.
	if msgr.postsAt(dayOfKey) != 1 {
		t.Errorf("%d posts at day-of key, want 1", msgr.postsAt(dayOfKey))
	}
	if got := msgr.lastEntries[dayOfKey]; len(got) != 2 {
		t.Errorf("scheduled roster = %v, want both entries", got)
	}
}

func TestApply_SameDaySuppressesDayBefore(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	ev := announceEvent("Kim", "9월 5일")
	ev.TodayKey = dayBeforeKey // announced on the eve itself

	if err := r.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if _, ok := store.tables[models.TableDayBefore][dayBeforeKey]; ok {
		t.Error("day-before roster created inside the suppression window")
	}
	if msgr.postsAt(dayBeforeKey) != 0 {
		t.Error("day-before post scheduled inside the suppression window")
	}
	if _, ok := store.tables[models.TableDayOf][dayOfKey]; !ok {
		t.Error("day-of roster missing; suppression must not affect day-of")
	}
	if msgr.postsAt(dayOfKey) != 1 {
		t.Error("day-of post missing; suppression must not affect day-of")
	}
}

func TestApply_CancelRoundTrip(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	ctx := context.Background()
	if err := r.Apply(ctx, announceEvent("Kim", "출장 9월 5일")); err != nil {
		t.Fatalf("announce Apply() error: %v", err)
	}
	if err := r.Apply(ctx, cancelEvent("Kim")); err != nil {
		t.Fatalf("cancel Apply() error: %v", err)
	}

	if _, ok := store.tables[models.TableDayOf][dayOfKey]; ok {
		t.Error("day-of roster still exists after cancelling its only entry")
	}
	if _, ok := store.tables[models.TableDayBefore][dayBeforeKey]; ok {
		t.Error("day-before roster still exists after cancelling its only entry")
	}
	if msgr.postsAt(dayOfKey) != 0 || msgr.postsAt(dayBeforeKey) != 0 {
		t.Errorf("posts remain after round trip: eve=%d day=%d",
			msgr.postsAt(dayBeforeKey), msgr.postsAt(dayOfKey))
	}
	store.checkNoEmptyRosters(t)
}

func TestApply_CancelRemovesOnlyMatchingEntry(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	ctx := context.Background()
	_ = r.Apply(ctx, announceEvent("Kim", "출장 9월 5일"))
	_ = r.Apply(ctx, announceEvent("Lee", "휴가 9월 5일"))

	if err := r.Apply(ctx, cancelEvent("Kim")); err != nil {
		t.Fatalf("cancel Apply() error: %v", err)
	}

	got := store.tables[models.TableDayOf][dayOfKey]
	if len(got) != 1 || got[0] != "Lee님 : 휴가 9월 5일" {
		t.Errorf("day-of roster = %v, want only Lee's entry", got)
	}
	// Remaining roster still gets a replacement post.
	if msgr.postsAt(dayOfKey) != 1 {
		t.Errorf("%d posts at day-of key, want 1", msgr.postsAt(dayOfKey))
	}
	if entries := msgr.lastEntries[dayOfKey]; len(entries) != 1 {
		t.Errorf("replacement post lists %v, want Lee only", entries)
	}
}

func TestApply_CancelInsideSuppressionWindow(t *testing.T) {
	// Announcements cannot touch the day-before table once its anchor has
	// passed, but cancellations still remove whatever day-before state
	// exists. The stale day-before post is deliberately left alone.
	store := newMockStore()
	store.tables[models.TableDayBefore][dayBeforeKey] = []string{"Kim님 : 출장 9월 5일"}
	store.tables[models.TableDayOf][dayOfKey] = []string{"Kim님 : 출장 9월 5일"}
	msgr := newMockMessenger()
	msgr.posts = []models.ScheduledPost{
		{ID: "Q1", ChannelID: channel, PostAt: dayBeforeKey},
		{ID: "Q2", ChannelID: channel, PostAt: dayOfKey},
	}
	r := New(store, msgr)

	ev := cancelEvent("Kim")
	ev.TodayKey = dayBeforeKey // cancelled on the eve itself

	if err := r.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if _, ok := store.tables[models.TableDayBefore][dayBeforeKey]; ok {
		t.Error("day-before roster survived a cancel inside the suppression window")
	}
	if msgr.postsAt(dayBeforeKey) != 1 {
		t.Errorf("%d posts at day-before key, want the stale one left untouched", msgr.postsAt(dayBeforeKey))
	}
	if _, ok := store.tables[models.TableDayOf][dayOfKey]; ok {
		t.Error("day-of roster survived the cancel")
	}
	if msgr.postsAt(dayOfKey) != 0 {
		t.Errorf("%d posts at day-of key, want 0 after cancelling the only entry", msgr.postsAt(dayOfKey))
	}
	store.checkNoEmptyRosters(t)
}

func TestApply_CancelWithNoRosterIsNoOp(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	if err := r.Apply(context.Background(), cancelEvent("Kim")); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if len(store.tables[models.TableDayOf]) != 0 || len(store.tables[models.TableDayBefore]) != 0 {
		t.Error("cancel on empty state created rosters")
	}
	if len(msgr.posts) != 0 {
		t.Errorf("cancel on empty state scheduled posts: %v", msgr.posts)
	}
}

func TestRemoveEntry_ReportsMutation(t *testing.T) {
	// The suppression-window warning keys off whether day-before state was
	// actually touched; no-op cancels must not count as mutations.
	store := newMockStore()
	store.tables[models.TableDayOf][dayOfKey] = []string{"Kim님 : 출장 9월 5일"}
	r := New(store, newMockMessenger())
	ctx := context.Background()

	if removed, err := r.removeEntry(ctx, models.TableDayOf, dayBeforeKey, "Kim"); err != nil || removed {
		t.Errorf("removeEntry on missing roster = (%v, %v), want (false, nil)", removed, err)
	}
	if removed, err := r.removeEntry(ctx, models.TableDayOf, dayOfKey, "Park"); err != nil || removed {
		t.Errorf("removeEntry with no matching entry = (%v, %v), want (false, nil)", removed, err)
	}
	if removed, err := r.removeEntry(ctx, models.TableDayOf, dayOfKey, "Kim"); err != nil || !removed {
		t.Errorf("removeEntry of an existing entry = (%v, %v), want (true, nil)", removed, err)
	}
}

func TestApply_CancelUnknownNameLeavesRosterIntact(t *testing.T) {
	// A cancellation naming nobody on the roster must not remove an
	// arbitrary entry.
	store := newMockStore()
	msgr := newMockMessenger()
	r := New(store, msgr)

	ctx := context.Background()
	_ = r.Apply(ctx, announceEvent("Kim", "출장 9월 5일"))

	if err := r.Apply(ctx, cancelEvent("Park")); err != nil {
		t.Fatalf("cancel Apply() error: %v", err)
	}

	got := store.tables[models.TableDayOf][dayOfKey]
	if len(got) != 1 || got[0] != "Kim님 : 출장 9월 5일" {
		t.Errorf("day-of roster = %v, want Kim's entry untouched", got)
	}
}

func TestApply_DeletesEveryStalePostAtKey(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	// Two posts racing producers left at the same timestamp.
	msgr.posts = []models.ScheduledPost{
		{ID: "Q1", ChannelID: channel, PostAt: dayOfKey},
		{ID: "Q2", ChannelID: channel, PostAt: dayOfKey},
	}
	r := New(store, msgr)

	if err := r.Apply(context.Background(), announceEvent("Kim", "9월 5일")); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if msgr.postsAt(dayOfKey) != 1 {
		t.Errorf("%d posts at day-of key, want exactly 1 after reconciliation", msgr.postsAt(dayOfKey))
	}
}

func TestApply_StoreErrorAbortsEvent(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("firestore unavailable")
	msgr := newMockMessenger()
	r := New(store, msgr)

	if err := r.Apply(context.Background(), announceEvent("Kim", "9월 5일")); err == nil {
		t.Fatal("Apply() swallowed a store error")
	}
	if len(msgr.calls) != 0 {
		t.Errorf("messenger was called after a store failure: %v", msgr.calls)
	}
}

func TestApply_ScheduleErrorPropagates(t *testing.T) {
	store := newMockStore()
	msgr := newMockMessenger()
	msgr.scheduleErr = errors.New("invalid_time")
	r := New(store, msgr)

	if err := r.Apply(context.Background(), announceEvent("Kim", "9월 5일")); err == nil {
		t.Fatal("Apply() swallowed a scheduler error")
	}
}
