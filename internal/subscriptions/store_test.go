package subscriptions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trawler/internal/sources"
	"trawler/internal/subscriptions"
	"trawler/internal/testsupport"
)

func newStore(t *testing.T) *subscriptions.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return subscriptions.NewStore(testsupport.MustOpenDB(t, cfg), testsupport.SubscriptionDefaults(cfg))
}

func register(t *testing.T, store *subscriptions.Store, url string, priority int) *subscriptions.Subscription {
	t.Helper()
	sub, err := store.Register(context.Background(), subscriptions.RegisterRequest{
		URL:           url,
		Priority:      priority,
		IntervalHours: 12,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", url, err)
	}
	return sub
}

func TestRegisterResolvesAndPersists(t *testing.T) {
	store := newStore(t)

	sub := register(t, store, "https://www.youtube.com/@SomeCreator", 3)
	if sub.ID == "" {
		t.Fatal("expected generated id")
	}
	if sub.Kind != sources.KindChannel || sub.CanonicalID != "@somecreator" {
		t.Fatalf("unexpected resolution: %#v", sub)
	}
	if !sub.Active {
		t.Fatal("new subscriptions start active")
	}
	if sub.Priority != 3 || sub.IntervalHours != 12 {
		t.Fatalf("unexpected settings: %#v", sub)
	}
	if sub.ItemsFound != 0 || sub.ItemsProcessed != 0 || sub.ResultsFound != 0 {
		t.Fatalf("counters must start at zero: %#v", sub)
	}

	byCanonical, err := store.GetByCanonicalID(context.Background(), "@somecreator")
	if err != nil {
		t.Fatalf("GetByCanonicalID failed: %v", err)
	}
	if byCanonical == nil || byCanonical.ID != sub.ID {
		t.Fatalf("unexpected lookup result: %#v", byCanonical)
	}
}

func TestRegisterAppliesDefaultsForUnsetFields(t *testing.T) {
	store := newStore(t)

	sub, err := store.Register(context.Background(), subscriptions.RegisterRequest{
		URL: "https://www.youtube.com/@bare",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sub.Priority != 5 {
		t.Fatalf("priority = %d, want default 5", sub.Priority)
	}
	if sub.IntervalHours != 12 {
		t.Fatalf("interval_hours = %d, want default 12", sub.IntervalHours)
	}

	// Explicit values win over the defaults.
	sub, err = store.Register(context.Background(), subscriptions.RegisterRequest{
		URL:           "https://www.youtube.com/@tuned",
		Priority:      2,
		IntervalHours: 48,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sub.Priority != 2 || sub.IntervalHours != 48 {
		t.Fatalf("explicit settings overridden: %#v", sub)
	}
}

func TestRegisterRejectsDuplicateCanonicalID(t *testing.T) {
	store := newStore(t)

	register(t, store, "https://www.youtube.com/@creator", 5)
	_, err := store.Register(context.Background(), subscriptions.RegisterRequest{
		URL: "https://youtube.com/@Creator/",
	})
	if !errors.Is(err, subscriptions.ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}
}

func TestRegisterRejectsInvalidURL(t *testing.T) {
	store := newStore(t)

	_, err := store.Register(context.Background(), subscriptions.RegisterRequest{
		URL: "https://example.com/feed",
	})
	if !errors.Is(err, sources.ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := newStore(t)

	sub, err := store.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected nil for missing id, got %#v", sub)
	}
}

func TestListOrdersByPriorityThenStaleness(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	low := register(t, store, "https://www.youtube.com/@low", 9)
	highChecked := register(t, store, "https://www.youtube.com/@high-checked", 1)
	highNever := register(t, store, "https://www.youtube.com/@high-never", 1)

	checked := time.Now().UTC().Add(-time.Hour)
	if _, err := store.Update(ctx, highChecked.ID, subscriptions.Fields{LastCheckedAt: &checked}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	subs, err := store.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("len = %d, want 3", len(subs))
	}
	if subs[0].ID != highNever.ID {
		t.Fatalf("first = %s, want the never-checked priority-1 sub", subs[0].CanonicalID)
	}
	if subs[1].ID != highChecked.ID {
		t.Fatalf("second = %s, want the checked priority-1 sub", subs[1].CanonicalID)
	}
	if subs[2].ID != low.ID {
		t.Fatalf("third = %s, want the priority-9 sub", subs[2].CanonicalID)
	}
}

func TestListActiveOnlyExcludesPaused(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	keep := register(t, store, "https://www.youtube.com/@keep", 5)
	paused := register(t, store, "https://www.youtube.com/@paused", 5)

	if ok, err := store.Pause(ctx, paused.ID); err != nil || !ok {
		t.Fatalf("Pause failed: %v (%t)", err, ok)
	}

	subs, err := store.List(ctx, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != keep.ID {
		t.Fatalf("unexpected active listing: %#v", subs)
	}

	if ok, err := store.Resume(ctx, paused.ID); err != nil || !ok {
		t.Fatalf("Resume failed: %v (%t)", err, ok)
	}
	subs, err = store.List(ctx, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len = %d after resume, want 2", len(subs))
	}
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sub := register(t, store, "https://www.youtube.com/@patch", 5)

	priority := 2
	name := "Patched"
	found, err := store.Update(ctx, sub.ID, subscriptions.Fields{Priority: &priority, DisplayName: &name})
	if err != nil || !found {
		t.Fatalf("Update failed: %v (%t)", err, found)
	}

	fetched, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.Priority != 2 || fetched.DisplayName != "Patched" {
		t.Fatalf("unexpected patched sub: %#v", fetched)
	}
	if fetched.IntervalHours != sub.IntervalHours {
		t.Fatalf("interval mutated: %d", fetched.IntervalHours)
	}

	found, err = store.Update(ctx, "missing", subscriptions.Fields{Priority: &priority})
	if err != nil {
		t.Fatalf("Update missing failed: %v", err)
	}
	if found {
		t.Fatal("expected not-found for unknown id")
	}
}

func TestIncrementStatsAccumulates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sub := register(t, store, "https://www.youtube.com/@stats", 5)

	if err := store.IncrementStats(ctx, sub.ID, 3, 0, 0); err != nil {
		t.Fatalf("IncrementStats failed: %v", err)
	}
	if err := store.IncrementStats(ctx, sub.ID, 0, 1, 7); err != nil {
		t.Fatalf("IncrementStats failed: %v", err)
	}

	fetched, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched.ItemsFound != 3 || fetched.ItemsProcessed != 1 || fetched.ResultsFound != 7 {
		t.Fatalf("unexpected counters: %#v", fetched)
	}
}

func TestDueForCheck(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-time.Hour)
	stale := now.Add(-13 * time.Hour)

	cases := []struct {
		name string
		sub  subscriptions.Subscription
		want bool
	}{
		{"never checked", subscriptions.Subscription{IntervalHours: 12}, true},
		{"recently checked", subscriptions.Subscription{IntervalHours: 12, LastCheckedAt: &recent}, false},
		{"past interval", subscriptions.Subscription{IntervalHours: 12, LastCheckedAt: &stale}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sub.DueForCheck(now); got != tc.want {
				t.Fatalf("DueForCheck = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestDeleteRemovesSubscription(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sub := register(t, store, "https://www.youtube.com/@gone", 5)
	ok, err := store.Delete(ctx, sub.ID)
	if err != nil || !ok {
		t.Fatalf("Delete failed: %v (%t)", err, ok)
	}
	fetched, err := store.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched != nil {
		t.Fatalf("expected deletion, got %#v", fetched)
	}
}
