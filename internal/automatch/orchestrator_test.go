package automatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/notify"
	"github.com/foundly/foundly/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type recordingNotifier struct {
	mu      sync.Mutex
	matches []string
	credits []string
	fail    bool
}

func (n *recordingNotifier) MatchFound(_ context.Context, rec *store.MatchRecord, _, _ *item.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("delivery down")
	}
	n.matches = append(n.matches, rec.ID)
	return nil
}

func (n *recordingNotifier) AwardCredit(_ context.Context, userID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("delivery down")
	}
	n.credits = append(n.credits, userID)
	return nil
}

func coords(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

// seedWalletPair stores a lost wallet and a found wallet 400m and an
// hour apart, a pair that clears the default threshold.
func seedWalletPair(t *testing.T, items *store.MemoryItemStore) (lostID, foundID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	lostAt := now.Add(-2 * time.Hour)
	foundAt := now.Add(-1 * time.Hour)

	lost := &item.Item{
		ID: "lost-1", Type: item.TypeLost, Status: item.StatusPending,
		Name: "black leather wallet", Description: "black leather wallet",
		Tags: []string{"wallet", "leather"}, Color: "black", Category: "accessories",
		LocationText: "5th avenue", OccurredAt: &lostAt,
		ReportedBy: "user-lost", CreatedAt: now,
	}
	lost.Lat, lost.Lng = coords(40.7580, -73.9855)

	found := &item.Item{
		ID: "found-1", Type: item.TypeFound, Status: item.StatusPending,
		Name: "black wallet", Description: "black wallet found near library",
		Tags: []string{"wallet", "black"}, Color: "black", Category: "accessories",
		LocationText: "5th avenue", OccurredAt: &foundAt,
		ReportedBy: "user-found", CreatedAt: now,
	}
	found.Lat, found.Lng = coords(40.7616, -73.9857)

	for _, it := range []*item.Item{lost, found} {
		it.Normalize()
		if err := items.CreateItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	return lost.ID, found.ID
}

func newTestOrchestrator(t *testing.T, items *store.MemoryItemStore, matches *store.MemoryMatchStore, notifier notify.Notifier) *Orchestrator {
	t.Helper()
	provider, err := config.NewStaticProvider(config.Default())
	if err != nil {
		t.Fatal(err)
	}
	return &Orchestrator{
		Items:    items,
		Matches:  matches,
		Provider: provider,
		Notifier: notifier,
		Log:      testLogger(),
	}
}

func TestRunMatchesWalletPair(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	notifier := &recordingNotifier{}
	orc := newTestOrchestrator(t, items, matches, notifier)

	lostID, foundID := seedWalletPair(t, items)

	res, err := orc.Run(ctx, lostID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeMatched {
		t.Fatalf("outcome = %s, want matched", res.Outcome)
	}
	if res.Record == nil || res.Record.LostItemID != lostID || res.Record.FoundItemID != foundID {
		t.Fatalf("record = %+v, want pair %s/%s", res.Record, lostID, foundID)
	}
	if res.Record.Score < config.Default().Threshold {
		t.Errorf("score %v below threshold", res.Record.Score)
	}
	if len(res.Record.Breakdown.PerSignal) == 0 {
		t.Error("record must carry the score breakdown")
	}

	for _, id := range []string{lostID, foundID} {
		it, err := items.GetItem(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if it.Status != item.StatusMatched {
			t.Errorf("item %s status = %s, want matched", id, it.Status)
		}
	}

	orc.WaitNotifications()
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.matches) != 1 {
		t.Errorf("match notifications = %d, want 1", len(notifier.matches))
	}
	if len(notifier.credits) != 1 || notifier.credits[0] != "user-found" {
		t.Errorf("credits = %v, want the finder credited once", notifier.credits)
	}
}

// A found-side trigger must store the record with the same orientation
// as a lost-side trigger.
func TestRunOrientsPairFromFoundSide(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)

	lostID, foundID := seedWalletPair(t, items)

	res, err := orc.Run(ctx, foundID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeMatched {
		t.Fatalf("outcome = %s, want matched", res.Outcome)
	}
	if res.Record.LostItemID != lostID || res.Record.FoundItemID != foundID {
		t.Errorf("record pair = %s/%s, want %s/%s",
			res.Record.LostItemID, res.Record.FoundItemID, lostID, foundID)
	}
}

func TestRunSequentialIdempotence(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)

	lostID, _ := seedWalletPair(t, items)

	first, err := orc.Run(ctx, lostID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Outcome != OutcomeMatched {
		t.Fatalf("first outcome = %s, want matched", first.Outcome)
	}

	second, err := orc.Run(ctx, lostID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Outcome != OutcomeAlreadyMatched {
		t.Fatalf("second outcome = %s, want already_matched", second.Outcome)
	}
	if second.Record.ID != first.Record.ID {
		t.Error("repeat run must report the original record")
	}
	if matches.ActiveCount() != 1 {
		t.Errorf("active records = %d, want 1", matches.ActiveCount())
	}
}

func TestRunConcurrentTriggersCreateOneRecord(t *testing.T) {
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)

	lostID, foundID := seedWalletPair(t, items)

	const runs = 12
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, runs)

	// Trigger from both sides at once.
	for i := 0; i < runs; i++ {
		trigger := lostID
		if i%2 == 1 {
			trigger = foundID
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res, err := orc.Run(context.Background(), id)
			if err != nil {
				t.Error(err)
				return
			}
			outcomes <- res.Outcome
		}(trigger)
	}
	wg.Wait()
	close(outcomes)

	matched := 0
	for outcome := range outcomes {
		switch outcome {
		case OutcomeMatched:
			matched++
		case OutcomeAlreadyMatched, OutcomeNoMatch:
		default:
			t.Errorf("unexpected outcome %s", outcome)
		}
	}
	if matched != 1 {
		t.Errorf("%d runs reported matched, want exactly 1", matched)
	}
	if matches.ActiveCount() != 1 {
		t.Errorf("active records = %d, want 1", matches.ActiveCount())
	}
}

func TestRunNoMatchLeavesEverythingPending(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)

	// Zero tag overlap and 50+ km apart: the pre-filter discards the
	// only candidate.
	lost := &item.Item{ID: "l1", Type: item.TypeLost, Status: item.StatusPending,
		Name: "wallet", Tags: []string{"wallet"}, ReportedBy: "u1"}
	lost.Lat, lost.Lng = coords(51.5074, -0.1278)
	found := &item.Item{ID: "f1", Type: item.TypeFound, Status: item.StatusPending,
		Name: "umbrella", Tags: []string{"umbrella"}, ReportedBy: "u2"}
	found.Lat, found.Lng = coords(51.95, -0.45)
	for _, it := range []*item.Item{lost, found} {
		if err := items.CreateItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	res, err := orc.Run(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNoMatch {
		t.Fatalf("outcome = %s, want no_match", res.Outcome)
	}
	if matches.ActiveCount() != 0 {
		t.Error("no_match run must not persist anything")
	}
	got, _ := items.GetItem(ctx, "l1")
	if got.Status != item.StatusPending {
		t.Error("no_match run must not touch item status")
	}
}

type invalidProvider struct{}

func (invalidProvider) Snapshot() config.MatchConfig {
	cfg := config.Default()
	cfg.Weights.Tags = 50
	return cfg
}

func TestRunFailsFastOnInvalidConfig(t *testing.T) {
	items := store.NewMemoryItemStore()
	orc := &Orchestrator{
		Items:    items,
		Matches:  store.NewMemoryMatchStore(),
		Provider: invalidProvider{},
		Log:      testLogger(),
	}

	if _, err := orc.Run(context.Background(), "whatever"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestRunMissingItem(t *testing.T) {
	orc := newTestOrchestrator(t, store.NewMemoryItemStore(), store.NewMemoryMatchStore(), nil)

	if _, err := orc.Run(context.Background(), "ghost"); err == nil {
		t.Fatal("expected not-found error for an unknown trigger")
	}
}

func TestRunNotifierFailureDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	notifier := &recordingNotifier{fail: true}
	orc := newTestOrchestrator(t, items, matches, notifier)

	lostID, _ := seedWalletPair(t, items)

	res, err := orc.Run(ctx, lostID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeMatched {
		t.Fatalf("outcome = %s, want matched despite notifier failure", res.Outcome)
	}
	orc.WaitNotifications()
	if matches.ActiveCount() != 1 {
		t.Error("notification failure must not roll back the match")
	}
}

func TestQueueDrainsOnClose(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)

	lostID, _ := seedWalletPair(t, items)

	q := NewQueue(orc, 2, 8, testLogger())
	if !q.Submit(lostID) {
		t.Fatal("submit rejected")
	}
	q.Close()

	if matches.ActiveCount() != 1 {
		t.Fatalf("active records = %d after drain, want 1", matches.ActiveCount())
	}
	got, _ := items.GetItem(ctx, lostID)
	if got.Status != item.StatusMatched {
		t.Error("queued trigger was not processed before Close returned")
	}

	if q.Submit(lostID) {
		t.Error("closed queue must reject submissions")
	}
}

// Racing Submit against Close must never panic on a closed channel;
// late submissions are simply rejected.
func TestQueueSubmitCloseRace(t *testing.T) {
	items := store.NewMemoryItemStore()
	matches := store.NewMemoryMatchStore()
	orc := newTestOrchestrator(t, items, matches, nil)
	lostID, _ := seedWalletPair(t, items)

	for i := 0; i < 50; i++ {
		q := NewQueue(orc, 2, 4, testLogger())

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					q.Submit(lostID)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Close()
		}()
		wg.Wait()

		// Close is idempotent.
		q.Close()
	}
}
