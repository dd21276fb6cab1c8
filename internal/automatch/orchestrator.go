// Package automatch runs the auto-match pipeline: fetch the trigger
// item and its candidate pool, score the pool, and persist the winning
// match exactly once per item pair regardless of how many runs race.
package automatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/foundly/foundly/internal/config"
	"github.com/foundly/foundly/internal/embeddings"
	"github.com/foundly/foundly/internal/item"
	"github.com/foundly/foundly/internal/match"
	"github.com/foundly/foundly/internal/normalize"
	"github.com/foundly/foundly/internal/notify"
	"github.com/foundly/foundly/internal/store"
)

// Outcome is the terminal result of one orchestrator run.
type Outcome string

const (
	// OutcomeNoMatch means no candidate cleared the threshold.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeMatched means this run created the match record.
	OutcomeMatched Outcome = "matched"
	// OutcomeAlreadyMatched means an active record for the pair (or the
	// trigger item) already existed; the run changed nothing.
	OutcomeAlreadyMatched Outcome = "already_matched"
)

// Result carries the outcome and, for matched/already_matched, the
// record that holds the pair.
type Result struct {
	Outcome Outcome
	Record  *store.MatchRecord
}

const (
	defaultScoreConcurrency = 8
	pairLockTTL             = 10 * time.Second
	notifyTimeout           = 10 * time.Second
)

// Orchestrator coordinates one auto-match run end to end. All
// dependencies are injected; Locker and Parser may be nil.
type Orchestrator struct {
	Items    store.ItemStore
	Matches  store.MatchStore
	Provider config.Provider
	Embedder embeddings.Embedder
	Parser   normalize.LocationParser
	Locker   PairLocker
	Notifier notify.Notifier
	Log      *logrus.Logger

	// ScoreConcurrency bounds the candidate scoring fan-out. Zero means
	// the default.
	ScoreConcurrency int

	// notifyWG lets tests wait for fire-and-forget deliveries.
	notifyWG sync.WaitGroup
}

// Run executes the pipeline for the given trigger item. Duplicate and
// concurrent runs for the same item are safe: at most one non-rejected
// record per item pair can ever exist, and repeat runs report
// already_matched instead of erroring.
func (o *Orchestrator) Run(ctx context.Context, itemID string) (Result, error) {
	log := o.Log.WithFields(logrus.Fields{"module": "automatch", "item": itemID})

	engine, err := match.NewEngine(o.Provider.Snapshot(), o.Embedder, o.Parser, o.Log)
	if err != nil {
		// ConfigError: fatal, do not retry until the config is fixed.
		return Result{}, err
	}

	trigger, err := o.Items.GetItem(ctx, itemID)
	if err != nil {
		return Result{}, err
	}

	// A trigger that already carries an active match is a finished run
	// replayed; report the existing record.
	if trigger.Status != item.StatusPending {
		if rec := o.activeRecordFor(ctx, trigger.ID); rec != nil {
			log.WithField("match", rec.ID).Info("item already matched, skipping")
			return Result{Outcome: OutcomeAlreadyMatched, Record: rec}, nil
		}
		log.WithField("status", trigger.Status).Info("item not open for matching")
		return Result{Outcome: OutcomeNoMatch}, nil
	}

	pool, err := o.Items.FetchOpenCandidates(ctx, trigger.Type.Opposite(), trigger.ID)
	if err != nil {
		return Result{}, err
	}
	log.WithField("candidates", len(pool)).Debug("scoring candidate pool")

	admitted := o.scorePool(ctx, engine, trigger, pool)
	if len(admitted) == 0 {
		log.Info("no candidate cleared the threshold")
		return Result{Outcome: OutcomeNoMatch}, nil
	}
	best := admitted[0]

	// The decide-persist step is the only write; a cancellation before
	// it leaves no trace of the run.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return o.persist(ctx, log, trigger, best)
}

// scorePool fans the pre-filter and scorers out over the pool with
// bounded concurrency and returns admitted candidates, ranked. Per-pair
// failures are already absorbed inside the engine, so the group only
// stops on context cancellation.
func (o *Orchestrator) scorePool(ctx context.Context, engine *match.Engine, trigger *item.Item, pool []*item.Item) []match.Candidate {
	limit := o.ScoreConcurrency
	if limit <= 0 {
		limit = defaultScoreConcurrency
	}

	admitted := make([]*match.Candidate, len(pool))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, cand := range pool {
		i, cand := i, cand
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !engine.Prefilter(trigger, cand) {
				return nil
			}
			if scored, ok := engine.ScorePair(trigger, cand); ok {
				admitted[i] = &scored
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []match.Candidate
	for _, c := range admitted {
		if c != nil {
			out = append(out, *c)
		}
	}
	match.Rank(out)
	return out
}

// persist writes the winning match with conditional-create semantics
// and flips both items to matched. Every step is idempotent, so a retry
// after any partial failure converges on the same state.
func (o *Orchestrator) persist(ctx context.Context, log *logrus.Entry, trigger *item.Item, best match.Candidate) (Result, error) {
	lost, found := orientPair(trigger, best.Item)

	if o.Locker != nil {
		release, err := o.Locker.Obtain(ctx, pairLockKey(lost.ID, found.ID), pairLockTTL)
		switch err {
		case nil:
			defer release()
		case ErrLockHeld:
			// Another run owns the pair right now; the conditional
			// create below still decides correctly.
			log.Debug("pair lock held elsewhere, proceeding on store atomicity")
		default:
			log.WithError(err).Warn("pair lock unavailable, proceeding on store atomicity")
		}
	}

	if existing, err := o.Matches.FindActive(ctx, lost.ID, found.ID); err != nil {
		return Result{}, err
	} else if existing != nil {
		log.WithField("match", existing.ID).Info("pair already matched")
		return Result{Outcome: OutcomeAlreadyMatched, Record: existing}, nil
	}

	rec := &store.MatchRecord{
		LostItemID:  lost.ID,
		FoundItemID: found.ID,
		Score:       best.Breakdown.Composite,
		Breakdown:   best.Breakdown,
		Status:      store.MatchPending,
	}
	created, winner, err := o.Matches.CreateIfAbsent(ctx, rec)
	if err != nil {
		return Result{}, err
	}
	if !created {
		log.WithField("match", winner.ID).Info("lost the pair race, reusing winner")
		return Result{Outcome: OutcomeAlreadyMatched, Record: winner}, nil
	}

	for _, id := range []string{lost.ID, found.ID} {
		if err := o.Items.SetStatus(ctx, id, item.StatusMatched); err != nil {
			// The record exists, so a retry will land in
			// already_matched and may re-run this idempotent flip.
			return Result{}, err
		}
	}

	log.WithFields(logrus.Fields{
		"match": winner.ID,
		"score": winner.Score,
		"pair":  pairLockKey(lost.ID, found.ID),
	}).Info("match created")

	o.notifyAsync(winner, lost, found)
	return Result{Outcome: OutcomeMatched, Record: winner}, nil
}

// notifyAsync delivers the downstream effects without blocking or
// failing the run.
func (o *Orchestrator) notifyAsync(rec *store.MatchRecord, lost, found *item.Item) {
	if o.Notifier == nil {
		return
	}
	o.notifyWG.Add(1)
	go func() {
		defer o.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := o.Notifier.MatchFound(ctx, rec, lost, found); err != nil {
			o.Log.WithError(err).WithField("match", rec.ID).Warn("match notification failed")
		}
		if err := o.Notifier.AwardCredit(ctx, found.ReportedBy, found.ID); err != nil {
			o.Log.WithError(err).WithField("match", rec.ID).Warn("finder credit failed")
		}
	}()
}

// WaitNotifications blocks until in-flight downstream deliveries finish.
func (o *Orchestrator) WaitNotifications() {
	o.notifyWG.Wait()
}

func (o *Orchestrator) activeRecordFor(ctx context.Context, itemID string) *store.MatchRecord {
	records, err := o.Matches.ListForItem(ctx, itemID)
	if err != nil {
		return nil
	}
	for _, rec := range records {
		if rec.Status != store.MatchRejected {
			return rec
		}
	}
	return nil
}

// orientPair maps a trigger/candidate pair onto (lost, found) so the
// record is stored the same way regardless of which side triggered.
func orientPair(trigger, candidate *item.Item) (lost, found *item.Item) {
	if trigger.Type == item.TypeLost {
		return trigger, candidate
	}
	return candidate, trigger
}
