// Package poller implements the incremental activity poll loop shared by the
// github and trello monitors.
package poller

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cumodsquad/squadbot/internal/classify"
	"github.com/cumodsquad/squadbot/internal/watermark"
	"github.com/cumodsquad/squadbot/pkg/types"
)

// Collection is one independently fetched slice of a source, such as a
// single github organization or a single trello board.
type Collection struct {
	Name  string
	Fetch func(ctx context.Context) ([]types.RawActivityRecord, error)
}

// Announcer receives the events a poll cycle decided to announce.
type Announcer interface {
	Announce(ev types.ClassifiedEvent)
}

// Poller periodically fetches raw activity for one source, filters what has
// already been seen, and hands genuinely new events to the announcer.
// Pollers for different sources share only the watermark store.
type Poller struct {
	name        string
	collections []Collection
	store       *watermark.Store
	announcer   Announcer
	ignored     map[string]bool
	interval    time.Duration
	timeout     time.Duration
	logger      *zap.Logger
}

// New creates a poller. ignores lists actor names whose activity is never
// announced; matching is case-insensitive.
func New(
	name string,
	collections []Collection,
	store *watermark.Store,
	announcer Announcer,
	ignores []string,
	interval time.Duration,
	timeout time.Duration,
	logger *zap.Logger,
) *Poller {
	ignored := make(map[string]bool, len(ignores))
	for _, name := range ignores {
		ignored[strings.ToLower(name)] = true
	}

	return &Poller{
		name:        name,
		collections: collections,
		store:       store,
		announcer:   announcer,
		ignored:     ignored,
		interval:    interval,
		timeout:     timeout,
		logger:      logger,
	}
}

// Start runs the polling loop until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial poll
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping poller", zap.String("source", p.name))
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

type pendingKey struct {
	subject  string
	category types.Category
}

// poll performs a single poll cycle.
func (p *Poller) poll(ctx context.Context) {
	cyclesTotal.WithLabelValues(p.name).Inc()

	records := p.fetchAll(ctx)
	if len(records) == 0 {
		return
	}

	// Oldest first. Later records for the same subject must be able to
	// overwrite the announcement decision of earlier ones, and ties keep
	// fetch-return order.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.Before(records[j].UpdatedAt)
	})

	// Watermarks only advance after the whole cycle completes: a burst of
	// records in one cycle must not cause later records in the same burst
	// to be skipped by a premature advance. Scratch maxima are tracked here.
	scratch := make(map[string]time.Time)
	wasEpoch := make(map[string]bool)

	var events []types.ClassifiedEvent
	pending := make(map[pendingKey]int)

	for _, rec := range records {
		if p.ignored[strings.ToLower(rec.Actor)] {
			continue
		}

		key := classify.Key(rec)
		if key == "" {
			continue
		}
		if _, ok := wasEpoch[key]; !ok {
			wasEpoch[key] = p.store.IsEpoch(key)
		}
		if !rec.UpdatedAt.After(p.store.Get(key)) {
			continue
		}

		if max, ok := scratch[key]; !ok || rec.UpdatedAt.After(max) {
			scratch[key] = rec.UpdatedAt
		}

		ev, ok := classify.Classify(rec)
		if !ok {
			continue
		}
		pk := pendingKey{subject: ev.SubjectID, category: ev.Category}
		if idx, dup := pending[pk]; dup {
			events[idx] = ev
			continue
		}
		pending[pk] = len(events)
		events = append(events, ev)
	}

	if len(scratch) == 0 {
		return
	}

	for key, max := range scratch {
		if err := p.store.Advance(key, max); err != nil {
			p.logger.Error("failed to persist watermark",
				zap.String("source", p.name),
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	announced := 0
	for _, ev := range events {
		// First run for this watermark: catch up silently so a fresh
		// deployment does not flood the announce rooms.
		if wasEpoch[ev.WatermarkKey] {
			continue
		}
		p.announcer.Announce(ev)
		announced++
	}

	if announced > 0 {
		eventsAnnounced.WithLabelValues(p.name).Add(float64(announced))
		p.logger.Info("announced new activity",
			zap.String("source", p.name),
			zap.Int("events", announced),
		)
	}
}

// fetchAll fans out one fetch per collection and joins the results. A failing
// collection is logged and excluded; it never fails the cycle.
func (p *Poller) fetchAll(ctx context.Context) []types.RawActivityRecord {
	var (
		mu      sync.Mutex
		records []types.RawActivityRecord
	)

	g := new(errgroup.Group)
	for _, coll := range p.collections {
		coll := coll
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			recs, err := coll.Fetch(fetchCtx)
			if err != nil {
				fetchErrors.WithLabelValues(p.name, coll.Name).Inc()
				p.logger.Error("failed to fetch activity",
					zap.String("source", p.name),
					zap.String("collection", coll.Name),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return records
}
