// Package progress derives per-content study counters from the local store.
package progress

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/store"
)

// Counters is the derived per-content view the presentation renders.
type Counters struct {
	Total      int `json:"total"`
	Studied    int `json:"studied"`
	Remaining  int `json:"remaining"`
	Percent    int `json:"percent"`
	Memorizing int `json:"memorizing"`
	ShortTerm  int `json:"shortTerm"`
	LongTerm   int `json:"longTerm"`
	// LongTermDue counts long-term words not yet confirmed today
	// (studied_date strictly before civil midnight).
	LongTermDue     int `json:"longTermDue"`
	QMemoryEligible int `json:"qMemoryEligible"`
	Difficult       int `json:"difficult"`
}

const cacheTTL = 30 * time.Second

type cacheEntry struct {
	counters Counters
	storedAt time.Time
}

// Aggregator computes Counters with a short-TTL cache per content. It
// subscribes to the store's word-mutation notification, which is the single
// invalidation path.
type Aggregator struct {
	mgr   *store.Manager
	clock clock.Clock

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates an Aggregator bound to mgr and subscribes it for invalidation.
func New(mgr *store.Manager, clk clock.Clock) *Aggregator {
	a := &Aggregator{
		mgr:   mgr,
		clock: clk,
		cache: map[string]cacheEntry{},
	}
	mgr.OnWordMutated(a.Invalidate)
	return a
}

// Counters returns the counters for contentID, served from cache when fresh.
func (a *Aggregator) Counters(ctx context.Context, contentID string) (Counters, error) {
	contentID = store.SanitizeContent(contentID)

	a.mu.Lock()
	if entry, ok := a.cache[contentID]; ok && a.clock.Now().Sub(entry.storedAt) < cacheTTL {
		a.mu.Unlock()
		return entry.counters, nil
	}
	a.mu.Unlock()

	counters, err := a.compute(ctx, contentID)
	if err != nil {
		return Counters{}, err
	}

	a.mu.Lock()
	a.cache[contentID] = cacheEntry{counters: counters, storedAt: a.clock.Now()}
	a.mu.Unlock()
	return counters, nil
}

// Invalidate drops the cached counters for contentID.
func (a *Aggregator) Invalidate(contentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, store.SanitizeContent(contentID))
}

// InvalidateAll drops every cached entry. Called on content switch.
func (a *Aggregator) InvalidateAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = map[string]cacheEntry{}
}

func (a *Aggregator) compute(ctx context.Context, contentID string) (Counters, error) {
	st, err := a.mgr.Open(ctx, store.DBNameFor(contentID))
	if err != nil {
		return Counters{}, fmt.Errorf("mgr.Open > %w", err)
	}

	var counters Counters
	counts := []struct {
		dst    *int
		filter store.Filter
	}{
		{&counters.Total, nil},
		{&counters.Studied, store.Filter{"is_studied": store.FlagOn}},
		{&counters.Memorizing, store.Filter{"is_studied": store.FlagOn, "known2": store.TierMemorizing}},
		{&counters.ShortTerm, store.Filter{"is_studied": store.FlagOn, "known2": store.TierShortTerm}},
		{&counters.LongTerm, store.Filter{"is_studied": store.FlagOn, "known2": store.TierLongTerm}},
		{&counters.QMemoryEligible, store.Filter{
			"is_studied": store.FlagOn,
			"known2":     store.TierMemorizing,
			"status":     store.FlagOff,
		}},
		{&counters.Difficult, store.Filter{
			"is_studied": store.FlagOn,
			"difficult":  store.Range{GT: store.Int(2)},
		}},
	}
	for _, c := range counts {
		n, err := st.CountWords(ctx, c.filter)
		if err != nil {
			return Counters{}, fmt.Errorf("st.CountWords > %w", err)
		}
		*c.dst = n
	}

	// studied_date is ISO-8601, so the strict civil-midnight comparison is a
	// string comparison; sqlite cannot express it through the filter map, so
	// count due words in Go.
	todayStart := a.clock.TodayStartISO()
	longTermWords, err := st.GetWords(ctx, store.Filter{
		"is_studied": store.FlagOn,
		"known2":     store.TierLongTerm,
	}, 0, nil)
	if err != nil {
		return Counters{}, fmt.Errorf("st.GetWords(long-term) > %w", err)
	}
	for _, w := range longTermWords {
		if w.StudiedDate < todayStart {
			counters.LongTermDue++
		}
	}

	counters.Remaining = counters.Total - counters.Studied
	if counters.Total > 0 {
		counters.Percent = int(math.Round(float64(counters.Studied) / float64(counters.Total) * 100))
	}
	return counters, nil
}
