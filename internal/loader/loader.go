// Package loader performs the first-run bulk download of a content's words
// from the remote table into the local store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/remote"
	"github.com/dhlim/wordbank/internal/store"
)

// Stage labels a progress report.
type Stage string

const (
	StageStart    Stage = "start"
	StageLoading  Stage = "loading"
	StageSaving   Stage = "saving"
	StageComplete Stage = "complete"
	StageError    Stage = "error"
)

// Progress is reported to the host presentation. Percent is monotone 0-100.
type Progress struct {
	Stage   Stage
	Percent int
	Message string
}

// ProgressFunc receives progress reports. May be nil.
type ProgressFunc func(Progress)

const (
	defaultPageSize  = 100
	defaultMaxPages  = 50
	defaultPageDelay = 200 * time.Millisecond
)

// Loader downloads and normalizes remote words.
type Loader struct {
	remote     remote.Client
	wordsTable string
	clock      clock.Clock
	cipher     *store.Cipher

	pageSize  int
	maxPages  int
	pageDelay time.Duration
}

// Option tweaks a Loader. Tests shrink the page size and drop the delay.
type Option func(*Loader)

// WithPageSize overrides the page size.
func WithPageSize(n int) Option {
	return func(l *Loader) { l.pageSize = n }
}

// WithMaxPages overrides the per-run page cap.
func WithMaxPages(n int) Option {
	return func(l *Loader) { l.maxPages = n }
}

// WithPageDelay overrides the courtesy pause between pages.
func WithPageDelay(d time.Duration) Option {
	return func(l *Loader) { l.pageDelay = d }
}

// New creates a Loader reading from wordsTable.
func New(client remote.Client, wordsTable string, clk clock.Clock, opts ...Option) *Loader {
	l := &Loader{
		remote:     client,
		wordsTable: wordsTable,
		clock:      clk,
		cipher:     store.NewCipher(),
		pageSize:   defaultPageSize,
		maxPages:   defaultMaxPages,
		pageDelay:  defaultPageDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run performs the first-run download into st for phone/contentID. Running
// against an already populated store is a no-op. An authentication failure
// aborts the run without marking the initial load complete; other per-page
// failures skip the page and continue.
func (l *Loader) Run(ctx context.Context, st *store.Store, phone, contentID string, onProgress ProgressFunc) error {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	count, err := st.CountWords(ctx, nil)
	if err != nil {
		report(Progress{Stage: StageError, Percent: 0, Message: err.Error()})
		return fmt.Errorf("st.CountWords > %w", err)
	}
	if count > 0 {
		slog.Debug("initial download skipped, store already populated", "content", contentID, "words", count)
		report(Progress{Stage: StageComplete, Percent: 100, Message: "already loaded"})
		return nil
	}

	report(Progress{Stage: StageStart, Percent: 0, Message: "starting download"})

	offset := ""
	total := 0
	for page := 0; page < l.maxPages; page++ {
		loadingPercent := boundedPercent(page, l.maxPages, 0)
		report(Progress{Stage: StageLoading, Percent: loadingPercent, Message: fmt.Sprintf("page %d", page+1)})

		result, err := l.remote.List(ctx, l.wordsTable, remote.ListOptions{
			SortField: "No",
			PageSize:  l.pageSize,
			Offset:    offset,
		})
		if errors.Is(err, remote.ErrAuthFailed) {
			report(Progress{Stage: StageError, Percent: loadingPercent, Message: "authentication failed"})
			return fmt.Errorf("remote.List > %w", err)
		}
		if err != nil {
			// Keep the cursor and burn one page slot; the cap bounds how long
			// a flapping page can stall the run.
			slog.Warn("skipping failed page", "page", page+1, "error", err)
			if logErr := st.AppendSyncLog(ctx, 0, fmt.Sprintf("download page %d failed: %v", page+1, err)); logErr != nil {
				return fmt.Errorf("st.AppendSyncLog > %w", logErr)
			}
			continue
		}

		words := make([]store.Word, 0, len(result.Records))
		for _, record := range result.Records {
			w, err := l.normalizeRecord(record, phone, contentID)
			if err != nil {
				slog.Warn("skipping malformed row", "record", record.ID, "error", err)
				if logErr := st.AppendSyncLog(ctx, 0, fmt.Sprintf("malformed row %s: %v", record.ID, err)); logErr != nil {
					return fmt.Errorf("st.AppendSyncLog > %w", logErr)
				}
				continue
			}
			words = append(words, w)
		}

		report(Progress{Stage: StageSaving, Percent: boundedPercent(page, l.maxPages, 1), Message: fmt.Sprintf("saving page %d", page+1)})
		if err := st.BulkUpsert(ctx, words); err != nil {
			return fmt.Errorf("st.BulkUpsert > %w", err)
		}
		total += len(words)

		if result.Offset == "" {
			break
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.pageDelay):
		}
	}

	if err := st.SaveSetting(ctx, store.SettingInitialDataLoaded, "true"); err != nil {
		return fmt.Errorf("st.SaveSetting(initialDataLoaded) > %w", err)
	}
	if err := st.SaveSetting(ctx, store.SettingLastSyncTime, l.clock.NowISO()); err != nil {
		return fmt.Errorf("st.SaveSetting(lastSyncTime) > %w", err)
	}

	slog.Info("initial download complete", "content", contentID, "words", total)
	report(Progress{Stage: StageComplete, Percent: 100, Message: fmt.Sprintf("%d words", total)})
	return nil
}

// ExtendFrom fetches one more page of words with No greater than afterNo.
// New mode uses it when the local frontier runs past the downloaded range.
// It returns how many words were added.
func (l *Loader) ExtendFrom(ctx context.Context, st *store.Store, phone, contentID string, afterNo int) (int, error) {
	result, err := l.remote.List(ctx, l.wordsTable, remote.ListOptions{
		FilterFormula: fmt.Sprintf("{No} > %d", afterNo),
		SortField:     "No",
		PageSize:      l.pageSize,
	})
	if err != nil {
		return 0, fmt.Errorf("remote.List > %w", err)
	}

	words := make([]store.Word, 0, len(result.Records))
	for _, record := range result.Records {
		w, err := l.normalizeRecord(record, phone, contentID)
		if err != nil {
			slog.Warn("skipping malformed row", "record", record.ID, "error", err)
			continue
		}
		words = append(words, w)
	}
	if err := st.BulkUpsert(ctx, words); err != nil {
		return 0, fmt.Errorf("st.BulkUpsert > %w", err)
	}
	return len(words), nil
}

// normalizeRecord maps a remote row to a Word with zeroed learning state.
// The vipup explanation is encrypted before it touches disk.
func (l *Loader) normalizeRecord(record remote.Record, phone, contentID string) (store.Word, error) {
	var w store.Word
	word := stringField(record.Fields, "word")
	if word == "" {
		return w, errors.New("missing word field")
	}
	no, ok := numberField(record.Fields, "No")
	if !ok || no <= 0 {
		return w, errors.New("missing or invalid No field")
	}

	w = store.Word{
		ID:                    record.ID,
		No:                    no,
		Word:                  word,
		Meaning:               stringField(record.Fields, "meaning"),
		Pronunciation:         stringField(record.Fields, "pronunciation"),
		Vipup:                 l.cipher.Encrypt(stringField(record.Fields, "vipup")),
		Content:               contentID,
		Phone:                 phone,
		IsStudied:             store.FlagOff,
		Known2:                store.TierMemorizing,
		Status:                store.FlagOff,
		Difficult:             0,
		FirstTimeInMemorizing: false,
	}
	if w.ID == "" {
		return w, errors.New("missing record id")
	}
	return w, nil
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func numberField(fields map[string]any, key string) (int, bool) {
	switch v := fields[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// boundedPercent maps page progress into the 0-100 band, keeping reports
// monotone: loading reports sit just below the matching saving report.
func boundedPercent(page, maxPages, phase int) int {
	if maxPages <= 0 {
		return 0
	}
	percent := (page*2 + phase) * 100 / (maxPages * 2)
	if percent > 99 {
		percent = 99
	}
	return percent
}
