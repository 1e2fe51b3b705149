// Package store is the content-scoped persistent store. Each content owns one
// sqlite database file named WordsDB_<sanitized content>; a process-wide
// manager guarantees a single open handle per content.
package store

import (
	"strings"
	"unicode"
)

// Memory tier values for the known2 column. Stored as strings; the remote
// table and the legacy clients compare them as strings.
const (
	TierMemorizing = "0"
	TierShortTerm  = "1"
	TierLongTerm   = "2"
)

// Boolean-ish flag values for is_studied and status.
const (
	FlagOff = "0"
	FlagOn  = "1"
)

// Sync queue entry statuses.
const (
	SyncPending  = "pending"
	SyncInFlight = "in-flight"
	SyncFailed   = "failed"
	SyncDone     = "done"
)

// Well-known settings keys.
const (
	SettingInitialDataLoaded  = "initialDataLoaded"
	SettingLastSyncTime       = "lastSyncTime"
	SettingCurrentPhoneNumber = "currentPhoneNumber"
	SettingStudyCount         = "studyCount"
)

// Word is one vocabulary item with its learning state. Timestamps are
// millisecond UTC ISO-8601 strings, so lexicographic comparison matches
// chronological order.
type Word struct {
	ID                    string `db:"id" json:"id"`
	No                    int    `db:"no" json:"no"`
	Word                  string `db:"word" json:"word"`
	Meaning               string `db:"meaning" json:"meaning"`
	Pronunciation         string `db:"pronunciation" json:"pronunciation"`
	Vipup                 string `db:"vipup" json:"vipup"` // encrypted at rest
	Content               string `db:"content" json:"content"`
	Phone                 string `db:"phone" json:"phone"`
	IsStudied             string `db:"is_studied" json:"isStudied"`
	Known2                string `db:"known2" json:"known2"`
	Status                string `db:"status" json:"status"`
	Difficult             int    `db:"difficult" json:"difficult"`
	FirstTimeInMemorizing bool   `db:"first_time_in_memorizing" json:"firstTimeInMemorizing"`
	StudiedDate           string `db:"studied_date" json:"studiedDate"`
	CreatedAt             string `db:"created_at" json:"createdAt"`
	UpdatedAt             string `db:"updated_at" json:"updatedAt"`
}

// Normalize coerces dynamic-typed fields to their canonical representation:
// tier/flag columns to their string enums, counters to non-negative ints,
// text fields trimmed.
func (w *Word) Normalize() {
	w.ID = strings.TrimSpace(w.ID)
	w.Word = strings.TrimSpace(w.Word)
	w.Meaning = strings.TrimSpace(w.Meaning)
	w.Pronunciation = strings.TrimSpace(w.Pronunciation)
	w.Content = strings.TrimSpace(w.Content)
	w.Phone = strings.TrimSpace(w.Phone)

	w.IsStudied = normalizeFlag(w.IsStudied)
	w.Status = normalizeFlag(w.Status)
	w.Known2 = normalizeTier(w.Known2)
	if w.Difficult < 0 {
		w.Difficult = 0
	}
	if w.No < 0 {
		w.No = 0
	}
}

func normalizeFlag(v string) string {
	if strings.TrimSpace(v) == FlagOn {
		return FlagOn
	}
	return FlagOff
}

func normalizeTier(v string) string {
	switch strings.TrimSpace(v) {
	case TierShortTerm:
		return TierShortTerm
	case TierLongTerm:
		return TierLongTerm
	default:
		return TierMemorizing
	}
}

// SanitizeContent maps a raw contents parameter to a store namespace: ASCII
// letters are lowercased, digits, Hangul, underscore and hyphen pass through,
// everything else is dropped, the result is capped at 30 runes, and an empty
// result becomes "default". Idempotent.
func SanitizeContent(raw string) string {
	var b strings.Builder
	count := 0
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'A' && r <= 'Z':
			r = unicode.ToLower(r)
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		case isHangul(r):
		default:
			continue
		}
		if count == 30 {
			break
		}
		b.WriteRune(r)
		count++
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// isHangul covers syllable blocks and compatibility jamo.
func isHangul(r rune) bool {
	return (r >= 0xAC00 && r <= 0xD7A3) || (r >= 0x3131 && r <= 0x3163)
}

// DBNameFor returns the database name owning contentID.
func DBNameFor(contentID string) string {
	return "WordsDB_" + SanitizeContent(contentID)
}

// ContentOfDBName recovers the sanitized content id from a database name.
func ContentOfDBName(dbName string) string {
	return strings.TrimPrefix(dbName, "WordsDB_")
}
