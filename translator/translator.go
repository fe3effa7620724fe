// Package translator resolves lines against a crc32-indexed translation
// table and decides which untranslated lines get reported upstream.
//
// Translation data and the submission blacklist are supplied from outside
// (see the source package); the Translator never fetches anything itself.
// Lines seen before the blacklist is available are held in a backlog and
// reported, in arrival order, once it is.
package translator

import (
	"hash/crc32"
	"sync"
)

// LoadStatus is the loading state of a piece of external data.
type LoadStatus int

const (
	LoadStatusNotLoaded LoadStatus = iota // no attempt to load has been made
	LoadStatusLoading                     // load in progress
	LoadStatusLoaded                      // data is complete and usable
	LoadStatusError                       // load failed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStatusNotLoaded:
		return "not loaded"
	case LoadStatusLoading:
		return "loading"
	case LoadStatusLoaded:
		return "loaded"
	case LoadStatusError:
		return "error"
	}
	return "unknown"
}

// Table maps crc32 sums of untranslated lines to their translations.
type Table map[uint32]string

// ReportFunc receives untranslated, non-blacklisted lines.
type ReportFunc func(line, tag, key string)

// Checksum returns the crc32 (IEEE) sum of the raw bytes of line.
func Checksum(line string) uint32 {
	return crc32.ChecksumIEEE([]byte(line))
}

// observation is a backlogged untranslated line.
type observation struct {
	line, tag, key string
}

// Translator holds the current translation data, blacklist and backlog.
//
// All methods are safe for concurrent use. The report hook is called with
// the Translator's lock held, so it must not call back into it.
type Translator struct {
	mu sync.Mutex

	loadStatus   LoadStatus
	translations Table

	blacklistLoadStatus LoadStatus
	blacklist           Blacklist

	report  ReportFunc
	backlog []observation
}

// New returns a Translator with nothing loaded. report may be nil.
func New(report ReportFunc) *Translator {
	return &Translator{
		translations: make(Table),
		blacklist:    make(Blacklist),
		report:       report,
	}
}

// Translate returns the translation of line, or line itself if there is
// none. tag is the last path component of the endpoint the line was found
// at, key the JSON key it was found under; both may be empty.
func (t *Translator) Translate(line, tag, key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loadStatus == LoadStatusLoaded {
		if tl, ok := t.translations[Checksum(line)]; ok {
			return tl
		}
	}

	t.handleUntranslated(observation{line: line, tag: tag, key: key})
	return line
}

// handleUntranslated reports, drops or backlogs an untranslated line.
// Must be called with t.mu held.
func (t *Translator) handleUntranslated(o observation) {
	if t.blacklistLoadStatus != LoadStatusLoaded {
		t.backlog = append(t.backlog, o)
		return
	}

	t.drain()
	t.decide(o)
}

// drain decides every backlogged line in arrival order. Must be called
// with t.mu held and the blacklist loaded.
func (t *Translator) drain() int {
	n := len(t.backlog)
	for len(t.backlog) > 0 {
		o := t.backlog[0]
		t.backlog[0] = observation{}
		t.backlog = t.backlog[1:]
		t.decide(o)
	}
	t.backlog = nil
	return n
}

func (t *Translator) decide(o observation) {
	if t.blacklist.Matches(o.tag, o.key) {
		return
	}
	if t.report != nil {
		t.report(o.line, o.tag, o.key)
	}
}

// Drain decides all backlogged lines if the blacklist is loaded, and
// returns how many were removed from the backlog. It does nothing while
// the blacklist is unavailable.
func (t *Translator) Drain() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.blacklistLoadStatus != LoadStatusLoaded {
		return 0
	}
	return t.drain()
}

// ---------------------------------------------------------------------------
// Data feed
// ---------------------------------------------------------------------------

// SetTranslations replaces the translation table and its load status.
// A nil table is treated as empty.
func (t *Translator) SetTranslations(table Table, status LoadStatus) {
	if table == nil {
		table = make(Table)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.translations = table
	t.loadStatus = status
}

// SetLoadStatus changes the translation load status, keeping the table.
func (t *Translator) SetLoadStatus(status LoadStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loadStatus = status
}

// SetBlacklist replaces the blacklist and its load status.
// A nil blacklist is treated as empty.
func (t *Translator) SetBlacklist(bl Blacklist, status LoadStatus) {
	if bl == nil {
		bl = make(Blacklist)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.blacklist = bl
	t.blacklistLoadStatus = status
}

// SetBlacklistLoadStatus changes the blacklist load status, keeping the data.
func (t *Translator) SetBlacklistLoadStatus(status LoadStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blacklistLoadStatus = status
}

// SetReportFunc replaces the report hook.
func (t *Translator) SetReportFunc(report ReportFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report = report
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// LoadStatus returns the translation load status.
func (t *Translator) LoadStatus() LoadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadStatus
}

// BlacklistLoadStatus returns the blacklist load status.
func (t *Translator) BlacklistLoadStatus() LoadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blacklistLoadStatus
}

// Blacklist returns a copy of the installed blacklist.
func (t *Translator) Blacklist() Blacklist {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blacklist.clone()
}

// Backlog returns the number of lines waiting for the blacklist.
func (t *Translator) Backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.backlog)
}

// Stats returns the number of translations, blacklisted tags and
// backlogged lines.
func (t *Translator) Stats() (translations, blacklisted, backlog int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.translations), len(t.blacklist), len(t.backlog)
}
