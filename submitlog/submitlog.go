// Package submitlog implements .kclib.lock, a record of the untranslated
// lines that have already been submitted to the translation server. Lines
// are tracked by crc32 per location tag, so a restart does not submit the
// same lines again.
//
// The log is stored as YAML next to .kclib.yaml.
package submitlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/kclib/translator"
)

// FileName is the default submit log file name.
const FileName = ".kclib.lock"

// Version is the submit log format version.
const Version = 1

// Log represents the .kclib.lock file structure.
type Log struct {
	Version   int                          `yaml:"version"`
	Submitted map[string]map[string]string `yaml:"submitted"` // tag -> crc32 (hex) -> JSON key

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a submit log from the given directory.
// Returns an empty log if the file doesn't exist.
func Load(dir string) (*Log, error) {
	path := filepath.Join(dir, FileName)
	l := &Log{
		Version:   Version,
		Submitted: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	l.path = path

	if l.Submitted == nil {
		l.Submitted = make(map[string]map[string]string)
	}
	if l.Version > Version {
		return nil, fmt.Errorf("%s: unsupported version %d", path, l.Version)
	}

	return l, nil
}

// New returns an empty in-memory log. Save fails on it.
func New() *Log {
	return &Log{
		Version:   Version,
		Submitted: make(map[string]map[string]string),
	}
}

// Save writes the submit log to disk.
func (l *Log) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path == "" {
		return fmt.Errorf("submit log path not set")
	}

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshaling submit log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(l.path), err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", l.path, err)
	}

	return nil
}

// Path returns the submit log path.
func (l *Log) Path() string {
	return l.path
}

// ---------------------------------------------------------------------------
// Lines
// ---------------------------------------------------------------------------

// Sum formats the crc32 of line the way the log stores it.
func Sum(line string) string {
	return fmt.Sprintf("%08x", translator.Checksum(line))
}

// Has reports whether line was already submitted from tag.
func (l *Log) Has(tag, line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.Submitted[tag][Sum(line)]
	return ok
}

// Mark records line, found under key at tag, as submitted.
func (l *Log) Mark(tag, key, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Submitted[tag] == nil {
		l.Submitted[tag] = make(map[string]string)
	}
	l.Submitted[tag][Sum(line)] = key
}

// Clean drops entries of tag whose lines are now translated, so they are
// submitted again if the translation disappears.
func (l *Log) Clean(tag string, translated translator.Table) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.Submitted[tag]
	for sum := range existing {
		v, err := strconv.ParseUint(sum, 16, 32)
		if err != nil {
			delete(existing, sum)
			continue
		}
		if _, ok := translated[uint32(v)]; ok {
			delete(existing, sum)
		}
	}
	if len(existing) == 0 {
		delete(l.Submitted, tag)
	}
}

// RemoveTag forgets everything submitted from tag.
func (l *Log) RemoveTag(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Submitted, tag)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of tags and total lines in the log.
func (l *Log) Stats() (tags, lines int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tags = len(l.Submitted)
	for _, m := range l.Submitted {
		lines += len(m)
	}
	return
}

// Tags returns the sorted list of tags.
func (l *Log) Tags() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	tags := make([]string, 0, len(l.Submitted))
	for t := range l.Submitted {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Summary returns a human-readable summary string.
func (l *Log) Summary() string {
	tags, lines := l.Stats()
	if tags == 0 {
		return "empty"
	}

	var parts []string
	for _, t := range l.Tags() {
		l.mu.Lock()
		n := len(l.Submitted[t])
		l.mu.Unlock()
		name := t
		if name == "" {
			name = "(none)"
		}
		parts = append(parts, fmt.Sprintf("%s: %d lines", name, n))
	}
	return fmt.Sprintf("%d tags, %d lines (%s)", tags, lines, strings.Join(parts, ", "))
}
