// Package config implements .kclib.yaml configuration file support.
//
// The file lives in the project root and names where translation data,
// the submission blacklist and untranslated-line reports go. Command-line
// flags override it and a few environment variables override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/kclib/source"
	"github.com/minios-linux/kclib/tldata"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// FileName is the default config file name.
const FileName = ".kclib.yaml"

// LangPlaceholder in Translations is replaced by the configured language.
const LangPlaceholder = "{lang}"

// Environment overrides.
const (
	EnvProxy     = "KCLIB_PROXY"
	EnvReportURL = "KCLIB_REPORT_URL"
)

// File is the .kclib.yaml structure.
type File struct {
	// Language is a BCP 47 tag (default "en").
	Language string `yaml:"language,omitempty"`
	// Translations is the URL or path of the translation data. It may
	// contain {lang}.
	Translations string `yaml:"translations,omitempty"`
	// Keys is "checksum" (default) or "source".
	Keys string `yaml:"keys,omitempty"`
	// Blacklist is the URL or path of the submission blacklist.
	Blacklist string `yaml:"blacklist,omitempty"`
	// Report is the endpoint untranslated lines are POSTed to. Empty means
	// they are written to stderr.
	Report string `yaml:"report,omitempty"`
	// SubmitLog is the directory holding .kclib.lock (default ".").
	SubmitLog string `yaml:"submit_log,omitempty"`
	// Proxy is an HTTP proxy URL for fetching and reporting.
	Proxy string `yaml:"proxy,omitempty"`
	// Timeout is a Go duration (default "30s").
	Timeout string `yaml:"timeout,omitempty"`
	// MaxRetries for HTTP requests (default 3, negative disables retries).
	MaxRetries int `yaml:"max_retries,omitempty"`

	// Dir is the directory the file was loaded from; relative paths are
	// resolved against it.
	Dir string `yaml:"-"`
}

// Default returns the configuration used when no .kclib.yaml exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.Language == "" {
		f.Language = "en"
	}
	if f.Keys == "" {
		f.Keys = tldata.KeysChecksum.String()
	}
	if f.SubmitLog == "" {
		f.SubmitLog = "."
	}
	if f.Timeout == "" {
		f.Timeout = "30s"
	}
	if f.MaxRetries == 0 {
		f.MaxRetries = 3
	}
}

// LoadFile loads and validates .kclib.yaml from the given directory.
// Returns nil if no .kclib.yaml exists.
func LoadFile(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.Dir = rootDir
	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Load returns the config in rootDir, or Default() rooted at rootDir when
// there is none. Environment overrides are applied in both cases.
func Load(rootDir string) (*File, error) {
	f, err := LoadFile(rootDir)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = Default()
		f.Dir = rootDir
	}
	f.ApplyEnv()
	return f, nil
}

// ---------------------------------------------------------------------------
// Validation and accessors
// ---------------------------------------------------------------------------

// Validate checks field values.
func (f *File) Validate() error {
	if _, err := language.Parse(f.Language); err != nil {
		return fmt.Errorf("invalid language %q: %w", f.Language, err)
	}
	if _, err := tldata.ParseKeyMode(f.Keys); err != nil {
		return err
	}
	if _, err := time.ParseDuration(f.Timeout); err != nil {
		return fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
	}
	if strings.Contains(f.Blacklist, LangPlaceholder) {
		return fmt.Errorf("blacklist must not contain %s", LangPlaceholder)
	}
	return nil
}

// ApplyEnv overrides fields from KCLIB_PROXY and KCLIB_REPORT_URL.
func (f *File) ApplyEnv() {
	if v := os.Getenv(EnvProxy); v != "" {
		f.Proxy = v
	}
	if v := os.Getenv(EnvReportURL); v != "" {
		f.Report = v
	}
}

// LanguageTag returns the canonical form of Language, or "en" when it does
// not parse.
func (f *File) LanguageTag() string {
	tag, err := language.Parse(f.Language)
	if err != nil {
		return "en"
	}
	return tag.String()
}

// KeyMode returns the parsed Keys field.
func (f *File) KeyMode() tldata.KeyMode {
	m, _ := tldata.ParseKeyMode(f.Keys)
	return m
}

// TimeoutDuration returns the parsed Timeout field, or 30s when invalid.
func (f *File) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// TranslationsLocation returns Translations with {lang} expanded and
// relative paths resolved.
func (f *File) TranslationsLocation() string {
	return f.resolve(strings.ReplaceAll(f.Translations, LangPlaceholder, f.LanguageTag()))
}

// BlacklistLocation returns Blacklist with relative paths resolved.
func (f *File) BlacklistLocation() string {
	return f.resolve(f.Blacklist)
}

// SubmitLogDir returns the resolved directory of the submit log.
func (f *File) SubmitLogDir() string {
	return f.resolve(f.SubmitLog)
}

func (f *File) resolve(loc string) string {
	if loc == "" || source.IsRemote(loc) || strings.HasPrefix(loc, "file://") || filepath.IsAbs(loc) {
		return loc
	}
	return filepath.Join(f.Dir, loc)
}
