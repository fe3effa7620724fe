// Package tldata converts raw translation data and submission blacklists
// into the structures the translator works with.
//
// Translation data is a JSON (or YAML) object of string values. Its keys
// are either decimal crc32 sums of the original lines, as served by the
// translation server:
//
//	{
//	    "124853853": "Naka",
//	    "2852128416": "Yamato"
//	}
//
// or the original lines themselves, which are hashed at load time:
//
//	{
//	    "那珂": "Naka"
//	}
//
// A blacklist is an object mapping last path components to the JSON keys
// whose lines should never be submitted. Either side may be "*":
//
//	{
//	    "*": ["api_id", "api_stype"],
//	    "getData": ["api_info"]
//	}
package tldata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/kclib/translator"
)

// KeyMode says how translation data keys are interpreted.
type KeyMode int

const (
	KeysChecksum KeyMode = iota // decimal crc32 sums
	KeysSource                  // original lines
)

func (m KeyMode) String() string {
	if m == KeysSource {
		return "source"
	}
	return "checksum"
}

// ParseKeyMode parses "checksum" or "source". The empty string means
// KeysChecksum.
func ParseKeyMode(s string) (KeyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "checksum", "crc32":
		return KeysChecksum, nil
	case "source", "text":
		return KeysSource, nil
	}
	return KeysChecksum, fmt.Errorf("unknown key mode %q (valid: checksum, source)", s)
}

// Format is the encoding of a data file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatOf picks the format from a file name or URL path; anything that is
// not .yaml/.yml is JSON.
func FormatOf(name string) Format {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// ---------------------------------------------------------------------------
// Translation tables
// ---------------------------------------------------------------------------

// ParseTable parses JSON translation data.
func ParseTable(data []byte, mode KeyMode) (translator.Table, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return buildTable(raw, mode)
}

// ParseTableYAML parses YAML translation data.
func ParseTableYAML(data []byte, mode KeyMode) (translator.Table, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return buildTable(raw, mode)
}

// DecodePairs parses a source -> translation map without hashing it.
func DecodePairs(data []byte, format Format) (map[string]string, error) {
	var raw map[string]string
	if format == FormatYAML {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if raw == nil {
		raw = make(map[string]string)
	}
	return raw, nil
}

// DecodeTable parses translation data in the given format.
func DecodeTable(data []byte, format Format, mode KeyMode) (translator.Table, error) {
	if format == FormatYAML {
		return ParseTableYAML(data, mode)
	}
	return ParseTable(data, mode)
}

// ParseTableFile reads and parses a translation data file.
func ParseTableFile(path string, mode KeyMode) (translator.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	table, err := DecodeTable(data, FormatOf(path), mode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

func buildTable(raw map[string]string, mode KeyMode) (translator.Table, error) {
	table := make(translator.Table, len(raw))
	for k, v := range raw {
		switch mode {
		case KeysSource:
			table[translator.Checksum(k)] = v
		default:
			sum, err := strconv.ParseUint(strings.TrimSpace(k), 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid checksum key %q: %w", k, err)
			}
			table[uint32(sum)] = v
		}
	}
	return table, nil
}

// EncodeTable renders source -> translation pairs as checksum-keyed JSON,
// the format the translation server serves.
func EncodeTable(pairs map[string]string) ([]byte, error) {
	out := make(map[string]string, len(pairs))
	for src, tl := range pairs {
		out[strconv.FormatUint(uint64(translator.Checksum(src)), 10)] = tl
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshaling table: %w", err)
	}
	return append(data, '\n'), nil
}

// ---------------------------------------------------------------------------
// Blacklists
// ---------------------------------------------------------------------------

// ParseBlacklist parses a JSON blacklist.
func ParseBlacklist(data []byte) (translator.Blacklist, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return translator.NewBlacklist(raw), nil
}

// ParseBlacklistYAML parses a YAML blacklist.
func ParseBlacklistYAML(data []byte) (translator.Blacklist, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return translator.NewBlacklist(raw), nil
}

// DecodeBlacklist parses a blacklist in the given format.
func DecodeBlacklist(data []byte, format Format) (translator.Blacklist, error) {
	if format == FormatYAML {
		return ParseBlacklistYAML(data)
	}
	return ParseBlacklist(data)
}
