package translator

import "sort"

// Wildcard matches any tag or any key in a Blacklist.
const Wildcard = "*"

// Blacklist maps last path components to sets of JSON keys whose lines
// are never reported. Either side may be Wildcard, but not both at once:
// a "*" -> "*" entry would blacklist every line, so it never matches.
type Blacklist map[string]map[string]bool

// NewBlacklist builds a Blacklist from tag -> keys lists.
func NewBlacklist(entries map[string][]string) Blacklist {
	bl := make(Blacklist, len(entries))
	for tag, keys := range entries {
		set := bl[tag]
		if set == nil {
			set = make(map[string]bool, len(keys))
			bl[tag] = set
		}
		for _, k := range keys {
			set[k] = true
		}
	}
	return bl
}

// Matches reports whether a line found under key at tag is blacklisted.
func (b Blacklist) Matches(tag, key string) bool {
	if tag != Wildcard {
		if set := b[tag]; set[key] || set[Wildcard] {
			return true
		}
	}
	if key != Wildcard {
		if set := b[Wildcard]; set[key] {
			return true
		}
	}
	return false
}

// DropWildcardPair removes a "*" -> "*" entry, and reports whether there
// was one.
func (b Blacklist) DropWildcardPair() bool {
	set, ok := b[Wildcard]
	if !ok || !set[Wildcard] {
		return false
	}
	delete(set, Wildcard)
	if len(set) == 0 {
		delete(b, Wildcard)
	}
	return true
}

// Keys returns the blacklisted keys for tag, sorted.
func (b Blacklist) Keys(tag string) []string {
	keys := make([]string, 0, len(b[tag]))
	for k := range b[tag] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tags returns the tags with entries, sorted.
func (b Blacklist) Tags() []string {
	tags := make([]string, 0, len(b))
	for tag := range b {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (b Blacklist) clone() Blacklist {
	if b == nil {
		return nil
	}
	c := make(Blacklist, len(b))
	for tag, set := range b {
		keys := make(map[string]bool, len(set))
		for k := range set {
			keys[k] = true
		}
		c[tag] = keys
	}
	return c
}
