package driver

import (
	"fmt"
	"strings"
)

// LinkMode is a wM-Bus radio mode.
type LinkMode int

const (
	Any LinkMode = iota
	C1
	S1
	T1
)

var linkModeNames = [...]string{Any: "any", C1: "c1", S1: "s1", T1: "t1"}

func (lm LinkMode) String() string {
	if lm < 0 || int(lm) >= len(linkModeNames) {
		return fmt.Sprintf("linkmode(%d)", int(lm))
	}
	return linkModeNames[lm]
}

// LinkModeSet is a bitmask of link modes.
type LinkModeSet uint32

// AllLinkModes has every concrete mode set.
const AllLinkModes = LinkModeSet(1<<C1 | 1<<S1 | 1<<T1)

// NewLinkModeSet returns a set holding modes.
func NewLinkModeSet(modes ...LinkMode) LinkModeSet {
	var s LinkModeSet
	for _, m := range modes {
		s = s.Add(m)
	}
	return s
}

// Add returns s with lm added.
func (s LinkModeSet) Add(lm LinkMode) LinkModeSet { return s | 1<<lm }

// Has reports whether lm is in s.
func (s LinkModeSet) Has(lm LinkMode) bool { return s&(1<<lm) != 0 }

// Supports reports whether every mode in other is also in s. A set with Any
// supports everything.
func (s LinkModeSet) Supports(other LinkModeSet) bool {
	if s.Has(Any) {
		return true
	}
	return other&^s == 0
}

// Count returns the number of modes in the set.
func (s LinkModeSet) Count() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// String renders the set the way ParseLinkModes reads it, e.g. "c1,t1".
func (s LinkModeSet) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for lm := Any; int(lm) < len(linkModeNames); lm++ {
		if s.Has(lm) {
			parts = append(parts, lm.String())
		}
	}
	return strings.Join(parts, ",")
}

// ParseLinkModes reads a comma separated list such as "c1,t1".
func ParseLinkModes(s string) (LinkModeSet, error) {
	var set LinkModeSet
	for _, field := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(field))
		if name == "" {
			continue
		}
		found := false
		for lm, n := range linkModeNames {
			if n == name {
				set = set.Add(LinkMode(lm))
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown link mode %q", ErrLinkModeUnsupported, field)
		}
	}
	return set, nil
}
