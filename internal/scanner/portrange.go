package scanner

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a closed interval of TCP ports. Start may exceed End, in which case
// the range is empty.
type Range struct {
	Start uint16
	End   uint16
}

// Len returns the number of ports in the range.
func (r Range) Len() int {
	if r.Start > r.End {
		return 0
	}
	return int(r.End) - int(r.Start) + 1
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParsePortRange parses "start-end". A missing or unparsable start defaults to 1
// and a missing or unparsable end defaults to 65535, so it never fails.
// Inverted ranges are returned as given.
func ParsePortRange(s string) Range {
	r := Range{Start: 1, End: 65535}

	parts := strings.SplitN(s, "-", 2)
	if v, err := strconv.ParseUint(parts[0], 10, 16); err == nil {
		r.Start = uint16(v)
	}
	if len(parts) == 2 {
		if v, err := strconv.ParseUint(parts[1], 10, 16); err == nil {
			r.End = uint16(v)
		}
	}
	return r
}
