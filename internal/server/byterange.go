package server

import (
	"math"
	"strconv"
	"strings"

	"yqhp/hookd/internal/hook"
	"yqhp/hookd/internal/model"
)

// ParseRange interprets an HTTP Range header.
//
//	""            no range
//	bytes=a-b     Bounded{a, b+1}
//	bytes=a-      From{a}
//	bytes=-n      Suffix{n}
//
// Units other than bytes are ignored, as are requests for several ranges.
// Malformed ranges yield an invalid range error.
func ParseRange(header string) (*model.ByteRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}

	unit, set, ok := strings.Cut(header, "=")
	if !ok {
		return nil, hook.NewInvalidRangeError("malformed Range header")
	}
	if !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return nil, nil
	}

	var parts []string
	for _, part := range strings.Split(set, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	switch len(parts) {
	case 0:
		return nil, hook.NewInvalidRangeError("empty range set")
	case 1:
	default:
		return nil, nil
	}

	first, last, ok := strings.Cut(parts[0], "-")
	if !ok {
		return nil, hook.NewInvalidRangeError("range without '-'")
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	switch {
	case first == "" && last == "":
		return nil, hook.NewInvalidRangeError("range without bounds")
	case first == "":
		n, err := parseOffset(last)
		if err != nil {
			return nil, err
		}
		return model.Suffix(n), nil
	case last == "":
		start, err := parseOffset(first)
		if err != nil {
			return nil, err
		}
		return model.From(start), nil
	default:
		start, err := parseOffset(first)
		if err != nil {
			return nil, err
		}
		end, err := parseOffset(last)
		if err != nil {
			return nil, err
		}
		if end == math.MaxInt64 {
			return model.From(start), nil
		}
		// HTTP ends are inclusive
		return model.Bounded(start, end+1), nil
	}
}

func parseOffset(s string) (int64, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, hook.NewInvalidRangeError("range offset is not a number")
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, hook.NewInvalidRangeError("range offset out of bounds")
	}
	return n, nil
}
