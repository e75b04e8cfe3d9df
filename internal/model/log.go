package model

import "fmt"

// Stream names one of the two captured output streams of an instance.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// ParseStream validates a stream name.
func ParseStream(s string) (Stream, error) {
	switch Stream(s) {
	case Stdout:
		return Stdout, nil
	case Stderr:
		return Stderr, nil
	}
	return "", fmt.Errorf("unknown stream %q", s)
}

// FileName is the name of the log file backing the stream.
func (s Stream) FileName() string {
	return string(s) + ".txt"
}

// RangeKind tells the three byte range forms apart.
type RangeKind int

const (
	// RangeBounded is [Start, End).
	RangeBounded RangeKind = iota
	// RangeFrom is [Start, EOF).
	RangeFrom
	// RangeSuffix is the last Length bytes.
	RangeSuffix
)

// ByteRange is a single requested span of a log file.
type ByteRange struct {
	Kind   RangeKind
	Start  int64
	End    int64
	Length int64
}

// Bounded builds a [start, end) range. end is exclusive.
func Bounded(start, end int64) *ByteRange {
	return &ByteRange{Kind: RangeBounded, Start: start, End: end}
}

// From builds a range running from start to the end of the file.
func From(start int64) *ByteRange {
	return &ByteRange{Kind: RangeFrom, Start: start}
}

// Suffix builds a range covering the last n bytes.
func Suffix(n int64) *ByteRange {
	return &ByteRange{Kind: RangeSuffix, Length: n}
}

func (r ByteRange) String() string {
	switch r.Kind {
	case RangeBounded:
		return fmt.Sprintf("[%d,%d)", r.Start, r.End)
	case RangeFrom:
		return fmt.Sprintf("[%d,)", r.Start)
	default:
		return fmt.Sprintf("last %d", r.Length)
	}
}

// Span is a half-open byte interval [Start, End).
type Span struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered.
func (s Span) Len() int64 {
	return s.End - s.Start
}

// LogChunk is the result of a log read. Range is nil for whole-file reads.
type LogChunk struct {
	Content string
	Range   *Span
	Size    int64
}
