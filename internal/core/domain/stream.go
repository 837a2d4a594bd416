package domain

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// StreamID identifies a stream entry. IDs order by Ms, then Seq.
type StreamID struct {
	Ms  uint64
	Seq uint64
}

// MinStreamID and MaxStreamID bound every valid ID.
var (
	MinStreamID = StreamID{}
	MaxStreamID = StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}
)

// String renders the ID as "<ms>-<seq>".
func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Compare returns -1, 0 or 1.
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// Less reports whether id sorts before other.
func (id StreamID) Less(other StreamID) bool {
	return id.Compare(other) < 0
}

// IsZero reports whether id is 0-0.
func (id StreamID) IsZero() bool {
	return id.Ms == 0 && id.Seq == 0
}

// Next returns the smallest ID greater than id.
func (id StreamID) Next() (StreamID, bool) {
	if id.Seq < math.MaxUint64 {
		return StreamID{Ms: id.Ms, Seq: id.Seq + 1}, true
	}
	if id.Ms < math.MaxUint64 {
		return StreamID{Ms: id.Ms + 1}, true
	}
	return id, false
}

// ParseStreamID parses a complete "<ms>-<seq>" ID.
func ParseStreamID(s string) (StreamID, error) {
	msPart, seqPart, ok := strings.Cut(s, "-")
	if !ok {
		return StreamID{}, ErrStreamIDInvalid
	}
	ms, err := parseIDPart(msPart)
	if err != nil {
		return StreamID{}, err
	}
	seq, err := parseIDPart(seqPart)
	if err != nil {
		return StreamID{}, err
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// ParseRangeBound parses an XRANGE bound. "-" and "+" are the extremes and a
// bare millisecond value expands to the first (start) or last (end) sequence.
func ParseRangeBound(s string, isEnd bool) (StreamID, error) {
	switch s {
	case "-":
		return MinStreamID, nil
	case "+":
		return MaxStreamID, nil
	}
	if !strings.Contains(s, "-") {
		ms, err := parseIDPart(s)
		if err != nil {
			return StreamID{}, err
		}
		if isEnd {
			return StreamID{Ms: ms, Seq: math.MaxUint64}, nil
		}
		return StreamID{Ms: ms}, nil
	}
	return ParseStreamID(s)
}

func parseIDPart(s string) (uint64, error) {
	if s == "" {
		return 0, ErrStreamIDInvalid
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrStreamIDInvalid
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrStreamIDInvalid
	}
	return v, nil
}

// RequestedID is the ID argument of XADD before resolution.
type RequestedID struct {
	AutoMs  bool // "*"
	AutoSeq bool // "<ms>-*" or "*"
	ID      StreamID
}

// ParseRequestedID parses "*", "<ms>-*" or "<ms>-<seq>".
func ParseRequestedID(s string) (RequestedID, error) {
	if s == "*" {
		return RequestedID{AutoMs: true, AutoSeq: true}, nil
	}
	msPart, seqPart, ok := strings.Cut(s, "-")
	if !ok {
		return RequestedID{}, ErrStreamIDInvalid
	}
	ms, err := parseIDPart(msPart)
	if err != nil {
		return RequestedID{}, err
	}
	if seqPart == "*" {
		return RequestedID{AutoSeq: true, ID: StreamID{Ms: ms}}, nil
	}
	seq, err := parseIDPart(seqPart)
	if err != nil {
		return RequestedID{}, err
	}
	return RequestedID{ID: StreamID{Ms: ms, Seq: seq}}, nil
}

// Resolve turns the requested ID into a concrete one given the stream's last
// ID (hasLast false for an empty stream) and the current time in ms.
func (r RequestedID) Resolve(last StreamID, hasLast bool, nowMs uint64) (StreamID, error) {
	if !r.AutoSeq && r.ID.IsZero() {
		return StreamID{}, ErrStreamIDZero
	}

	if r.AutoMs {
		// A clock that moved backwards keeps the stream monotonic.
		if hasLast && nowMs <= last.Ms {
			next, ok := last.Next()
			if !ok {
				return StreamID{}, ErrStreamIDTooSmall
			}
			return next, nil
		}
		if nowMs == 0 {
			return StreamID{Seq: 1}, nil
		}
		return StreamID{Ms: nowMs}, nil
	}

	ms := r.ID.Ms
	if !hasLast {
		if r.AutoSeq {
			if ms == 0 {
				return StreamID{Ms: 0, Seq: 1}, nil
			}
			return StreamID{Ms: ms}, nil
		}
		return r.ID, nil
	}

	switch {
	case ms < last.Ms:
		return StreamID{}, ErrStreamIDTooSmall
	case ms == last.Ms:
		if r.AutoSeq {
			if last.Seq == math.MaxUint64 {
				return StreamID{}, ErrStreamIDTooSmall
			}
			return StreamID{Ms: ms, Seq: last.Seq + 1}, nil
		}
		if r.ID.Seq <= last.Seq {
			return StreamID{}, ErrStreamIDTooSmall
		}
		return r.ID, nil
	default:
		if r.AutoSeq {
			return StreamID{Ms: ms}, nil
		}
		return r.ID, nil
	}
}

// StreamEntry is one record of a stream. Fields holds field/value pairs
// flattened in insertion order.
type StreamEntry struct {
	ID     StreamID
	Fields []string
}

// Stream is an append-only sequence of entries with strictly increasing IDs.
type Stream struct {
	entries []StreamEntry
	lastID  StreamID
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Len returns the number of entries.
func (s *Stream) Len() int {
	return len(s.entries)
}

// LastID returns the ID of the newest entry, or false when the stream has
// never held an entry.
func (s *Stream) LastID() (StreamID, bool) {
	if len(s.entries) == 0 && s.lastID.IsZero() {
		return StreamID{}, false
	}
	return s.lastID, true
}

// Append adds an entry. The caller must have resolved id against LastID.
func (s *Stream) Append(id StreamID, fields []string) error {
	if last, ok := s.LastID(); ok && !last.Less(id) {
		return ErrStreamIDTooSmall
	}
	if id.IsZero() {
		return ErrStreamIDZero
	}
	s.entries = append(s.entries, StreamEntry{ID: id, Fields: append([]string(nil), fields...)})
	s.lastID = id
	return nil
}

// Range returns entries with start <= ID <= end, oldest first.
func (s *Stream) Range(start, end StreamID) []StreamEntry {
	if end.Less(start) {
		return nil
	}
	lo := sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].ID.Less(start)
	})
	hi := sort.Search(len(s.entries), func(i int) bool {
		return end.Less(s.entries[i].ID)
	})
	if lo >= hi {
		return nil
	}
	return append([]StreamEntry(nil), s.entries[lo:hi]...)
}

// After returns entries with ID strictly greater than id, oldest first.
func (s *Stream) After(id StreamID) []StreamEntry {
	next, ok := id.Next()
	if !ok {
		return nil
	}
	return s.Range(next, MaxStreamID)
}

// Entries returns a copy of all entries.
func (s *Stream) Entries() []StreamEntry {
	return append([]StreamEntry(nil), s.entries...)
}
