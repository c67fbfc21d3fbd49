package syslog

import (
	"time"
)

// Rfc3164Message is a parsed legacy BSD-syslog (RFC 3164) message.
// Priority is nil when the wire form omitted the "<PRI>" header
// entirely, which RFC 3164 permits.
type Rfc3164Message struct {
	Priority  *Priority
	Timestamp []byte
	Hostname  []byte
	Tag       []byte
	Content   []byte
	Input     []byte
}

func (m *Rfc3164Message) timestampNanos() (int64, bool) {
	if m.Timestamp == nil {
		return 0, false
	}
	year := time.Now().Year()
	t, err := time.ParseInLocation("2006 Jan _2 15:04:05", fourDigitYear(year)+" "+string(m.Timestamp), time.Local)
	if err != nil {
		return 0, false
	}
	return t.UTC().UnixNano(), true
}

func fourDigitYear(y int) string {
	const digits = "0123456789"
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = digits[y%10]
		y /= 10
	}
	return string(b)
}

// parseRfc3164 parses "[<PRI>]Mon DD HH:MM:SS HOSTNAME TAG[: ]CONTENT".
// The timestamp field is the fixed-width 15-byte BSD syslog form; the
// tag is whatever precedes the first colon within the content. The
// "tag: " prefix is removed from Content only when the colon is followed
// by a space; otherwise Content keeps the full remainder, so an embedded
// CEF payload's "CEF:" marker is still recognized intact.
func parseRfc3164(input []byte) (*Rfc3164Message, error) {
	if len(input) == 0 {
		return nil, errEmptyInput
	}

	var priority *Priority
	remaining := input
	if input[0] == '<' {
		p, rest, err := parsePriority(input)
		if err == nil {
			priority = &p
			remaining = rest
		}
	}

	var timestamp []byte
	if len(remaining) >= 15 && isBsdTimestamp(remaining[:15]) {
		timestamp = remaining[:15]
		remaining = remaining[15:]
		for len(remaining) > 0 && remaining[0] == ' ' {
			remaining = remaining[1:]
		}
	}

	var hostname []byte
	if pos := indexByte(remaining, ' '); pos >= 0 {
		hostname = remaining[:pos]
		remaining = remaining[pos+1:]
	} else {
		hostname = remaining
		remaining = nil
	}

	// A "TAG:" prefix is recognized by scanning for a colon over a bounded
	// run of tag characters. Only when the colon is immediately followed
	// by a single space is it treated as a genuine "tag: message"
	// delimiter and consumed from Content; otherwise Content is left as
	// the full remainder (e.g. an embedded CEF payload's own "CEF:1|..."
	// marker, which looks like a tag but isn't followed by a space).
	var tag []byte
	content := remaining
	if len(remaining) > 0 {
		limit := len(remaining)
		if limit > 32 {
			limit = 32
		}
		for i := 0; i < limit; i++ {
			b := remaining[i]
			if b == ':' && i > 0 {
				tag = remaining[:i]
				if i+1 < len(remaining) && remaining[i+1] == ' ' {
					content = remaining[i+2:]
				}
				break
			}
			if !isTagChar(b) {
				break
			}
		}
	}

	return &Rfc3164Message{
		Priority:  priority,
		Timestamp: timestamp,
		Hostname:  emptyToNil(hostname),
		Tag:       tag,
		Content:   emptyToNil(content),
		Input:     input,
	}, nil
}

func isTagChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '_' || b == '-'
}

func indexByte(data []byte, b byte) int {
	for i, c := range data {
		if c == b {
			return i
		}
	}
	return -1
}

// isBsdTimestamp reports whether a 15-byte slice matches "Mon DD
// HH:MM:SS" (month abbreviation, space-or-digit day, fixed colons).
func isBsdTimestamp(b []byte) bool {
	if len(b) != 15 {
		return false
	}
	if b[3] != ' ' || b[6] != ' ' || b[9] != ':' || b[12] != ':' {
		return false
	}
	month := string(b[0:3])
	if _, ok := monthAbbrev[month]; !ok {
		return false
	}
	isDigitOrSpace := func(c byte) bool { return c == ' ' || (c >= '0' && c <= '9') }
	return isDigitOrSpace(b[4]) && isDigit(b[5]) &&
		isDigit(b[7]) && isDigit(b[8]) &&
		isDigit(b[10]) && isDigit(b[11]) &&
		isDigit(b[13]) && isDigit(b[14])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

var monthAbbrev = map[string]struct{}{
	"Jan": {}, "Feb": {}, "Mar": {}, "Apr": {}, "May": {}, "Jun": {},
	"Jul": {}, "Aug": {}, "Sep": {}, "Oct": {}, "Nov": {}, "Dec": {},
}
