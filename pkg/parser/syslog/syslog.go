// Package syslog recognizes RFC 5424 and RFC 3164 syslog messages,
// including the CEF-over-syslog compound variant where the message or
// content field itself is a raw CEF record.
package syslog

import (
	"fmt"

	"github.com/open-telemetry/otap-go/pkg/parser/cef"
)

// ParseError reports why a syslog message could not be parsed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("syslog: %s", e.Reason) }

var (
	errEmptyInput     = &ParseError{Reason: "empty input"}
	errInvalidVersion = &ParseError{Reason: "invalid version"}
	errInvalidUTF8    = &ParseError{Reason: "invalid utf-8"}
	errNoPriority     = &ParseError{Reason: "missing priority"}
)

// Priority is the decoded <PRI> header: facility*8 + severity.
type Priority struct {
	Facility uint8
	Severity uint8
}

// parsePriority parses a leading "<NNN>" and returns the decoded
// priority plus everything after the closing '>'.
func parsePriority(input []byte) (Priority, []byte, error) {
	if len(input) == 0 || input[0] != '<' {
		return Priority{}, nil, errNoPriority
	}
	end := -1
	for i := 1; i < len(input) && i < 6; i++ {
		if input[i] == '>' {
			end = i
			break
		}
	}
	if end < 2 {
		return Priority{}, nil, errNoPriority
	}
	var pri int
	for _, b := range input[1:end] {
		if b < '0' || b > '9' {
			return Priority{}, nil, errNoPriority
		}
		pri = pri*10 + int(b-'0')
	}
	if pri < 0 || pri > 191 {
		return Priority{}, nil, errNoPriority
	}
	return Priority{Facility: uint8(pri / 8), Severity: uint8(pri % 8)}, input[end+1:], nil
}

// ToOtelSeverity maps a syslog severity (0-7) to the OTel log data
// model's SeverityNumber and short name, per Appendix B of the logs
// data model spec.
func ToOtelSeverity(severity uint8) (int32, string) {
	switch severity {
	case 0:
		return 21, "FATAL"
	case 1:
		return 19, "ERROR3"
	case 2:
		return 18, "ERROR2"
	case 3:
		return 17, "ERROR"
	case 4:
		return 13, "WARN"
	case 5:
		return 10, "INFO2"
	case 6:
		return 9, "INFO"
	case 7:
		return 5, "DEBUG"
	default:
		return 0, "UNSPECIFIED"
	}
}

// stripBOM removes a leading UTF-8 byte-order mark, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// MessageKind discriminates the variant held in a ParsedMessage.
type MessageKind int

const (
	KindRfc5424 MessageKind = iota
	KindRfc3164
	KindCef
	KindCefWithRfc3164
	KindCefWithRfc5424
)

// ParsedMessage is the result of Parse: exactly one syslog variant,
// optionally paired with an embedded CEF record.
type ParsedMessage struct {
	Kind   MessageKind
	Rfc5424 *Rfc5424Message
	Rfc3164 *Rfc3164Message
	Cef     *cef.Message
	Input   []byte
}

// Timestamp returns the event time as UNIX epoch nanoseconds, if the
// message carries a timestamp this package knows how to parse.
func (p *ParsedMessage) Timestamp() (int64, bool) {
	switch p.Kind {
	case KindRfc5424, KindCefWithRfc5424:
		return p.Rfc5424.timestampNanos()
	case KindRfc3164, KindCefWithRfc3164:
		return p.Rfc3164.timestampNanos()
	default:
		return 0, false
	}
}

// Severity returns the OTel severity number and name, if the message
// carries a priority field.
func (p *ParsedMessage) Severity() (int32, string, bool) {
	switch p.Kind {
	case KindRfc5424, KindCefWithRfc5424:
		n, s := ToOtelSeverity(p.Rfc5424.Priority.Severity)
		return n, s, true
	case KindRfc3164, KindCefWithRfc3164:
		if p.Rfc3164.Priority == nil {
			return 0, "", false
		}
		n, s := ToOtelSeverity(p.Rfc3164.Priority.Severity)
		return n, s, true
	default:
		return 0, "", false
	}
}

// Parse recognizes the message variant and parses it. A leading "CEF:"
// is parsed as raw CEF. Otherwise the message is parsed as syslog; if
// its priority is immediately followed by a digit then a space it is
// treated as RFC 5424, otherwise RFC 3164. Either variant's message
// body is re-checked for an embedded "CEF:" payload.
func Parse(input []byte) (*ParsedMessage, error) {
	if len(input) == 0 {
		return nil, errEmptyInput
	}

	if hasPrefix(input, "CEF:") {
		m, err := cef.Parse(input)
		if err != nil {
			return nil, err
		}
		return &ParsedMessage{Kind: KindCef, Cef: m, Input: input}, nil
	}

	if looksLikeRfc5424(input) {
		msg, err := parseRfc5424(input)
		if err != nil {
			return nil, err
		}
		if msg.Message != nil && hasPrefix(msg.Message, "CEF:") {
			cm, err := cef.Parse(msg.Message)
			if err == nil {
				return &ParsedMessage{Kind: KindCefWithRfc5424, Rfc5424: msg, Cef: cm, Input: input}, nil
			}
		}
		return &ParsedMessage{Kind: KindRfc5424, Rfc5424: msg, Input: input}, nil
	}

	msg, err := parseRfc3164(input)
	if err != nil {
		return nil, err
	}
	if msg.Content != nil && hasPrefix(msg.Content, "CEF:") {
		cm, err := cef.Parse(msg.Content)
		if err == nil {
			return &ParsedMessage{Kind: KindCefWithRfc3164, Rfc3164: msg, Cef: cm, Input: input}, nil
		}
	}
	return &ParsedMessage{Kind: KindRfc3164, Rfc3164: msg, Input: input}, nil
}

func hasPrefix(data []byte, prefix string) bool {
	return len(data) >= len(prefix) && string(data[:len(prefix)]) == prefix
}

// looksLikeRfc5424 reports whether input's priority (if any) is
// immediately followed by a version digit and a space, the shape
// RFC 3164 messages never have.
func looksLikeRfc5424(input []byte) bool {
	if len(input) == 0 || input[0] != '<' {
		return false
	}
	end := -1
	for i := 1; i < len(input) && i < 6; i++ {
		if input[i] == '>' {
			end = i
			break
		}
	}
	if end < 0 || end+1 >= len(input) {
		return false
	}
	rest := input[end+1:]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	return i > 0 && i < len(rest) && rest[i] == ' '
}
