// Package cef parses Common Event Format security log messages:
//
//	CEF:Version|Device Vendor|Device Product|Device Version|Device Event Class ID|Name|Severity|[Extensions]
package cef

import "fmt"

// ParseError reports why a CEF message could not be parsed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("cef: %s", e.Reason) }

var (
	errInvalidCef        = &ParseError{Reason: "invalid CEF header"}
	errEmptyCEFContent   = &ParseError{Reason: "empty CEF content"}
)

// Message is a parsed CEF header. Extensions are decoded lazily via
// Extensions() rather than up front.
type Message struct {
	Version               uint8
	DeviceVendor           []byte
	DeviceProduct          []byte
	DeviceVersion          []byte
	DeviceEventClassID     []byte
	Name                   []byte
	Severity               []byte
	extensions             []byte
	Input                  []byte
}

// Extensions returns an iterator over the message's extension key-value
// pairs.
func (m *Message) Extensions() *ExtensionsIter {
	return newExtensionsIter(m.extensions)
}

// Parse parses a CEF message. input must begin with "CEF:".
func Parse(input []byte) (*Message, error) {
	const prefix = "CEF:"
	if len(input) < len(prefix) || string(input[:len(prefix)]) != prefix {
		return nil, errInvalidCef
	}
	content := input[len(prefix):]
	if len(content) == 0 {
		return nil, errEmptyCEFContent
	}

	// Format: Version|Vendor|Product|Version|EventClassID|Name|Severity|[Extensions]
	// Up to 8 pipe-separated parts: the first 7 are required header fields,
	// the 8th (if present) is the raw, not-yet-tokenized extensions blob.
	var parts [8][]byte
	partsCount := 0
	start := 0
	pipeCount := 0
	i := 0

	for i < len(content) {
		if content[i] == '|' {
			escaped := false
			if i > 0 {
				backslashCount := 0
				j := i
				for j > 0 && content[j-1] == '\\' {
					backslashCount++
					j--
				}
				escaped = backslashCount%2 == 1
			}

			if !escaped {
				parts[partsCount] = content[start:i]
				partsCount++
				start = i + 1
				pipeCount++
				if pipeCount == 7 {
					if start < len(content) {
						parts[partsCount] = content[start:]
					} else {
						parts[partsCount] = []byte{}
					}
					partsCount++
					break
				}
			}
		}
		i++
	}

	if pipeCount < 7 && start <= len(content) {
		parts[partsCount] = content[start:]
		partsCount++
	}

	if partsCount < 7 {
		return nil, errInvalidCef
	}

	versionBytes := parts[0]
	var version uint8
	if len(versionBytes) == 0 {
		return nil, errInvalidCef
	}
	switch versionBytes[0] {
	case '0':
		version = 0
	case '1':
		version = 1
	default:
		return nil, errInvalidCef
	}

	var extensions []byte
	if partsCount > 7 {
		extensions = parts[7]
	}

	return &Message{
		Version:            version,
		DeviceVendor:       parts[1],
		DeviceProduct:      parts[2],
		DeviceVersion:      parts[3],
		DeviceEventClassID: parts[4],
		Name:               parts[5],
		Severity:           parts[6],
		extensions:         extensions,
		Input:              input,
	}, nil
}
