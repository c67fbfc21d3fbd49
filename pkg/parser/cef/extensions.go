package cef

// ExtensionsIter walks a CEF extensions blob's key=value pairs on demand.
// It reuses a single scratch buffer across calls to NextExtension so that
// only extension values actually needing backslash-unescaping allocate.
type ExtensionsIter struct {
	data    []byte
	pos     int
	scratch []byte
}

func newExtensionsIter(data []byte) *ExtensionsIter {
	return &ExtensionsIter{data: data}
}

// NextExtension returns the next key-value pair, or ok=false once the
// blob is exhausted. The returned value slice is only valid until the
// next call to NextExtension, since it may alias the iterator's scratch
// buffer.
func (it *ExtensionsIter) NextExtension() (key, value []byte, ok bool) {
	if it.pos >= len(it.data) {
		return nil, nil, false
	}

	for it.pos < len(it.data) && it.data[it.pos] == ' ' {
		it.pos++
	}
	if it.pos >= len(it.data) {
		return nil, nil, false
	}

	keyStart := it.pos
	for it.pos < len(it.data) && it.data[it.pos] != '=' {
		it.pos++
	}
	if it.pos >= len(it.data) {
		return nil, nil, false
	}
	keyEnd := it.pos

	if keyStart == keyEnd {
		// Empty key: skip past the '=' and the rest of this token, then
		// try again for the next extension.
		it.pos++
		for it.pos < len(it.data) && it.data[it.pos] != ' ' {
			it.pos++
		}
		return it.NextExtension()
	}

	it.pos++ // skip '='
	if it.pos >= len(it.data) {
		return it.data[keyStart:keyEnd], []byte{}, true
	}

	valueStart := it.pos
	escaped := false
	for it.pos < len(it.data) {
		if escaped {
			escaped = false
			it.pos++
			continue
		}
		if it.data[it.pos] == '\\' && it.pos+1 < len(it.data) {
			escaped = true
			it.pos++
			continue
		}
		if it.data[it.pos] == ' ' {
			if looksLikeNextKey(it.data, it.pos+1) {
				break
			}
		}
		it.pos++
	}

	key = it.data[keyStart:keyEnd]
	rawValue := it.data[valueStart:it.pos]

	for it.pos < len(it.data) && it.data[it.pos] == ' ' {
		it.pos++
	}

	if needsUnescaping(rawValue) {
		it.scratch = it.scratch[:0]
		it.scratch = append(it.scratch, rawValue...)
		n := unescapeInPlace(it.scratch)
		value = it.scratch[:n]
	} else {
		value = rawValue
	}

	return key, value, true
}

// looksLikeNextKey reports whether data[from:] begins (after skipping
// spaces) with an alphanumeric/underscore/dash key followed by '=',
// which is the lookahead CEF uses to decide that an unescaped space
// inside a value actually separates it from the next key=value pair.
func looksLikeNextKey(data []byte, from int) bool {
	lookahead := from
	for lookahead < len(data) && data[lookahead] == ' ' {
		lookahead++
	}
	if lookahead >= len(data) {
		return false
	}
	keyEndPos := lookahead
	for keyEndPos < len(data) {
		ch := data[keyEndPos]
		if ch == '=' && keyEndPos > lookahead {
			return true
		}
		if !isAlphaNumeric(ch) && ch != '_' && ch != '-' {
			return false
		}
		keyEndPos++
	}
	return false
}

func isAlphaNumeric(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// needsUnescaping reports whether data contains any of the four
// recognized CEF backslash escapes (\\  \=  \n  \r).
func needsUnescaping(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	for i := 0; i < len(data)-1; i++ {
		if data[i] == '\\' {
			switch data[i+1] {
			case '\\', '=', 'n', 'r':
				return true
			}
		}
	}
	return false
}

// unescapeInPlace rewrites data's recognized backslash escapes in place
// and returns the new length.
func unescapeInPlace(data []byte) int {
	writePos := 0
	readPos := 0
	for readPos < len(data) {
		if readPos+1 < len(data) && data[readPos] == '\\' {
			switch data[readPos+1] {
			case '\\':
				data[writePos] = '\\'
				readPos += 2
			case '=':
				data[writePos] = '='
				readPos += 2
			case 'n':
				data[writePos] = '\n'
				readPos += 2
			case 'r':
				data[writePos] = '\r'
				readPos += 2
			default:
				data[writePos] = data[readPos]
				readPos++
			}
		} else {
			data[writePos] = data[readPos]
			readPos++
		}
		writePos++
	}
	return writePos
}
