package cef

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collectAll(m *Message) [][2]string {
	var out [][2]string
	it := m.Extensions()
	for {
		k, v, ok := it.NextExtension()
		if !ok {
			break
		}
		out = append(out, [2]string{string(k), string(v)})
	}
	return out
}

func TestParseBasic(t *testing.T) {
	input := []byte("CEF:0|Security|threatmanager|1.0|100|worm successfully stopped|10|src=10.0.0.1 dst=2.1.2.2 spt=1232")
	m, err := Parse(input)
	require.NoError(t, err)
	require.EqualValues(t, 0, m.Version)
	require.Equal(t, "Security", string(m.DeviceVendor))
	require.Equal(t, "threatmanager", string(m.DeviceProduct))
	require.Equal(t, "1.0", string(m.DeviceVersion))
	require.Equal(t, "100", string(m.DeviceEventClassID))
	require.Equal(t, "worm successfully stopped", string(m.Name))
	require.Equal(t, "10", string(m.Severity))

	ext := collectAll(m)
	require.Equal(t, [][2]string{{"src", "10.0.0.1"}, {"dst", "2.1.2.2"}, {"spt", "1232"}}, ext)
}

func TestVersionWithMinor(t *testing.T) {
	cases := []struct {
		in   string
		want uint8
	}{
		{"CEF:0.5|Security|threatmanager|1.0|100|worm successfully stopped|10|", 0},
		{"CEF:1.2|Security|threatmanager|1.0|100|worm successfully stopped|10|", 1},
		{"CEF:0.0|Security|threatmanager|1.0|100|worm successfully stopped|10|", 0},
	}
	for _, c := range cases {
		m, err := Parse([]byte(c.in))
		require.NoError(t, err)
		require.Equal(t, c.want, m.Version)
	}

	_, err := Parse([]byte("CEF:2.0|Security|threatmanager|1.0|100|worm successfully stopped|10|"))
	require.Error(t, err)
}

func TestWithoutExtensions(t *testing.T) {
	m, err := Parse([]byte("CEF:0|Security|threatmanager|1.0|100|worm successfully stopped|10|"))
	require.NoError(t, err)
	require.Empty(t, collectAll(m))
}

func TestExtensionsWithSpacesInValues(t *testing.T) {
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name|10|msg=This is a message with spaces src=10.0.0.1"))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"msg", "This is a message with spaces"}, {"src", "10.0.0.1"}}, ext)
}

func TestExtensionsWithEqualsInValues(t *testing.T) {
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name|10|equation=a=b+c src=10.0.0.1"))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"equation", "a=b+c"}, {"src", "10.0.0.1"}}, ext)
}

func TestExtensionsEmptyValue(t *testing.T) {
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name|10|empty= src=10.0.0.1"))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"empty", ""}, {"src", "10.0.0.1"}}, ext)
}

func TestExtensionsTrailingSpaces(t *testing.T) {
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name|10|value=has trailing spaces   next=value"))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"value", "has trailing spaces"}, {"next", "value"}}, ext)
}

func TestExtensionUnescapingComprehensive(t *testing.T) {
	m, err := Parse([]byte(`CEF:0|V|P|1.0|100|name|10|msg=Line1\nLine2 path=C:\\temp equals=a\=b`))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{
		{"msg", "Line1\nLine2"},
		{"path", `C:\temp`},
		{"equals", "a=b"},
	}, ext)
}

func TestHeaderPipeEscaping(t *testing.T) {
	m, err := Parse([]byte(`CEF:0|Security|threatmanager|1.0|100|detected a \| in message|10|src=10.0.0.1`))
	require.NoError(t, err)
	require.Equal(t, `detected a \| in message`, string(m.Name))
	require.Equal(t, "10", string(m.Severity))
}

func TestEscapedPipeAndTab(t *testing.T) {
	// Scenario: an escaped pipe inside a field plus a literal tab in an
	// extension value both survive intact.
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name with \\| pipe|10|msg=has\ttab"))
	require.NoError(t, err)
	require.Equal(t, "name with \\| pipe", string(m.Name))
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"msg", "has\ttab"}}, ext)
}

func TestMalformedHeader(t *testing.T) {
	_, err := Parse([]byte("CEF:"))
	require.ErrorIs(t, err, error(errEmptyCEFContent))

	_, err = Parse([]byte("CEF:0"))
	require.ErrorIs(t, err, error(errInvalidCef))
}

func TestWithEmptyFields(t *testing.T) {
	m, err := Parse([]byte("CEF:0|||||||"))
	require.NoError(t, err)
	require.EqualValues(t, 0, m.Version)
	require.Empty(t, m.DeviceVendor)
	require.Empty(t, m.DeviceProduct)
	require.Empty(t, m.DeviceVersion)
	require.Empty(t, m.DeviceEventClassID)
	require.Empty(t, m.Name)
	require.Empty(t, m.Severity)
	require.Empty(t, collectAll(m))
}

func TestInsufficientFieldsBoundary(t *testing.T) {
	// 4 pipes: too few.
	_, err := Parse([]byte("CEF:0|vendor|product|version|id"))
	require.Error(t, err)

	// 5 pipes: still too few.
	_, err = Parse([]byte("CEF:0|vendor|product|version|id|name"))
	require.Error(t, err)

	// exactly 6 pipes (7 fields): valid, no extensions.
	m, err := Parse([]byte("CEF:0|vendor|product|version|id|name|10"))
	require.NoError(t, err)
	require.Equal(t, "vendor", string(m.DeviceVendor))
	require.Equal(t, "10", string(m.Severity))
	require.Empty(t, m.extensions)

	// 7 pipes (8 fields): valid, extensions present.
	m, err = Parse([]byte("CEF:0|vendor|product|1.0|eventId|Event Name|5|src=127.0.0.1 dst=192.168.1.1"))
	require.NoError(t, err)
	require.Equal(t, "src=127.0.0.1 dst=192.168.1.1", string(m.extensions))
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"src", "127.0.0.1"}, {"dst", "192.168.1.1"}}, ext)
}

func TestExtensionParsingEdgeCases(t *testing.T) {
	m, err := Parse([]byte("CEF:0|V|P|1.0|100|name|10|="))
	require.NoError(t, err)
	require.Empty(t, collectAll(m))

	m, err = Parse([]byte("CEF:0|V|P|1.0|100|name|10|===value"))
	require.NoError(t, err)
	require.Empty(t, collectAll(m))

	m, err = Parse([]byte(`CEF:0|V|P|1.0|100|name|10|key=value\`))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"key", `value\`}}, ext)
}

func TestEscapedBackslashAtEnd(t *testing.T) {
	m, err := Parse([]byte(`CEF:0|V|P|1.0|100|name\|10|`))
	require.NoError(t, err)
	require.Equal(t, `name\|10`, string(m.Name))
	require.Empty(t, m.Severity)

	m, err = Parse([]byte(`CEF:0|V|P|1.0|100|name|10|key=val\`))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"key", `val\`}}, ext)
}

func TestVeryLongEscapeSequences(t *testing.T) {
	m, err := Parse([]byte(`CEF:0|V|P|1.0|100|name|10|key=\\\\\\`))
	require.NoError(t, err)
	ext := collectAll(m)
	require.Equal(t, [][2]string{{"key", `\\\`}}, ext)
}

func TestRawBytesPreservedInValue(t *testing.T) {
	input := append([]byte("CEF:0|V|P|1.0|100|name|10|key="), 0xFF, 0xFE)
	m, err := Parse(input)
	require.NoError(t, err)
	it := m.Extensions()
	k, v, ok := it.NextExtension()
	require.True(t, ok)
	require.Equal(t, "key", string(k))
	require.Equal(t, []byte{0xFF, 0xFE}, v)
}
