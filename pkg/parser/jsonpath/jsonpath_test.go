package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func key(k string) Selector   { return Selector{Kind: SelectorKey, Key: k} }
func index(i int64) Selector  { return Selector{Kind: SelectorIndex, Index: i} }

func TestParseMustStartWithDollar(t *testing.T) {
	_, err := Parse("")
	require.EqualError(t, err, "JsonPath must start with '$'")

	_, err = Parse("key1")
	require.EqualError(t, err, "JsonPath must start with '$'")
}

func TestParseRoot(t *testing.T) {
	s, err := Parse("$")
	require.NoError(t, err)
	require.Empty(t, s)
}

func TestParseDotKey(t *testing.T) {
	s, err := Parse("$.key1")
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key1")}, s)
}

func TestParseEmptyKeyAfterDot(t *testing.T) {
	_, err := Parse("$.")
	require.EqualError(t, err, "JsonPath empty key specified at position '1'")
}

func TestParseEmptyKeyAfterSecondDot(t *testing.T) {
	_, err := Parse("$.key1.")
	require.EqualError(t, err, "JsonPath empty key specified at position '6'")
}

func TestParseTwoDotKeys(t *testing.T) {
	s, err := Parse("$.key1.key2")
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key1"), key("key2")}, s)
}

func TestParseSingleQuotedBracketKey(t *testing.T) {
	s, err := Parse(`$['key1']`)
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key1")}, s)
}

func TestParseSingleQuotedBracketKeyWithEscapedQuote(t *testing.T) {
	s, err := Parse(`$['key\'1']`)
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key'1")}, s)
}

func TestParseDoubleQuotedBracketKeyWithEscapedQuote(t *testing.T) {
	s, err := Parse(`$["key\"1"]`)
	require.NoError(t, err)
	require.Equal(t, []Selector{key(`key"1`)}, s)
}

func TestParseSingleQuotedBracketKeyWithUnescapedBracketAndQuote(t *testing.T) {
	s, err := Parse(`$['key ] " value']`)
	require.NoError(t, err)
	require.Equal(t, []Selector{key(`key ] " value`)}, s)
}

func TestParseDotThenDoubleQuotedBracketKey(t *testing.T) {
	s, err := Parse(`$.key1["key2"]`)
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key1"), key("key2")}, s)
}

func TestParseIndex(t *testing.T) {
	s, err := Parse("$[0]")
	require.NoError(t, err)
	require.Equal(t, []Selector{index(0)}, s)
}

func TestParseNegativeIndex(t *testing.T) {
	s, err := Parse("$[-1]")
	require.NoError(t, err)
	require.Equal(t, []Selector{index(-1)}, s)
}

func TestParseKeyThenIndex(t *testing.T) {
	s, err := Parse("$.key1[0]")
	require.NoError(t, err)
	require.Equal(t, []Selector{key("key1"), index(0)}, s)
}

func TestParseUnterminatedBracket(t *testing.T) {
	_, err := Parse("$[")
	require.EqualError(t, err, "JsonPath unexpectedly ended at position '1'")
}

func TestParseUnterminatedSingleQuotedKey(t *testing.T) {
	_, err := Parse(`$['key1'`)
	require.EqualError(t, err, "JsonPath unexpectedly ended at position '7'")
}

func TestParseUnterminatedDoubleQuotedKey(t *testing.T) {
	_, err := Parse(`$["key1"`)
	require.EqualError(t, err, "JsonPath unexpectedly ended at position '7'")
}

func TestParseInvalidCharacterAfterClosingQuote(t *testing.T) {
	_, err := Parse(`$['key1'.key2`)
	require.EqualError(t, err, "JsonPath invalid character at position '8'")
}

func TestParseInvalidIndex(t *testing.T) {
	_, err := Parse("$[0&]")
	require.EqualError(t, err, "JsonPath index specified at position '1' could not be parsed")
}

func TestParseInvalidEscapeSequence(t *testing.T) {
	_, err := Parse(`$['key\x1']`)
	require.EqualError(t, err, "JsonPath invalid escape sequence at position '6'")
}

func TestRenderRoundTrip(t *testing.T) {
	cases := []string{
		"$",
		"$['key1']",
		"$['key1']['key2']",
		"$['key1'][0]",
		"$[-1]",
		"$['key\\'1']",
	}
	for _, c := range cases {
		selectors, err := Parse(c)
		require.NoError(t, err)
		rendered := Render(selectors)
		again, err := Parse(rendered)
		require.NoError(t, err)
		require.Equal(t, selectors, again)
	}
}
