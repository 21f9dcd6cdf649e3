package logstore

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func collect(max int) (*LineWriter, *[]string) {
	var got []string
	return NewLineWriter(max, func(s string) { got = append(got, s) }), &got
}

func TestLineWriterSplits(t *testing.T) {
	w, got := collect(0)
	_, _ = w.Write([]byte("one\r\ntw"))
	_, _ = w.Write([]byte("o\n\nthree"))
	assert.Equal(t, []string{"one", "two", ""}, *got)
	_ = w.Close()
	assert.Equal(t, []string{"one", "two", "", "three"}, *got)
}

func TestLineWriterTruncatesLongLines(t *testing.T) {
	w, got := collect(4)
	n, err := w.Write([]byte(strings.Repeat("x", 10) + "\nok\n"))
	assert.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, []string{"xxxx", "ok"}, *got)

	_, _ = w.Write([]byte("abcdefg"))
	_ = w.Close()
	assert.Equal(t, []string{"xxxx", "ok", "abcd"}, *got)
}

func TestLineWriterTruncatesOnRuneBoundary(t *testing.T) {
	w, got := collect(5)
	// the three byte rune straddles the limit and arrives in two writes
	_, _ = w.Write([]byte("abc\xe2\x82"))
	_, _ = w.Write([]byte("\xacdef\nok\n"))
	assert.Equal(t, []string{"abc", "ok"}, *got)
	for _, l := range *got {
		assert.True(t, utf8.ValidString(l), l)
	}

	assert.Equal(t, 2, runeCut("ab€", 4))
	assert.Equal(t, 0, runeCut([]byte("€"), 1))
	assert.Equal(t, 2, runeCut("abc", 2))
	assert.Equal(t, 3, runeCut("abc", 9))
}
