package formatter

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var markerRe = regexp.MustCompile(`^\(continued (\d+)/(\d+)\) `)

func stripMarker(segment string) string {
	return markerRe.ReplaceAllString(segment, "")
}

func words(s string) []string {
	return strings.Fields(s)
}

func TestFormat_ShortReplyIsSingleSegment(t *testing.T) {
	f := NewFormatter(1600, 10)

	segments := f.Format("Hello there!")
	require.Len(t, segments, 1)
	assert.Equal(t, "Hello there!", segments[0])

	exact := strings.Repeat("a", 1600)
	segments = f.Format(exact)
	require.Len(t, segments, 1)
	assert.Equal(t, exact, segments[0])
}

func TestFormat_ThreeSegmentScenario(t *testing.T) {
	f := NewFormatter(1600, 10)

	// 3200 characters of sentence-shaped text.
	sentence := "This is a reasonably long sentence that keeps going for a while. "
	var b strings.Builder
	for b.Len() < 3200 {
		b.WriteString(sentence)
	}
	text := b.String()[:3200]

	segments := f.Format(text)
	require.Len(t, segments, 3)

	assert.False(t, strings.HasPrefix(segments[0], "(continued"))
	assert.True(t, strings.HasPrefix(segments[1], "(continued 2/3) "))
	assert.True(t, strings.HasPrefix(segments[2], "(continued 3/3) "))

	for i, seg := range segments {
		assert.LessOrEqual(t, len(seg), 1600, "segment %d exceeds the wire limit", i+1)
	}
}

func TestFormat_ContentReconstruction(t *testing.T) {
	f := NewFormatter(1600, 10)

	var b strings.Builder
	for i := 0; b.Len() < 5000; i++ {
		fmt.Fprintf(&b, "Sentence number %d has some content in it. ", i)
	}
	text := strings.TrimSpace(b.String())

	segments := f.Format(text)
	require.Greater(t, len(segments), 1)

	var joined []string
	for _, seg := range segments {
		joined = append(joined, stripMarker(seg))
	}
	assert.Equal(t, words(text), words(strings.Join(joined, " ")),
		"segments must reconstruct the input once markers are removed")
}

func TestFormat_PrefersSentenceBoundaries(t *testing.T) {
	f := NewFormatter(100, 10)

	text := "First sentence ends here. Second sentence is also present and long enough to push past the limit for sure."
	segments := f.Format(text)
	require.Greater(t, len(segments), 1)
	assert.True(t, strings.HasSuffix(segments[0], "."),
		"first cut should land on sentence-ending punctuation, got %q", segments[0])
}

func TestFormat_WordBoundaryFallback(t *testing.T) {
	f := NewFormatter(100, 10)

	text := strings.Repeat("word ", 60) // no sentence punctuation anywhere
	segments := f.Format(strings.TrimSpace(text))
	require.Greater(t, len(segments), 1)
	for _, seg := range segments {
		assert.NotContains(t, words(stripMarker(seg)), "wor", "words must not be split mid-token")
		assert.LessOrEqual(t, len(seg), 100)
	}
}

func TestFormat_HardCutForUnbrokenRun(t *testing.T) {
	f := NewFormatter(1600, 10)

	text := strings.Repeat("x", 2000)
	segments := f.Format(text)
	require.Len(t, segments, 2)
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), 1600)
	}
}

func TestFormat_SegmentCapTruncatesRemainder(t *testing.T) {
	f := NewFormatter(1600, 10)

	var b strings.Builder
	for b.Len() < 40000 {
		b.WriteString("Filler sentence to occupy space in the reply body. ")
	}
	segments := f.Format(strings.TrimSpace(b.String()))

	require.Len(t, segments, 10)
	assert.True(t, strings.HasPrefix(segments[9], "(continued 10/10) "))
	for _, seg := range segments {
		assert.LessOrEqual(t, len(seg), 1600)
	}
}

func TestCannedReplies(t *testing.T) {
	assert.Equal(t, "Please provide a valid input.", EmptyMessage())
	assert.Contains(t, UnknownUser(), "sign up")
	assert.Contains(t, InactiveUser("Alice"), "Alice")
	assert.Contains(t, InactiveUser(""), "inactive")
	assert.Contains(t, SpamDetected(), "spam")
	assert.NotEmpty(t, GenericError())
}
