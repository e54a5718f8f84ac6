package sanitize_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reqgate/reqgate/src/sanitize"
)

func TestSanitizeCollapsesWhitespace(t *testing.T) {
	assert := assert.New(t)

	out, err := sanitize.Sanitize("  hello \t world\n\nagain  ")
	assert.NoError(err)
	assert.Equal("hello world again", out)

	out, err = sanitize.Sanitize("already clean")
	assert.NoError(err)
	assert.Equal("already clean", out)
}

func TestSanitizeRejectsEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n\r "} {
		_, err := sanitize.Sanitize(raw)
		assert.ErrorIs(t, err, sanitize.EmptyMessage)
	}
}

func TestSanitizeLengthBound(t *testing.T) {
	assert := assert.New(t)

	exact := strings.Repeat("a", sanitize.MaxMessageLength)
	out, err := sanitize.Sanitize(exact)
	assert.NoError(err)
	assert.Equal(exact, out)

	_, err = sanitize.Sanitize(strings.Repeat("a", sanitize.MaxMessageLength+1))
	assert.ErrorIs(err, sanitize.TooLong)

	// The bound applies after collapsing, so a long raw string that
	// normalizes short still passes.
	out, err = sanitize.Sanitize("a" + strings.Repeat(" ", 600) + "b")
	assert.NoError(err)
	assert.Equal("a b", out)

	// Length counts characters, not bytes.
	wide := strings.Repeat("é", sanitize.MaxMessageLength)
	out, err = sanitize.Sanitize(wide)
	assert.NoError(err)
	assert.Equal(wide, out)

	_, err = sanitize.Sanitize(strings.Repeat("é", sanitize.MaxMessageLength+1))
	assert.ErrorIs(err, sanitize.TooLong)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	assert := assert.New(t)

	for _, raw := range []string{"  hello \t world ", "one", "a  b   c", "x " + strings.Repeat("y ", 20)} {
		once, err := sanitize.Sanitize(raw)
		assert.NoError(err)
		twice, err := sanitize.Sanitize(once)
		assert.NoError(err)
		assert.Equal(once, twice)
	}
}
