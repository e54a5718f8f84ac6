package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reqgate/reqgate/src/utils"
)

type fakeTimeSource struct {
	now int64
}

func (f *fakeTimeSource) UnixNow() int64 {
	return f.now
}

func TestCalculateReset(t *testing.T) {
	assert := assert.New(t)

	ts := &fakeTimeSource{now: 100}
	assert.Equal(int64(30), utils.CalculateReset(100, 30, ts))

	ts.now = 129
	assert.Equal(int64(1), utils.CalculateReset(100, 30, ts))

	// Clamped so a caller racing the rollover still gets a usable hint.
	ts.now = 130
	assert.Equal(int64(1), utils.CalculateReset(100, 30, ts))
}

func TestSanitizeStatName(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("api_ping", utils.SanitizeStatName("/api/ping"))
	assert.Equal("api_redirect", utils.SanitizeStatName("/api/redirect"))
	assert.Equal("api", utils.SanitizeStatName("api"))
	assert.Equal("a_b_c", utils.SanitizeStatName("a:b|c"))
	assert.Equal("api_name", utils.SanitizeStatName("/api/{name}"))
}
