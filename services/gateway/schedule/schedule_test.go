package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsStandardExpression(t *testing.T) {
	assert.NoError(t, Validate("*/5 * * * *"))
}

func TestValidate_RejectsMalformedExpression(t *testing.T) {
	assert.Error(t, Validate("not a cron"))
}

func TestValidate_RejectsWrongFieldCount(t *testing.T) {
	assert.Error(t, Validate("* * * *"))
}

func TestNextRun_ReturnsNextFireTimeAfterFrom(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := NextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.True(t, next.After(from))
	assert.Equal(t, 1, next.Hour())
}

func TestNextRun_PropagatesParseError(t *testing.T) {
	_, err := NextRun("garbage", time.Now())
	assert.Error(t, err)
}
