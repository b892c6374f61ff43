package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assert.Equal(t, TF5m, NormalizeTimeframe(""))
	assert.Equal(t, TF1h, NormalizeTimeframe("1h"))
	assert.Equal(t, TF5m, NormalizeTimeframe("3d"))
	assert.Equal(t, 15*time.Minute, TF15m.Duration())
}
