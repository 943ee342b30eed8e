package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "short", shortAddress("short"))
	assert.Equal(t, "exactly14chars", shortAddress("exactly14chars"))
	assert.Equal(t, "So1111…111112", shortAddress(testMint))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", formatAmount(1.5))
	assert.Equal(t, "100", formatAmount(100.0))
	assert.Equal(t, "0.0001", formatAmount(0.0001))
	assert.Equal(t, "2.25", formatAmount(2.2500))
	assert.Equal(t, "0", formatAmount(0))
}
