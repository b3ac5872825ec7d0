package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens_EmptyStringIsZero(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
}

func TestEstimateTokens_ScalesWithLength(t *testing.T) {
	short := EstimateTokens("hi")
	long := EstimateTokens(strRepeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestEstimateCostUSD_ZeroPriceOmitsHeader(t *testing.T) {
	_, ok := EstimateCostUSD("some prompt", 10, 0, 0)
	assert.False(t, ok)
}

func TestEstimateCostUSD_PositivePrice(t *testing.T) {
	cost, ok := EstimateCostUSD("some prompt", 10, 1.0, 2.0)
	assert.True(t, ok)
	assert.Greater(t, cost, 0.0)
}

func strRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
