package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		typ     string
		want    bool
	}{
		{"*", "market_data.ticker", true},
		{"**", "system", true},
		{"market_data.ticker", "market_data.ticker", true},
		{"market_data.ticker", "market_data.trade", false},
		{"market_data.*", "market_data.ticker", true},
		{"market_data.*", "market_data", false},
		{"market_data.*", "market_data.ticker.l2", false},
		{"market_data.**", "market_data", true},
		{"market_data.**", "market_data.ticker.l2", true},
		{"**.l2", "market_data.ticker.l2", true},
		{"**.l2", "market_data.ticker.l3", false},
		{"signal.*", "analysis.rsi", false},
		{"market_*.ticker", "market_data.ticker", true},
		{"*.ticker", "market_data.ticker", true},
		{"alert.warn?ng", "alert.warning", true},
		{"alert.[", "alert.[", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.typ))
		})
	}
}

func TestIsPattern(t *testing.T) {
	assert.True(t, IsPattern("*"))
	assert.True(t, IsPattern("market_data.*"))
	assert.True(t, IsPattern("alert.warn?ng"))
	assert.False(t, IsPattern("market_data.ticker"))
}
