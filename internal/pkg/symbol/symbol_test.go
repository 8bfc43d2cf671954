package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, "BTC/USDT", Normalize("btcusdt"))
	assert.Equal(t, "ETH/USDT", Normalize("ETH/USDT:USDT"))
	assert.Equal(t, "ETH/BTC", Normalize("ETHBTC"))
	assert.Equal(t, "", Normalize("???"))
	assert.Equal(t, "", Normalize("USDT"))
	assert.True(t, IsValid("SOL/USDT"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("BTC/"))
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"BTCUSDT", "btc/usdt", " ETH/USDT ", "", "doge"})
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "DOGE"}, got)
}

func TestToBinance(t *testing.T) {
	assert.Equal(t, "BTCUSDT", ToBinance("btc/usdt"))
	assert.Equal(t, "ETHUSDT", ToBinance("ETH/USDT:USDT"))
	assert.Equal(t, "SOLUSDT", ToBinance("solusdt"))
	assert.Equal(t, "WEIRD", ToBinance("we/ird/"))
}
