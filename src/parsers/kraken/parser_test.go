package kraken

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestPairToAsset(t *testing.T) {
	tests := []struct {
		pair string
		want string
	}{
		{"XXBTZEUR", "BTC"},
		{"XETHZEUR", "ETH"},
		{"XXDGZEUR", "DOGE"},
		{"ADAEUR", "ADA"},
		{"SOLEUR", "SOL"},
		{"XBTUSD", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pairToAsset(tt.pair), "pair %q", tt.pair)
	}
}

func TestParseTimeUnixSeconds(t *testing.T) {
	parsed, err := parseTime("1685613600.5")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, time.June, 1, 10, 0, 0, 500000000, time.UTC), parsed)
}

func TestParseSkipsNonTradeRows(t *testing.T) {
	csv := `txid,pair,time,type,price,vol
TX1,XXBTZEUR,1685613600,buy,30000,0.5
TX2,XXBTZEUR,1685613700,deposit,0,0.1
TX3,BTCUSD,1685613800,buy,28000,0.2
`
	p := NewParser()
	txs, err := p.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "kraken_TX1", txs[0].ID)
}

func TestParseMissingColumn(t *testing.T) {
	p := NewParser()
	_, err := p.Parse(strings.NewReader("txid,pair,time\nTX1,XXBTZEUR,1685613600\n"))
	assert.Error(t, err)
}
