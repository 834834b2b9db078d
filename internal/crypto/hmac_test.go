package crypto

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignMatchesExchangeReference(t *testing.T) {
	// Reference vector from the Binance REST API documentation.
	auth := &HMACAuth{
		Key:    "vmPUZE6mv9SD5VNHk4HlWFsOr6aKE2zvsw0MuIgwCIPy6utIco14y7Ju91duEh8A",
		Secret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	}
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	require.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", auth.Sign(payload))
}

func TestSignQueryAt(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: "s"}
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	q := auth.SignQueryAt(params, time.UnixMilli(1700000000000))
	require.True(t, strings.HasPrefix(q, "symbol=BTCUSDT&timestamp=1700000000000&signature="))

	unsigned := strings.SplitN(q, "&signature=", 2)
	require.Len(t, unsigned, 2)
	require.Equal(t, auth.Sign(unsigned[0]), unsigned[1])
}

func TestStringRedactsSecrets(t *testing.T) {
	auth := &HMACAuth{Key: "abcdefgh", Secret: "xyz"}
	s := auth.String()
	require.Contains(t, s, "abcd****")
	require.NotContains(t, s, "efgh")
	require.NotContains(t, s, "xyz")
	require.True(t, auth.Configured())
	require.False(t, (&HMACAuth{Key: "k"}).Configured())
}
