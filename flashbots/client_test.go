package flashbots

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewClient(srv.URL, key, big.NewInt(1))
}

func testBundle() *Bundle {
	return &Bundle{
		Txs:         []hexutil.Bytes{{0x01, 0x02}},
		BlockNumber: big.NewInt(101),
	}
}

func TestSendBundleSignsRequest(t *testing.T) {
	var gotMethod string
	var gotSignature string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Flashbots-Signature")
		var payload struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotMethod = payload.Method
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	})

	require.NoError(t, c.SendBundle(context.Background(), testBundle()))
	assert.Equal(t, "eth_sendBundle", gotMethod)
	assert.Contains(t, gotSignature, ":", "header must carry address:signature")
}

func TestSendBundleSurfacesRelayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"message":"bundle too large"}}`))
	})

	err := c.SendBundle(context.Background(), testBundle())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundle too large")
}

func TestSimulateBundleParsesVerdict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
			"success":true,"error":"","gasUsed":"0x5208",
			"ethSent":"0xa","ethReceived":"0x14","stateBlock":"0x64"}}`))
	})

	sim, err := c.SimulateBundle(context.Background(), testBundle())
	require.NoError(t, err)
	assert.True(t, sim.Success)
	assert.Equal(t, uint64(21000), sim.GasUsed)
	assert.Equal(t, big.NewInt(10), sim.ProfitInWei)
	assert.Equal(t, uint64(100), sim.StateBlockNumber)
}

func TestSimulateBundleFailureVerdict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"success":false,"error":"execution reverted"}}`))
	})

	sim, err := c.SimulateBundle(context.Background(), testBundle())
	require.NoError(t, err)
	assert.False(t, sim.Success)
	assert.Equal(t, "execution reverted", sim.Error)
}

func TestGetUserStatsParsesReputation(t *testing.T) {
	var gotMethod string
	var gotBlock string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotMethod = payload.Method
		gotBlock = payload.Params[0].(string)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{
			"is_high_priority":true,
			"all_time_miner_payments":"1000000000000000000",
			"last_7d_miner_payments":"50000000000000000"}}`))
	})

	stats, err := c.GetUserStats(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "flashbots_getUserStats", gotMethod)
	assert.Equal(t, "0x64", gotBlock)
	assert.True(t, stats.IsHighPriority)
	assert.Equal(t, "1000000000000000000", stats.AllTimeMinerPayments)
	assert.Equal(t, "50000000000000000", stats.Last7dMinerPayments)
}

func TestGetUserStatsSurfacesRelayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"message":"unknown searcher"}}`))
	})

	_, err := c.GetUserStats(context.Background(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown searcher")
}

func TestPostRejectsHTTPFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay overloaded", http.StatusServiceUnavailable)
	})

	err := c.SendBundle(context.Background(), testBundle())
	assert.Error(t, err)
}
