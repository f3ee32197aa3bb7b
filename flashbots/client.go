// Package flashbots implements the private relay RPC used by the
// submission channel: bundles are simulated against next-block state and
// submitted without touching the public mempool.
package flashbots

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	contentTypeJSON  = "application/json"
	flashbotsXHeader = "X-Flashbots-Signature"
	methodSendBundle = "eth_sendBundle"
	methodCallBundle = "eth_callBundle"
	methodUserStats  = "flashbots_getUserStats"
)

// Client is a relay RPC client authenticated with an ECDSA search key.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authSigner *ecdsa.PrivateKey
	chainID    *big.Int
}

// NewClient creates a relay client.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey, chainID *big.Int) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Second * 3},
		relayURL:   relayURL,
		authSigner: authKey,
		chainID:    chainID,
	}
}

// Bundle is a set of signed transactions targeting one block.
type Bundle struct {
	Txs               []hexutil.Bytes // RLP-encoded signed transactions
	BlockNumber       *big.Int
	MinTimestamp      *big.Int
	MaxTimestamp      *big.Int
	RevertingTxHashes []common.Hash
}

// Simulation is the relay's verdict on a bundle against next-block state.
type Simulation struct {
	Success          bool
	Error            string
	GasUsed          uint64
	EthSent          *big.Int
	EthReceived      *big.Int
	ProfitInWei      *big.Int
	StateBlockNumber uint64
}

// SendBundle submits a bundle for inclusion in its target block.
func (c *Client) SendBundle(ctx context.Context, bundle *Bundle) error {
	params := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodSendBundle,
		"params": []interface{}{
			map[string]interface{}{
				"txs":               bundle.Txs,
				"blockNumber":       fmt.Sprintf("0x%x", bundle.BlockNumber),
				"minTimestamp":      bundle.MinTimestamp,
				"maxTimestamp":      bundle.MaxTimestamp,
				"revertingTxHashes": bundle.RevertingTxHashes,
			},
		},
	}

	body, err := c.post(ctx, params)
	if err != nil {
		return err
	}
	var result struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode send response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("relay rejected bundle: %s", result.Error.Message)
	}
	return nil
}

// SimulateBundle simulates a bundle before sending.
func (c *Client) SimulateBundle(ctx context.Context, bundle *Bundle) (*Simulation, error) {
	params := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodCallBundle,
		"params": []interface{}{
			map[string]interface{}{
				"txs":              bundle.Txs,
				"blockNumber":      fmt.Sprintf("0x%x", bundle.BlockNumber),
				"stateBlockNumber": fmt.Sprintf("0x%x", bundle.BlockNumber.Uint64()-1),
				"timestamp":        time.Now().Unix(),
			},
		},
	}

	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			Success     bool   `json:"success"`
			Error       string `json:"error"`
			GasUsed     string `json:"gasUsed"`
			EthSent     string `json:"ethSent"`
			EthReceived string `json:"ethReceived"`
			StateBlock  string `json:"stateBlock"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode simulation response: %w", err)
	}

	gasUsed, _ := hexutil.DecodeUint64(result.Result.GasUsed)
	ethSent, _ := hexutil.DecodeBig(result.Result.EthSent)
	ethReceived, _ := hexutil.DecodeBig(result.Result.EthReceived)
	stateBlock, _ := hexutil.DecodeUint64(result.Result.StateBlock)

	var profit *big.Int
	if ethReceived != nil && ethSent != nil {
		profit = new(big.Int).Sub(ethReceived, ethSent)
	}

	return &Simulation{
		Success:          result.Result.Success,
		Error:            result.Result.Error,
		GasUsed:          gasUsed,
		EthSent:          ethSent,
		EthReceived:      ethReceived,
		ProfitInWei:      profit,
		StateBlockNumber: stateBlock,
	}, nil
}

// UserStats is the relay's reputation view of the auth key. Higher
// reputation buys priority in bundle merging.
type UserStats struct {
	IsHighPriority       bool   `json:"is_high_priority"`
	AllTimeMinerPayments string `json:"all_time_miner_payments"`
	AllTimeGasSimulated  string `json:"all_time_gas_simulated"`
	Last7dMinerPayments  string `json:"last_7d_miner_payments"`
	Last7dGasSimulated   string `json:"last_7d_gas_simulated"`
	Last1dMinerPayments  string `json:"last_1d_miner_payments"`
	Last1dGasSimulated   string `json:"last_1d_gas_simulated"`
}

// GetUserStats fetches the relay's stats for the auth key. blockNumber
// must be recent; the relay uses it to prove the request is fresh.
func (c *Client) GetUserStats(ctx context.Context, blockNumber uint64) (*UserStats, error) {
	params := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodUserStats,
		"params":  []interface{}{fmt.Sprintf("0x%x", blockNumber)},
	}

	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}
	var result struct {
		Result *UserStats `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("relay rejected stats request: %s", result.Error.Message)
	}
	if result.Result == nil {
		return nil, fmt.Errorf("relay returned empty stats")
	}
	return result.Result, nil
}

// post marshals the JSON-RPC payload, signs it and delivers it to the
// relay.
func (c *Client) post(ctx context.Context, params map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authSigner,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	header := fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authSigner.PublicKey).Hex(),
		hexutil.Encode(signature),
	)

	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(flashbotsXHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay request failed: %s", string(body))
	}
	return body, nil
}
