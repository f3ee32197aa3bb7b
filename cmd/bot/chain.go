package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/config"
	"github.com/HWyn2020/flash-arbitrage-ethereum/submit"
	"github.com/HWyn2020/flash-arbitrage-ethereum/types"
)

const requestLoanABI = `[{"name":"requestLoan","type":"function","inputs":[
	{"name":"asset","type":"address"},
	{"name":"principal","type":"uint256"},
	{"name":"path1","type":"address[]"},
	{"name":"path2","type":"address[]"},
	{"name":"minProfit","type":"uint256"}]}]`

// ChainRelayDeps dials the chain RPC and assembles what the private
// channel needs: the head source and receipt lookups from the node, and a
// builder that signs the loan-request call with the operator key.
func ChainRelayDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RelayDeps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	keyHex, err := config.GetRequiredEnv(config.EnvPrivateKey)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(requestLoanABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	chainID := new(big.Int).SetUint64(cfg.ChainID)
	signer := ethtypes.LatestSignerForChainID(chainID)
	from := crypto.PubkeyToAddress(key.PublicKey)
	contract := cfg.ContractAddress
	logger.Info("chain rpc connected",
		zap.String("endpoint", cfg.RPCEndpoint),
		zap.String("operator", from.Hex()))

	build := func(ctx context.Context, route *types.ProtectedRoute, req types.LoanRequest) (*ethtypes.Transaction, error) {
		data, err := parsed.Pack("requestLoan", req.Asset, req.Principal, req.Path1, req.Path2, req.MinProfit)
		if err != nil {
			return nil, fmt.Errorf("encode loan request: %w", err)
		}
		nonce, err := client.PendingNonceAt(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("read nonce: %w", err)
		}
		head, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("read head: %w", err)
		}
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("read tip: %w", err)
		}
		feeCap := new(big.Int).Set(tip)
		if head.BaseFee != nil {
			feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		}
		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       cfg.GasLimit,
			To:        &contract,
			Data:      data,
		})
		return ethtypes.SignTx(tx, signer, key)
	}

	return &RelayDeps{
		Build:    build,
		Head:     client,
		Included: &receiptChecker{client: client},
	}, nil
}

// receiptChecker answers inclusion polls from the node's receipts. A
// missing receipt is "not yet", not an error.
type receiptChecker struct {
	client *ethclient.Client
}

func (r *receiptChecker) Included(ctx context.Context, txHash common.Hash) (*types.SettlementRecord, bool, error) {
	rcpt, err := r.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	gasSpent := new(big.Int)
	if rcpt.EffectiveGasPrice != nil {
		gasSpent.Mul(new(big.Int).SetUint64(rcpt.GasUsed), rcpt.EffectiveGasPrice)
	}
	return &types.SettlementRecord{
		Succeeded:      rcpt.Status == ethtypes.ReceiptStatusSuccessful,
		RealizedProfit: new(big.Int),
		GasSpent:       gasSpent,
		TxReference:    txHash,
	}, true, nil
}

var (
	_ submit.InclusionChecker = (*receiptChecker)(nil)
	_ submit.HeadSource       = (*ethclient.Client)(nil)
)
