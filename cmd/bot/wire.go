package bot

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HWyn2020/flash-arbitrage-ethereum/breaker"
	"github.com/HWyn2020/flash-arbitrage-ethereum/config"
	"github.com/HWyn2020/flash-arbitrage-ethereum/dex"
	"github.com/HWyn2020/flash-arbitrage-ethereum/dex/clpool"
	"github.com/HWyn2020/flash-arbitrage-ethereum/dex/constprod"
	"github.com/HWyn2020/flash-arbitrage-ethereum/flashbots"
	"github.com/HWyn2020/flash-arbitrage-ethereum/gas"
	"github.com/HWyn2020/flash-arbitrage-ethereum/ledger"
	"github.com/HWyn2020/flash-arbitrage-ethereum/lock"
	"github.com/HWyn2020/flash-arbitrage-ethereum/strategies/arbitrage"
	"github.com/HWyn2020/flash-arbitrage-ethereum/submit"
	"github.com/HWyn2020/flash-arbitrage-ethereum/utils/metrics"
)

// Environment is a fully wired bot plus the ledger it executes against.
type Environment struct {
	Bot     *Bot
	Ledger  *ledger.Ledger
	Backend *ledger.ExecutionBackend
	Metrics *metrics.Metrics
	Channel submit.Channel
}

// RelayDeps are the chain-facing capabilities the private channel needs
// beyond the relay itself: a signer for the loan-request instruction, the
// chain head, and receipt lookups.
type RelayDeps struct {
	Build    submit.TxBuilder
	Head     submit.HeadSource
	Included submit.InclusionChecker
}

// BuildLocal assembles the whole pipeline over a freshly seeded in-memory
// ledger: pools from the venue config, the lender, the arbitrage contract,
// scanner, guard, mutex, breaker and submitter. The configured submission
// channel decides delivery: "public" executes directly against the ledger,
// "private" goes through the relay and needs relay to be non-nil.
func BuildLocal(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, relay *RelayDeps, logger *zap.Logger) (*Environment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	l := ledger.New(logger)
	venues, venueAddr, err := buildVenues(cfg, l)
	if err != nil {
		return nil, err
	}

	lenderLiquidity := cfg.LenderLiquidity
	if lenderLiquidity == nil {
		lenderLiquidity = new(big.Int).Mul(cfg.Principal, big.NewInt(10))
	}
	lender := ledger.DeployLender(l, deployAddr(cfg.LenderAddress, "lender"), cfg.PremiumBps, cfg.TokenIn, lenderLiquidity, logger)

	var fallbacks []common.Address
	for _, v := range venues {
		fallbacks = append(fallbacks, v.Address())
	}
	arb := ledger.DeployArbitrage(l, deployAddr(cfg.ContractAddress, "arbitrage"), deployAddr(cfg.OperatorAddress, "operator"), fallbacks, lender, logger)

	backend := ledger.NewExecutionBackend(l, arb, deployAddr(cfg.OperatorAddress, "operator"), venueAddr, fallbacks, logger)

	m := metrics.New(reg)
	scanner := arbitrage.NewScanner(venues, cfg.ReadsPerSecond, logger)
	guard := arbitrage.NewGuard(venues, cfg.SlippageToleranceBps, logger)
	locker := lock.New(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
	cb := breaker.New(breaker.Config{
		MaxFailures:  cfg.CircuitBreaker.MaxFailures,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, reg, logger)

	estimator := gas.NewStatic(big.NewInt(20_000_000_000), big.NewInt(1_000_000_000))
	channel, err := buildChannel(ctx, cfg, backend, relay, logger)
	if err != nil {
		return nil, err
	}
	submitter := submit.NewSubmitter(submit.Config{
		MaxOpportunityAge: cfg.MaxOpportunityAge,
		MaxFeeRatioBps:    cfg.MaxFeeRatioBps,
		GasLimit:          cfg.GasLimit,
	}, channel, backend, estimator, m, logger)

	b, err := New(cfg, scanner, guard, locker, cb, submitter, m, logger)
	if err != nil {
		return nil, err
	}
	return &Environment{Bot: b, Ledger: l, Backend: backend, Metrics: m, Channel: channel}, nil
}

// buildChannel honors the configured submission channel.
func buildChannel(ctx context.Context, cfg *config.Config, backend *ledger.ExecutionBackend, relay *RelayDeps, logger *zap.Logger) (submit.Channel, error) {
	switch cfg.Channel {
	case "public":
		return submit.NewPublic(backend, logger), nil
	case "private":
		if cfg.FlashbotsRPC == "" {
			return nil, fmt.Errorf("channel %q configured without a relay endpoint", cfg.Channel)
		}
		if relay == nil {
			return nil, fmt.Errorf("channel %q configured without a transaction signer and chain sources", cfg.Channel)
		}
		return NewRelayChannel(ctx, cfg, relay.Build, relay.Head, relay.Included, logger)
	default:
		return nil, fmt.Errorf("unknown submission channel %q", cfg.Channel)
	}
}

// buildVenues registers each configured pool on the ledger and returns the
// venue adapters reading from it. A concentrated pool expands into one
// venue per fee tier, each with its own pool address.
func buildVenues(cfg *config.Config, l *ledger.Ledger) ([]dex.Venue, map[string]common.Address, error) {
	var venues []dex.Venue
	venueAddr := make(map[string]common.Address)

	for _, vc := range cfg.Venues {
		switch vc.Kind {
		case "constant_product":
			if vc.Reserve0 == nil || vc.Reserve1 == nil {
				return nil, nil, fmt.Errorf("venue %s: missing seed reserves", vc.Name)
			}
			l.RegisterPair(vc.Address, vc.Token0, vc.Token1, vc.Reserve0, vc.Reserve1, vc.FeeBps)
			v := constprod.New(vc.Name, vc.Address, vc.Token0, vc.Token1, vc.FeeBps, l)
			venues = append(venues, v)
			venueAddr[v.Key()] = vc.Address
		case "concentrated":
			if vc.SqrtPriceX96 == nil || vc.Liquidity == nil {
				return nil, nil, fmt.Errorf("venue %s: missing seed price state", vc.Name)
			}
			for _, tier := range vc.FeeTiers {
				addr := tierAddr(vc.Address, tier)
				l.RegisterTierPool(addr, vc.Token0, vc.Token1, tier, vc.SqrtPriceX96, vc.Liquidity)
				v := clpool.New(vc.Name, addr, vc.Token0, vc.Token1, tier, l)
				venues = append(venues, v)
				venueAddr[v.Key()] = addr
			}
		default:
			return nil, nil, fmt.Errorf("venue %s: unknown kind %q", vc.Name, vc.Kind)
		}
	}
	return venues, venueAddr, nil
}

// NewRelayChannel builds the private delivery path against a real relay.
// The auth key identifies the searcher to the relay and never holds funds.
func NewRelayChannel(ctx context.Context, cfg *config.Config, build submit.TxBuilder, head submit.HeadSource, included submit.InclusionChecker, logger *zap.Logger) (*submit.PrivateChannel, error) {
	keyHex, err := config.GetRequiredEnv(config.EnvFlashbotsKey)
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay auth key: %w", err)
	}
	relay := flashbots.NewClient(cfg.FlashbotsRPC, key, new(big.Int).SetUint64(cfg.ChainID))

	// Best-effort reputation read; a cold key or unreachable stats
	// endpoint must not block startup.
	if n, err := head.BlockNumber(ctx); err == nil {
		if stats, err := relay.GetUserStats(ctx, n); err != nil {
			logger.Debug("relay stats unavailable", zap.Error(err))
		} else {
			logger.Info("relay reputation",
				zap.Bool("high_priority", stats.IsHighPriority),
				zap.String("all_time_miner_payments", stats.AllTimeMinerPayments))
		}
	}
	return submit.NewPrivate(relay, head, included, build, cfg.BlockSpan, cfg.SubmitTimeout, logger), nil
}

// deployAddr fills in a deterministic address when the config leaves one
// unset, so a minimal config still runs.
func deployAddr(configured common.Address, role string) common.Address {
	if configured != (common.Address{}) {
		return configured
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(role))[:20])
}

// tierAddr derives a distinct pool address per fee tier of a concentrated
// venue.
func tierAddr(base common.Address, feeBps uint32) common.Address {
	return common.BytesToAddress(crypto.Keccak256(base.Bytes(), []byte{byte(feeBps >> 8), byte(feeBps)})[:20])
}
