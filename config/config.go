package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"
)

type Config struct {
	// Chain and network settings
	ChainID      uint64 `json:"chain_id" yaml:"chain_id"`
	RPCEndpoint  string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	FlashbotsRPC string `json:"flashbots_rpc" yaml:"flashbots_rpc"`

	// Scanned pair and sizing
	TokenIn   common.Address `json:"token_in" yaml:"token_in"`
	TokenOut  common.Address `json:"token_out" yaml:"token_out"`
	Principal *big.Int       `json:"principal" yaml:"principal"`
	MinProfit *big.Int       `json:"min_profit" yaml:"min_profit"`

	// Loan and route bounds
	PremiumBps           uint32 `json:"premium_bps" yaml:"premium_bps"`
	SlippageToleranceBps uint32 `json:"slippage_tolerance_bps" yaml:"slippage_tolerance_bps"`
	MaxPriceImpactBps    uint32 `json:"max_price_impact_bps" yaml:"max_price_impact_bps"`

	// Scan loop
	ScanInterval   time.Duration `json:"scan_interval" yaml:"scan_interval"`
	ReadsPerSecond float64       `json:"reads_per_second" yaml:"reads_per_second"`

	// Submission gates
	MaxOpportunityAge time.Duration `json:"max_opportunity_age" yaml:"max_opportunity_age"`
	MaxFeeRatioBps    uint32        `json:"max_fee_ratio_bps" yaml:"max_fee_ratio_bps"`
	GasLimit          uint64        `json:"gas_limit" yaml:"gas_limit"`

	// Delivery path
	Channel       string        `json:"channel" yaml:"channel"` // "public" or "private"
	BlockSpan     uint64        `json:"block_span" yaml:"block_span"`
	SubmitTimeout time.Duration `json:"submit_timeout" yaml:"submit_timeout"`

	// Execution mutex
	RedisAddr     string        `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `json:"redis_password" yaml:"redis_password"`
	LockTTL       time.Duration `json:"lock_ttl" yaml:"lock_ttl"`

	// Circuit breaker
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// Venue universe
	Venues []VenueConfig `json:"venues" yaml:"venues"`

	// On-ledger deployment addresses
	LenderAddress    common.Address `json:"lender_address" yaml:"lender_address"`
	ContractAddress  common.Address `json:"contract_address" yaml:"contract_address"`
	OperatorAddress  common.Address `json:"operator_address" yaml:"operator_address"`
	LenderLiquidity  *big.Int       `json:"lender_liquidity" yaml:"lender_liquidity"`

	// Feature flags
	PrometheusEnabled  bool   `json:"prometheus_enabled" yaml:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint" yaml:"prometheus_endpoint"`

	// Internal components
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// VenueConfig describes one venue adapter. A concentrated pool with
// several fee tiers expands into one venue per tier.
type VenueConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Kind     string         `json:"kind" yaml:"kind"` // "constant_product" or "concentrated"
	Address  common.Address `json:"address" yaml:"address"`
	Token0   common.Address `json:"token0" yaml:"token0"`
	Token1   common.Address `json:"token1" yaml:"token1"`
	FeeBps   uint32         `json:"fee_bps" yaml:"fee_bps"`
	FeeTiers []uint32       `json:"fee_tiers" yaml:"fee_tiers"`

	// Seed state for locally hosted pools; ignored when reading over RPC.
	Reserve0     *big.Int `json:"reserve0,omitempty" yaml:"reserve0,omitempty"`
	Reserve1     *big.Int `json:"reserve1,omitempty" yaml:"reserve1,omitempty"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96,omitempty" yaml:"sqrt_price_x96,omitempty"`
	Liquidity    *big.Int `json:"liquidity,omitempty" yaml:"liquidity,omitempty"`
}

type CircuitBreakerConfig struct {
	MaxFailures  int           `json:"max_failures" yaml:"max_failures"`
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`
}

func (c *Config) ValidateConfig() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.Principal == nil || c.Principal.Sign() <= 0 {
		errors = append(errors, "principal must be positive")
	}
	if c.MinProfit == nil || c.MinProfit.Sign() < 0 {
		errors = append(errors, "min_profit must be non-negative")
	}
	if c.TokenIn == c.TokenOut {
		errors = append(errors, "token_in and token_out must differ")
	}
	if len(c.Venues) < 2 {
		errors = append(errors, "at least two venues are required for a round trip")
	}
	for i, v := range c.Venues {
		switch v.Kind {
		case "constant_product":
			if v.FeeBps >= 10000 {
				errors = append(errors, fmt.Sprintf("venue %d: fee_bps must be below 10000", i))
			}
		case "concentrated":
			if len(v.FeeTiers) == 0 {
				errors = append(errors, fmt.Sprintf("venue %d: concentrated venue needs fee_tiers", i))
			}
		default:
			errors = append(errors, fmt.Sprintf("venue %d: unknown kind %q", i, v.Kind))
		}
	}
	if c.Channel != "public" && c.Channel != "private" {
		errors = append(errors, fmt.Sprintf("channel must be public or private, got %q", c.Channel))
	}
	if c.CircuitBreaker.MaxFailures <= 0 {
		errors = append(errors, "circuit breaker max_failures must be positive")
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		errors = append(errors, "circuit breaker reset_timeout must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// LoadConfig reads the config file (JSON or YAML by extension), applies
// environment overrides, and validates the result.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".arbbot.json")
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch filepath.Ext(cfgFile) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	config.Logger = logger

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Logger:               zap.NewNop(),
		ChainID:              1,
		RPCEndpoint:          "http://localhost:8545",
		FlashbotsRPC:         "https://relay.flashbots.net",
		Principal:            big.NewInt(1000000000000000000), // 1 ETH
		MinProfit:            big.NewInt(10000000000000000),   // 0.01 ETH
		PremiumBps:           9,
		SlippageToleranceBps: 200,
		MaxPriceImpactBps:    100,
		ScanInterval:         time.Second,
		ReadsPerSecond:       10,
		MaxOpportunityAge:    3 * time.Second,
		MaxFeeRatioBps:       5000,
		GasLimit:             600_000,
		Channel:              "private",
		BlockSpan:            3,
		SubmitTimeout:        45 * time.Second,
		LockTTL:              30 * time.Second,
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  5,
			ResetTimeout: time.Minute,
		},
		PrometheusEnabled:  false,
		PrometheusEndpoint: ":9090",
	}
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv(EnvRPCEndpoint); v != "" {
		c.RPCEndpoint = v
	}
	if v := os.Getenv(EnvFlashbotsRelay); v != "" {
		c.FlashbotsRPC = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.RedisPassword = v
	}
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}
