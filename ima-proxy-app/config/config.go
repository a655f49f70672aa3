package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"

	apisrv "github.com/compose-network/ima-proxy/server/api"
	"github.com/compose-network/ima-proxy/x/bls"
	"github.com/compose-network/ima-proxy/x/bridge"
	"github.com/compose-network/ima-proxy/x/chains"
)

// Config holds the complete application configuration
type Config struct {
	Chain     ChainConfig     `mapstructure:"chain"     yaml:"chain"`
	Contracts ContractsConfig `mapstructure:"contracts" yaml:"contracts"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	Keys      KeysConfig      `mapstructure:"keys"      yaml:"keys"`
	Security  SecurityConfig  `mapstructure:"security"  yaml:"security"`
	Community CommunityConfig `mapstructure:"community" yaml:"community"`
	API       APIServerConfig `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
}

// ChainConfig describes the local chain and its governance accounts
type ChainConfig struct {
	Name          string   `mapstructure:"name"           yaml:"name"           env:"CHAIN_NAME"`
	Admins        []string `mapstructure:"admins"         yaml:"admins"`
	SchainOwner   string   `mapstructure:"schain_owner"   yaml:"schain_owner"   env:"CHAIN_SCHAIN_OWNER"`
	TokenManagers int      `mapstructure:"token_managers" yaml:"token_managers" env:"CHAIN_TOKEN_MANAGERS"`
}

// ContractsConfig holds bridge contract addresses, 0x-hex
type ContractsConfig struct {
	Linker             string `mapstructure:"linker"               yaml:"linker"`
	CommunityPool      string `mapstructure:"community_pool"       yaml:"community_pool"`
	DepositBoxEth      string `mapstructure:"deposit_box_eth"      yaml:"deposit_box_eth"`
	TokenManagerLinker string `mapstructure:"token_manager_linker" yaml:"token_manager_linker"`
	CommunityLocker    string `mapstructure:"community_locker"     yaml:"community_locker"`
	TokenManagerEth    string `mapstructure:"token_manager_eth"    yaml:"token_manager_eth"`
}

// StoreConfig selects the state backend
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" env:"STORE_DRIVER"`
	Dir    string `mapstructure:"dir"    yaml:"dir"    env:"STORE_DIR"`
	File   string `mapstructure:"file"   yaml:"file"   env:"STORE_FILE"`
}

// KeysConfig lists the BLS keys of remote chains (and the local one, for gas price updates)
type KeysConfig struct {
	Common  []CommonKey    `mapstructure:"common"  yaml:"common"`
	Quorums []QuorumConfig `mapstructure:"quorums" yaml:"quorums"`
}

// CommonKey is the aggregate key a chain signs batches with
type CommonKey struct {
	Chain     string `mapstructure:"chain"      yaml:"chain"`
	PublicKey string `mapstructure:"public_key" yaml:"public_key"`
}

// QuorumConfig is a weighted validator set with its threshold fraction
type QuorumConfig struct {
	Chain       string            `mapstructure:"chain"       yaml:"chain"`
	Numerator   uint64            `mapstructure:"numerator"   yaml:"numerator"`
	Denominator uint64            `mapstructure:"denominator" yaml:"denominator"`
	Validators  []ValidatorConfig `mapstructure:"validators"  yaml:"validators"`
}

type ValidatorConfig struct {
	PublicKey string `mapstructure:"public_key" yaml:"public_key"`
	Weight    uint64 `mapstructure:"weight"     yaml:"weight"`
}

// SecurityConfig holds batch authentication settings
type SecurityConfig struct {
	Symmetric bool     `mapstructure:"symmetric" yaml:"symmetric" env:"SECURITY_SYMMETRIC"`
	Relayers  []string `mapstructure:"relayers"  yaml:"relayers"`
}

// CommunityConfig seeds the gas ledger
type CommunityConfig struct {
	MinTransactionGas   uint64        `mapstructure:"min_transaction_gas"    yaml:"min_transaction_gas"`
	GasPrice            string        `mapstructure:"gas_price"              yaml:"gas_price"`
	TimeLimitPerMessage time.Duration `mapstructure:"time_limit_per_message" yaml:"time_limit_per_message"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	apisrv.Config `mapstructure:",squash" yaml:",inline"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Port    int    `mapstructure:"port"    yaml:"port"    env:"METRICS_PORT"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("chain.name", "")
	v.SetDefault("chain.token_managers", d.Chain.TokenManagers)

	v.SetDefault("contracts.token_manager_linker", d.Contracts.TokenManagerLinker)
	v.SetDefault("contracts.community_locker", d.Contracts.CommunityLocker)
	v.SetDefault("contracts.token_manager_eth", d.Contracts.TokenManagerEth)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.file", d.Store.File)

	v.SetDefault("security.symmetric", false)

	v.SetDefault("community.min_transaction_gas", d.Community.MinTransactionGas)
	v.SetDefault("community.gas_price", d.Community.GasPrice)
	v.SetDefault("community.time_limit_per_message", "0s")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)
	v.SetDefault("api.max_body_bytes", 10*1024*1024) // 10MB
	v.SetDefault("api.max_signature_skew", "5m")
	v.SetDefault("api.cors", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if err := c.validateContracts(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateKeys(); err != nil {
		return err
	}
	if err := c.validateCommunity(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateChain() error {
	if strings.TrimSpace(c.Chain.Name) == "" {
		return fmt.Errorf("chain.name is required")
	}
	if len(c.Chain.Admins) == 0 {
		return fmt.Errorf("chain.admins must list at least one address")
	}
	for _, a := range c.Chain.Admins {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("chain.admins contains invalid address %q", a)
		}
	}
	if c.Chain.SchainOwner != "" && !common.IsHexAddress(c.Chain.SchainOwner) {
		return fmt.Errorf("chain.schain_owner is not an address: %q", c.Chain.SchainOwner)
	}
	if c.Chain.TokenManagers <= 0 {
		return fmt.Errorf("chain.token_managers must be positive, got %d", c.Chain.TokenManagers)
	}
	for _, r := range c.Security.Relayers {
		if !common.IsHexAddress(r) {
			return fmt.Errorf("security.relayers contains invalid address %q", r)
		}
	}
	return nil
}

func (c *Config) validateContracts() error {
	fields := map[string]string{
		"contracts.linker":               c.Contracts.Linker,
		"contracts.community_pool":       c.Contracts.CommunityPool,
		"contracts.deposit_box_eth":      c.Contracts.DepositBoxEth,
		"contracts.token_manager_linker": c.Contracts.TokenManagerLinker,
		"contracts.community_locker":     c.Contracts.CommunityLocker,
		"contracts.token_manager_eth":    c.Contracts.TokenManagerEth,
	}
	for name, v := range fields {
		if !common.IsHexAddress(v) || common.HexToAddress(v) == (common.Address{}) {
			return fmt.Errorf("%s must be a non-zero address, got %q", name, v)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "memory":
		return nil
	case "sqlite":
		if strings.TrimSpace(c.Store.File) == "" {
			return fmt.Errorf("store.file is required for the sqlite driver")
		}
		return nil
	default:
		return fmt.Errorf("store.driver must be memory or sqlite, got %q", c.Store.Driver)
	}
}

func (c *Config) validateKeys() error {
	_, _, err := c.keys()
	return err
}

func (c *Config) validateCommunity() error {
	if _, err := uint256.FromDecimal(c.Community.GasPrice); err != nil {
		return fmt.Errorf("community.gas_price must be a decimal integer: %w", err)
	}
	if c.Community.TimeLimitPerMessage < 0 {
		return fmt.Errorf("community.time_limit_per_message must not be negative")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1-65535 when metrics enabled, got %d", c.Metrics.Port)
	}
	return nil
}

// keys parses the configured BLS material.
func (c *Config) keys() (map[chains.Hash]*bls.PublicKey, map[chains.Hash]bls.Quorum, error) {
	commonKeys := make(map[chains.Hash]*bls.PublicKey, len(c.Keys.Common))
	for _, k := range c.Keys.Common {
		raw, err := hexutil.Decode(k.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("keys.common[%s]: %w", k.Chain, err)
		}
		pk, err := bls.PublicKeyFromBytes(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("keys.common[%s]: %w", k.Chain, err)
		}
		commonKeys[chains.HashName(k.Chain)] = pk
	}

	quorums := make(map[chains.Hash]bls.Quorum, len(c.Keys.Quorums))
	for _, q := range c.Keys.Quorums {
		validators := make([]*bls.Validator, 0, len(q.Validators))
		for i, v := range q.Validators {
			raw, err := hexutil.Decode(v.PublicKey)
			if err != nil {
				return nil, nil, fmt.Errorf("keys.quorums[%s].validators[%d]: %w", q.Chain, i, err)
			}
			val, err := bls.NewValidator(raw, v.Weight)
			if err != nil {
				return nil, nil, fmt.Errorf("keys.quorums[%s].validators[%d]: %w", q.Chain, i, err)
			}
			validators = append(validators, val)
		}
		set, err := bls.NewValidatorSet(validators)
		if err != nil {
			return nil, nil, fmt.Errorf("keys.quorums[%s]: %w", q.Chain, err)
		}
		if q.Numerator == 0 || q.Denominator == 0 || q.Numerator > q.Denominator {
			return nil, nil, fmt.Errorf("keys.quorums[%s]: invalid threshold %d/%d", q.Chain, q.Numerator, q.Denominator)
		}
		quorums[chains.HashName(q.Chain)] = bls.Quorum{Set: set, Numerator: q.Numerator, Denominator: q.Denominator}
	}
	return commonKeys, quorums, nil
}

// NodeConfig converts the validated configuration into the node wiring config.
func (c *Config) NodeConfig() (bridge.Config, error) {
	commonKeys, quorums, err := c.keys()
	if err != nil {
		return bridge.Config{}, err
	}
	price, err := uint256.FromDecimal(c.Community.GasPrice)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("community.gas_price: %w", err)
	}

	out := bridge.Config{
		Chain: c.Chain.Name,
		Contracts: bridge.Contracts{
			Linker:             common.HexToAddress(c.Contracts.Linker),
			CommunityPool:      common.HexToAddress(c.Contracts.CommunityPool),
			DepositBoxEth:      common.HexToAddress(c.Contracts.DepositBoxEth),
			TokenManagerLinker: common.HexToAddress(c.Contracts.TokenManagerLinker),
			CommunityLocker:    common.HexToAddress(c.Contracts.CommunityLocker),
			TokenManagerEth:    common.HexToAddress(c.Contracts.TokenManagerEth),
		},
		Symmetric:           c.Security.Symmetric,
		TokenManagers:       c.Chain.TokenManagers,
		CommonKeys:          commonKeys,
		Quorums:             quorums,
		MinTransactionGas:   c.Community.MinTransactionGas,
		GasPrice:            price,
		TimeLimitPerMessage: c.Community.TimeLimitPerMessage,
	}
	for _, a := range c.Chain.Admins {
		out.Admins = append(out.Admins, common.HexToAddress(a))
	}
	for _, r := range c.Security.Relayers {
		out.Relayers = append(out.Relayers, common.HexToAddress(r))
	}
	if c.Chain.SchainOwner != "" {
		out.SchainOwner = common.HexToAddress(c.Chain.SchainOwner)
	}
	return out, nil
}

// Default returns default configuration
func Default() *Config {
	contracts := bridge.DefaultContracts()
	return &Config{
		Chain: ChainConfig{
			TokenManagers: 1,
		},
		Contracts: ContractsConfig{
			TokenManagerLinker: contracts.TokenManagerLinker.Hex(),
			CommunityLocker:    contracts.CommunityLocker.Hex(),
			TokenManagerEth:    contracts.TokenManagerEth.Hex(),
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Dir:    "data",
			File:   "ima-proxy.db",
		},
		Community: CommunityConfig{
			MinTransactionGas: 1_000_000,
			GasPrice:          "0",
		},
		API: APIServerConfig{
			Enabled: true,
			Config:  apisrv.DefaultConfig(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
