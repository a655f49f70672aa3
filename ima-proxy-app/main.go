package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/ima-proxy/ima-proxy-app/config"
	"github.com/compose-network/ima-proxy/log"
	"github.com/compose-network/ima-proxy/x/bls"
)

var (
	cfgFile string
	envFile string
	rootCmd = &cobra.Command{
		Use:   "ima-proxy",
		Short: "IMA message proxy node",
		Long: "Runs the message proxy of one chain: ordered outgoing queues, signature-checked " +
			"incoming batches, connection lifecycle and the community gas ledger.",
		RunE: runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate a BLS signing key and an ECDSA operator key",
		RunE:  runKeygen,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initEnv)

	rootCmd.AddCommand(versionCmd, configCmd, keygenCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "ima-proxy-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the config")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Server flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")
	rootCmd.PersistentFlags().String("chain", "", "local chain name")

	// Metrics flags
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")
	rootCmd.PersistentFlags().Int("metrics-port", 0, "metrics server port")
}

// initEnv loads the dotenv file so its values reach viper's env lookup.
func initEnv() {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", envFile, err)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after flags: %w", err)
	}
	return cfg, nil
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("chain", cfg.Chain.Name).
		Str("store", cfg.Store.Driver).
		Str("listen_addr", cfg.API.ListenAddr).
		Int("metrics_port", cfg.Metrics.Port).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("IMA Message Proxy\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	blsKey, err := bls.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate BLS key: %w", err)
	}
	ecdsaKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate ECDSA key: %w", err)
	}

	out := map[string]map[string]string{
		"bls": {
			"secret_key": hexutil.Encode(blsKey.Bytes()),
			"public_key": hexutil.Encode(bls.PublicKeyToBytes(blsKey.PublicKey())),
		},
		"operator": {
			"private_key": hexutil.Encode(crypto.FromECDSA(ecdsaKey)),
			"address":     crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		},
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(out)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("chain").Changed {
		cfg.Chain.Name, _ = cmd.Flags().GetString("chain")
	}

	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}
	if cmd.Flag("metrics-port").Changed {
		cfg.Metrics.Port, _ = cmd.Flags().GetInt("metrics-port")
	}
}
