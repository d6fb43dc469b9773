// Package config loads the gateway's runtime configuration from CLI flags,
// environment variables, and an optional YAML overlay, in that precedence
// order (flag > env > yaml > default).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// driftMainnetProgramID is the on-chain Drift Protocol program's address;
// used as the default unless --program-id overrides it (e.g. for devnet).
const driftMainnetProgramID = "dRiftyHA39MWEi3m9aunc5MCKLXcgfQGQUyeuVeiB8Q"

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// GatewayConfig is the merged, immutable view of how the gateway process
// should run. It is built once in main and threaded explicitly to every
// component — nothing below this layer re-reads the environment.
type GatewayConfig struct {
	RPCURL    string
	ExtraRPCs []string

	Host              string
	Port              int
	WsPort            int
	KeepAliveTimeout  time.Duration
	AllowedOrigins    []string

	Dev                 bool
	Verbose             bool
	Markets             []string
	ProgramID           solana.PublicKey
	Delegate            *solana.PublicKey
	Emulate             *solana.PublicKey
	Commitment          rpc.CommitmentType
	TxCommitment        rpc.CommitmentType
	DefaultSubAccountID uint16
	SkipTxPreflight     bool

	PriorityFeePercentile  float64
	PriorityFeeRefresh     time.Duration
	PriorityFeeWindow      int
	PriorityFeeFloor       uint64
	ComputeUnitLimit       uint32
	DefaultTxTTL           time.Duration

	SignerKeyOrPath  string
	InitRPCThrottle  time.Duration

	DBDSN string

	Log LogConfig
}

// LoadGatewayConfig parses argv (POSIX-style, e.g. "--host 0.0.0.0") plus the
// process environment, optionally overlaid with a YAML file named by
// --config, and returns the merged configuration. argv must not include the
// program name (pass os.Args[1:]).
func LoadGatewayConfig(argv []string) (GatewayConfig, error) {
	flags := pflag.NewFlagSet("drift-gateway", pflag.ContinueOnError)

	flags.Bool("dev", false, "run against a local validator with relaxed defaults")
	flags.String("host", "127.0.0.1", "HTTP listen host")
	flags.Int("port", 8080, "HTTP listen port")
	flags.Int("ws-port", 1337, "WebSocket port (parsed only; the /ws endpoint is served on --port)")
	flags.String("delegate", "", "sign as this delegate authority")
	flags.String("emulate", "", "read-only: emulate this authority")
	flags.String("commitment", "confirmed", "query commitment: processed|confirmed|finalized")
	flags.String("tx-commitment", "confirmed", "submit commitment: processed|confirmed|finalized (parsed only; submits use --commitment for preflight)")
	flags.Uint16("default-sub-account-id", 0, "default sub-account id (parsed only; a request that omits subAccountId uses 0)")
	flags.Bool("skip-tx-preflight", false, "skip RPC preflight simulation on submit")
	flags.String("markets", "", "comma-separated list of markets (parsed only; nothing is subscribed on boot)")
	flags.String("program-id", driftMainnetProgramID, "Drift program id to address instructions to")
	flags.String("extra-rpcs", "", "comma-separated secondary RPC URLs for broadcast redundancy")
	flags.Duration("keep-alive-timeout", 3600*time.Second, "HTTP keep-alive timeout")
	flags.Bool("verbose", false, "enable verbose (debug) logging")
	flags.String("config", "", "optional YAML config file overlay")
	flags.Float64("priority-fee-percentile", 0.90, "priority-fee oracle percentile (0..1) (parsed only; the translator always uses 0.90)")

	if err := flags.Parse(argv); err != nil {
		return GatewayConfig{}, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DRIFT_GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(flags); err != nil {
		return GatewayConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	if configPath, _ := flags.GetString("config"); configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return GatewayConfig{}, fmt.Errorf("read config file %q: %w", configPath, err)
		}
	}

	positional := flags.Args()
	rpcURL := v.GetString("rpc-url")
	if len(positional) > 0 {
		rpcURL = positional[0]
	}
	if rpcURL == "" {
		if v.GetBool("dev") {
			rpcURL = "http://127.0.0.1:8899"
		} else {
			return GatewayConfig{}, fmt.Errorf("rpc url is required (positional argument or DRIFT_GATEWAY_RPC_URL)")
		}
	}

	commitment, err := parseCommitment(v.GetString("commitment"))
	if err != nil {
		return GatewayConfig{}, err
	}
	txCommitment, err := parseCommitment(v.GetString("tx-commitment"))
	if err != nil {
		return GatewayConfig{}, err
	}

	programID, err := solana.PublicKeyFromBase58(v.GetString("program-id"))
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("invalid --program-id: %w", err)
	}

	var delegate *solana.PublicKey
	if raw := strings.TrimSpace(v.GetString("delegate")); raw != "" {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("invalid --delegate: %w", err)
		}
		delegate = &pk
	}
	var emulate *solana.PublicKey
	if raw := strings.TrimSpace(v.GetString("emulate")); raw != "" {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("invalid --emulate: %w", err)
		}
		emulate = &pk
	}

	initThrottleSec, err := envInt("INIT_RPC_THROTTLE", 1)
	if err != nil {
		return GatewayConfig{}, err
	}

	signerKeyOrPath := strings.TrimSpace(os.Getenv("DRIFT_GATEWAY_KEY"))

	return GatewayConfig{
		RPCURL:                rpcURL,
		ExtraRPCs:             parseCSV(v.GetString("extra-rpcs")),
		Host:                  v.GetString("host"),
		Port:                  v.GetInt("port"),
		WsPort:                v.GetInt("ws-port"),
		KeepAliveTimeout:      v.GetDuration("keep-alive-timeout"),
		AllowedOrigins:        []string{"*"},
		Dev:                   v.GetBool("dev"),
		Verbose:               v.GetBool("verbose"),
		Markets:               parseCSV(v.GetString("markets")),
		ProgramID:             programID,
		Delegate:              delegate,
		Emulate:               emulate,
		Commitment:            commitment,
		TxCommitment:          txCommitment,
		DefaultSubAccountID:   uint16(v.GetUint32("default-sub-account-id")),
		SkipTxPreflight:       v.GetBool("skip-tx-preflight"),
		PriorityFeePercentile: v.GetFloat64("priority-fee-percentile"),
		PriorityFeeRefresh:    4 * time.Second,
		PriorityFeeWindow:     150,
		PriorityFeeFloor:      1000,
		ComputeUnitLimit:      0,
		DefaultTxTTL:          6 * time.Second,
		SignerKeyOrPath:       signerKeyOrPath,
		InitRPCThrottle:       time.Duration(initThrottleSec) * time.Second,
		DBDSN:                 envOrDefault("DRIFT_GATEWAY_DB_DSN", ""),
		Log:                   buildLogConfig("DRIFT_GATEWAY", "drift-gateway"),
	}, nil
}

func parseCommitment(raw string) (rpc.CommitmentType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("invalid commitment %q (expected processed|confirmed|finalized)", raw)
	}
}

func parseCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join(".docker", serviceName, serviceName+".log")))

	return LogConfig{
		Level:    level,
		Format:   format,
		Output:   output,
		FilePath: filePath,
	}
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// ExpandHomePath resolves a leading "~" to the current user's home
// directory, mirroring the keypair-path resolution used throughout this
// codebase.
func ExpandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
