package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/host"
)

const (
	defaultAppName        = "Custody"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultAccessTTL      = 15 * time.Minute
	defaultChallengeTTL   = 5 * time.Minute
	defaultLevelDBPath    = "data/custody"
	defaultBankAsset      = "native"
	defaultFaucetMax      = 1_000_000_000
	defaultEventStreamLen = 10_000

	// DefaultProgramID is the program id the ledger derives its addresses under.
	DefaultProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLevelDB  = "leveldb"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	StoreBackend   string
	DatabaseURL    string
	LevelDBPath    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret      string
	AccessTokenTTL time.Duration
	ChallengeTTL   time.Duration

	ProgramID   address.Address
	BankAsset   string
	RentPerByte uint64

	FaucetEnabled   bool
	FaucetMaxAmount uint64

	EventStream       string
	EventStreamMaxLen int64
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "json")),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		LevelDBPath:       getEnv("LEVELDB_PATH", defaultLevelDBPath),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		BankAsset:         getEnv("BANK_ASSET", defaultBankAsset),
		EventStream:       getEnv("EVENT_STREAM", "custody:events"),
		EventStreamMaxLen: defaultEventStreamLen,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTL, err = durationEnv("CHALLENGE_TTL", defaultChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.RentPerByte, err = uintEnv("RENT_PER_BYTE", host.DefaultRentPerByte); err != nil {
		return Config{}, err
	}
	if cfg.FaucetMaxAmount, err = uintEnv("FAUCET_MAX_AIRDROP", defaultFaucetMax); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("EVENT_STREAM_MAXLEN"); v != "" {
		if cfg.EventStreamMaxLen, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("invalid EVENT_STREAM_MAXLEN: %w", err)
		}
	}

	cfg.FaucetEnabled = cfg.IsDev()
	if v := os.Getenv("FAUCET_ENABLED"); v != "" {
		if cfg.FaucetEnabled, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("invalid FAUCET_ENABLED: %w", err)
		}
	}

	if cfg.ProgramID, err = address.Parse(getEnv("PROGRAM_ID", DefaultProgramID)); err != nil {
		return Config{}, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	// mints are case-sensitive base58; only the native keyword is folded
	if strings.EqualFold(cfg.BankAsset, defaultBankAsset) {
		cfg.BankAsset = defaultBankAsset
	} else if _, err := address.Parse(cfg.BankAsset); err != nil {
		return Config{}, fmt.Errorf("invalid BANK_ASSET: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case BackendLevelDB:
		if cfg.LevelDBPath == "" {
			return Config{}, fmt.Errorf("LEVELDB_PATH must be set when STORE_BACKEND=leveldb")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if !cfg.IsDev() {
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.JWTSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.StoreBackend == BackendMemory {
			return Config{}, fmt.Errorf("STORE_BACKEND=memory is only allowed in development")
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-me"
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv accepts KEY as a Go duration or KEY_SECONDS as whole seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func uintEnv(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
