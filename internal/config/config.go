// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	AccessSecret  string        // must be set
	RefreshSecret string        // must be set
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 720h (30 days)
}

// CurveConfig holds the bonding curve shape. All outcomes of all markets
// share one curve; changing these after launch reprices every open market,
// so they are read once at boot.
type CurveConfig struct {
	TotalSupply float64 // shares per outcome, default 1e9
	Phase1End   float64 // anchor phase end, default 90M
	Phase2End   float64 // bridge phase end, default 110M
	PStart      float64 // launch price
	PAnchorEnd  float64 // price at Phase1End
	PBridgeEnd  float64 // price at Phase2End
	PMax        float64 // price ceiling, never reached
	K           float64 // ignition ramp constant
}

// FeeConfig holds fee rates and splits.
type FeeConfig struct {
	FeeRate           float64 // standard trading fee, default 0.01
	BotFeeRate        float64 // same-slot escalated fee, default 0.15
	ResolutionFeeRate float64 // off the net pool at resolution, default 0.02
	CreationFee       float64 // flat fee to open a market, default 0.05
}

// GuardConfig holds abuse-guard parameters.
type GuardConfig struct {
	WhaleCapPct   float64       // per-wallet per-outcome supply cap, default 0.05
	MaxAmount     float64       // per-trade collateral ceiling
	ClaimTimelock time.Duration // default 2h
	SlotDuration  time.Duration // anti-bot slot width, default 400ms
	CloseWindow   time.Duration // resolved -> closed sweep delay, default 72h
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	JWT    JWTConfig
	Curve  CurveConfig
	Fees   FeeConfig
	Guard  GuardConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	// JWT secrets are mandatory
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	// Curve shape ordering
	if !(c.Curve.Phase1End > 0 && c.Curve.Phase1End < c.Curve.Phase2End && c.Curve.Phase2End < c.Curve.TotalSupply) {
		errs = append(errs, fmt.Errorf(
			"curve phases must satisfy 0 < PHASE1_END < PHASE2_END < TOTAL_SUPPLY, got %g / %g / %g",
			c.Curve.Phase1End, c.Curve.Phase2End, c.Curve.TotalSupply,
		))
	}
	if !(c.Curve.PStart > 0 && c.Curve.PStart < c.Curve.PAnchorEnd &&
		c.Curve.PAnchorEnd < c.Curve.PBridgeEnd && c.Curve.PBridgeEnd < c.Curve.PMax) {
		errs = append(errs, fmt.Errorf(
			"curve prices must strictly increase: %g < %g < %g < %g",
			c.Curve.PStart, c.Curve.PAnchorEnd, c.Curve.PBridgeEnd, c.Curve.PMax,
		))
	}
	if c.Curve.K <= 0 {
		errs = append(errs, fmt.Errorf("CURVE_K must be positive, got %g", c.Curve.K))
	}

	// Fee sanity checks
	for name, rate := range map[string]float64{
		"FEE_RATE":            c.Fees.FeeRate,
		"BOT_FEE_RATE":        c.Fees.BotFeeRate,
		"RESOLUTION_FEE_RATE": c.Fees.ResolutionFeeRate,
	} {
		if rate <= 0 || rate >= 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1 (exclusive), got %.4f", name, rate))
		}
	}
	if c.Guard.WhaleCapPct <= 0 || c.Guard.WhaleCapPct > 1 {
		errs = append(errs, fmt.Errorf("WHALE_CAP_PCT must be in (0, 1], got %.4f", c.Guard.WhaleCapPct))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		// .env is optional; real deployments set the environment directly
		_ = godotenv.Load()
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "evetabi_curvemarket"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}

	// ── Curve ─────────────────────────────────────────────────────────────────
	curveVals := map[string]*struct {
		def float64
		out *float64
	}{
		"CURVE_TOTAL_SUPPLY": {1_000_000_000, &cfg.Curve.TotalSupply},
		"CURVE_PHASE1_END":   {90_000_000, &cfg.Curve.Phase1End},
		"CURVE_PHASE2_END":   {110_000_000, &cfg.Curve.Phase2End},
		"CURVE_P_START":      {0.000001, &cfg.Curve.PStart},
		"CURVE_P_ANCHOR_END": {0.0000027, &cfg.Curve.PAnchorEnd},
		"CURVE_P_BRIDGE_END": {0.000015, &cfg.Curve.PBridgeEnd},
		"CURVE_P_MAX":        {0.95, &cfg.Curve.PMax},
		"CURVE_K":            {0.000000001, &cfg.Curve.K},
	}
	for key, v := range curveVals {
		f, err := getFloat(key, v.def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*v.out = f
	}

	// ── Fees ──────────────────────────────────────────────────────────────────
	feeRate, err := getFloat("FEE_RATE", 0.01)
	if err != nil {
		return nil, fmt.Errorf("FEE_RATE: %w", err)
	}
	botRate, err := getFloat("BOT_FEE_RATE", 0.15)
	if err != nil {
		return nil, fmt.Errorf("BOT_FEE_RATE: %w", err)
	}
	resRate, err := getFloat("RESOLUTION_FEE_RATE", 0.02)
	if err != nil {
		return nil, fmt.Errorf("RESOLUTION_FEE_RATE: %w", err)
	}
	creationFee, err := getFloat("CREATION_FEE", 0.05)
	if err != nil {
		return nil, fmt.Errorf("CREATION_FEE: %w", err)
	}

	cfg.Fees = FeeConfig{
		FeeRate:           feeRate,
		BotFeeRate:        botRate,
		ResolutionFeeRate: resRate,
		CreationFee:       creationFee,
	}

	// ── Guards ────────────────────────────────────────────────────────────────
	whaleCap, err := getFloat("WHALE_CAP_PCT", 0.05)
	if err != nil {
		return nil, fmt.Errorf("WHALE_CAP_PCT: %w", err)
	}
	maxAmount, err := getFloat("MAX_TRADE_AMOUNT", 1_000_000_000)
	if err != nil {
		return nil, fmt.Errorf("MAX_TRADE_AMOUNT: %w", err)
	}

	cfg.Guard = GuardConfig{
		WhaleCapPct:   whaleCap,
		MaxAmount:     maxAmount,
		ClaimTimelock: getDuration("CLAIM_TIMELOCK", 2*time.Hour),
		SlotDuration:  getDuration("SLOT_DURATION", 400*time.Millisecond),
		CloseWindow:   getDuration("CLOSE_WINDOW", 72*time.Hour),
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
