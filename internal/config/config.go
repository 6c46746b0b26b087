// Package config provides Viper-based configuration loading for the arena daemon.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/goldarena/internal/authority"
)

// Well-known defaults for a fresh deployment.
const (
	DefaultProgramID = "4AGaHACpVPiht9vSFtEbtAQPcF5kMGLLKfcFjPhoUWgB"
	DefaultAdmin     = "DfLZV18rD7wCQwjYvhTFwuvLh49WSbXFeJFPQb5czifH"
)

// ServerConfig holds top-level daemon settings.
type ServerConfig struct {
	// Name identifies this daemon in logs and traces.
	Name string `mapstructure:"name"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// StorageConfig selects where ledger state is persisted.
type StorageConfig struct {
	// Driver is one of "memory", "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// OutputPaths are zap sink URLs or file paths. Empty means stderr.
	OutputPaths []string `mapstructure:"output_paths"`
}

// GameServerConfig holds arena gRPC service settings.
type GameServerConfig struct {
	// GRPCHost is the bind/connect address for the arena gRPC service.
	GRPCHost string `mapstructure:"grpc_host"`
	// GRPCPort is the TCP port for the arena gRPC service.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GameServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.GRPCHost, g.GRPCPort)
}

// ArenaConfig holds the game program's deployment parameters.
type ArenaConfig struct {
	// ProgramID is the base58 address records are derived under.
	ProgramID string `mapstructure:"program_id"`
	// Admin is the base58 key allowed to create the reward mint.
	Admin string `mapstructure:"admin"`
	// MaxResult is the inclusive bound of derived outcomes, 1-255.
	MaxResult uint64 `mapstructure:"max_result"`
	// StrictReplayGuard stores every delivered buffer so a redelivery never
	// applies twice.
	StrictReplayGuard bool `mapstructure:"strict_replay_guard"`
}

// Program parses ProgramID.
func (a ArenaConfig) Program() (authority.Address, error) {
	return authority.Parse(a.ProgramID)
}

// AdminKey parses Admin.
func (a ArenaConfig) AdminKey() (authority.Address, error) {
	return authority.Parse(a.Admin)
}

// RewardConfig describes the reward mint.
type RewardConfig struct {
	// Decimals is the precision given to the mint when it is created.
	Decimals uint8 `mapstructure:"decimals"`
	// Seed is the derivation tag of the mint address.
	Seed string `mapstructure:"seed"`
}

// OracleConfig holds in-process oracle node settings.
type OracleConfig struct {
	// Queue is the name of the queue feeds are created on.
	Queue string `mapstructure:"queue"`
	// OperatorKeyFile holds the queue authority keypair. Empty generates an
	// ephemeral key at startup.
	OperatorKeyFile string        `mapstructure:"operator_key_file"`
	Workers         int           `mapstructure:"workers"`
	Redeliveries    int           `mapstructure:"redeliveries"`
	Delay           time.Duration `mapstructure:"delay"`
	Backlog         int           `mapstructure:"backlog"`
	// Source is "crypto" or "hmac".
	Source string `mapstructure:"source"`
	// Seed keys the hmac source.
	Seed string `mapstructure:"seed"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	GameServer GameServerConfig `mapstructure:"gameserver"`
	Arena      ArenaConfig      `mapstructure:"arena"`
	Reward     RewardConfig     `mapstructure:"reward"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStorage(c.Storage); err != nil {
		errs = append(errs, err.Error())
	}
	// Database settings only matter when postgres is selected.
	if c.Storage.Driver == DriverPostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGameServer(c.GameServer); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateArena(c.Arena); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateReward(c.Reward); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateOracle(c.Oracle); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTracing(c.Tracing); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Name == "" {
		return errors.New("server.name must not be empty")
	}
	if s.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	return nil
}

func validateStorage(s StorageConfig) error {
	switch s.Driver {
	case DriverMemory, DriverPostgres:
		return nil
	case DriverSQLite:
		if s.SQLitePath == "" {
			return errors.New("storage.sqlite_path must not be empty for the sqlite driver")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver must be one of [memory, postgres, sqlite], got %q", s.Driver)
	}
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGameServer(g GameServerConfig) error {
	var errs []string
	if g.GRPCHost == "" {
		errs = append(errs, "gameserver.grpc_host must not be empty")
	}
	if g.GRPCPort < 1 || g.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("gameserver.grpc_port must be 1-65535, got %d", g.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateArena(a ArenaConfig) error {
	var errs []string
	if _, err := a.Program(); err != nil {
		errs = append(errs, fmt.Sprintf("arena.program_id: %v", err))
	}
	if _, err := a.AdminKey(); err != nil {
		errs = append(errs, fmt.Sprintf("arena.admin: %v", err))
	}
	if a.MaxResult < 1 || a.MaxResult > 255 {
		errs = append(errs, fmt.Sprintf("arena.max_result must be 1-255, got %d", a.MaxResult))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateReward(r RewardConfig) error {
	if r.Decimals > 19 {
		return fmt.Errorf("reward.decimals must be 0-19, got %d", r.Decimals)
	}
	if len(r.Seed) == 0 || len(r.Seed) > 32 {
		return fmt.Errorf("reward.seed must be 1-32 bytes, got %d", len(r.Seed))
	}
	return nil
}

func validateOracle(o OracleConfig) error {
	var errs []string
	if o.Queue == "" {
		errs = append(errs, "oracle.queue must not be empty")
	}
	if o.Workers < 1 {
		errs = append(errs, fmt.Sprintf("oracle.workers must be >= 1, got %d", o.Workers))
	}
	if o.Redeliveries < 0 {
		errs = append(errs, fmt.Sprintf("oracle.redeliveries must be >= 0, got %d", o.Redeliveries))
	}
	if o.Delay < 0 {
		errs = append(errs, "oracle.delay must not be negative")
	}
	if o.Backlog < 1 {
		errs = append(errs, fmt.Sprintf("oracle.backlog must be >= 1, got %d", o.Backlog))
	}
	switch o.Source {
	case "crypto":
	case "hmac":
		if o.Seed == "" {
			errs = append(errs, "oracle.seed must not be empty for the hmac source")
		}
	default:
		errs = append(errs, fmt.Sprintf("oracle.source must be one of [crypto, hmac], got %q", o.Source))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "tracing.endpoint must not be empty when tracing is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be 0-1, got %g", t.SampleRatio))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ARENA_ prefix
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
// Unset keys take their defaults.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "arenad")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arena")
	v.SetDefault("database.password", "arena")
	v.SetDefault("database.name", "arena")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.sqlite_path", "~/.goldarena/arena.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("gameserver.grpc_host", "127.0.0.1")
	v.SetDefault("gameserver.grpc_port", 50051)

	v.SetDefault("arena.program_id", DefaultProgramID)
	v.SetDefault("arena.admin", DefaultAdmin)
	v.SetDefault("arena.max_result", 100)
	v.SetDefault("arena.strict_replay_guard", false)

	v.SetDefault("reward.decimals", 9)
	v.SetDefault("reward.seed", "reward")

	v.SetDefault("oracle.queue", "default")
	v.SetDefault("oracle.workers", 2)
	v.SetDefault("oracle.redeliveries", 0)
	v.SetDefault("oracle.delay", "0s")
	v.SetDefault("oracle.backlog", 256)
	v.SetDefault("oracle.source", "crypto")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "goldarena")
	v.SetDefault("tracing.sample_ratio", 1.0)
}
