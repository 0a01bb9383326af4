package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Leader    LeaderConfig    `mapstructure:"leader"`
	Instance  InstanceConfig  `mapstructure:"instance"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

type LeaderConfig struct {
	Key              string        `mapstructure:"key"`
	TTL              time.Duration `mapstructure:"ttl"`
	ElectionInterval time.Duration `mapstructure:"election_interval"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// StorageConfig selects the backing store: "mysql" (with Redis for cache,
// events and leader election) or "memory" for a single in-process node.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type SchedulerConfig struct {
	Spec string `mapstructure:"spec"`
}

type EngineConfig struct {
	MaxBidRetries    int           `mapstructure:"max_bid_retries"`
	MaxSettleRetries int           `mapstructure:"max_settle_retries"`
	WalletTimeout    time.Duration `mapstructure:"wallet_timeout"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
}

type AdminConfig struct {
	IDs []string `mapstructure:"ids"`
}

// WalletConfig seeds balances at start-up as "user:amount" entries. Seeding
// uses a fixed reference per user, so restarts never fund anyone twice.
type WalletConfig struct {
	Seed []string `mapstructure:"seed"`
}

func (w WalletConfig) SeedBalances() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(w.Seed))
	for _, entry := range w.Seed {
		user, amount, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(user) == "" {
			return nil, fmt.Errorf("wallet seed %q: want user:amount", entry)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil || d.IsNegative() {
			return nil, fmt.Errorf("wallet seed %q: invalid amount", entry)
		}
		out[strings.TrimSpace(user)] = d
	}
	return out, nil
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var envBindings = map[string]string{
	"server.port":               "SERVER_PORT",
	"server.host":               "SERVER_HOST",
	"server.allow_origins":      "SERVER_ALLOW_ORIGINS",
	"redis.address":             "REDIS_ADDRESS",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"mysql.dsn":                 "MYSQL_DSN",
	"mysql.max_open_conns":      "MYSQL_MAX_OPEN_CONNS",
	"mysql.max_idle_conns":      "MYSQL_MAX_IDLE_CONNS",
	"mysql.conn_max_lifetime":   "MYSQL_CONN_MAX_LIFETIME",
	"mysql.migrate_on_start":    "MYSQL_MIGRATE_ON_START",
	"leader.ttl":                "LEADER_TTL",
	"instance.id":               "INSTANCE_ID",
	"storage.driver":            "STORAGE_DRIVER",
	"scheduler.spec":            "SCHEDULER_SPEC",
	"engine.max_bid_retries":    "ENGINE_MAX_BID_RETRIES",
	"engine.max_settle_retries": "ENGINE_MAX_SETTLE_RETRIES",
	"engine.wallet_timeout":     "ENGINE_WALLET_TIMEOUT",
	"engine.notify_timeout":     "ENGINE_NOTIFY_TIMEOUT",
	"admin.ids":                 "ADMIN_IDS",
	"wallet.seed":               "WALLET_SEED",
	"log.level":                 "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true&loc=UTC")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate_on_start", true)
	v.SetDefault("leader.key", "auction_engine_leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.election_interval", 10*time.Second)
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("storage.driver", StorageMySQL)
	v.SetDefault("scheduler.spec", "@every 1m")
	v.SetDefault("engine.max_bid_retries", 5)
	v.SetDefault("engine.max_settle_retries", 5)
	v.SetDefault("engine.wallet_timeout", 5*time.Second)
	v.SetDefault("engine.notify_timeout", 3*time.Second)
	v.SetDefault("admin.ids", []string{})
	v.SetDefault("wallet.seed", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, an optional config.yaml, a .env file and environment
// variables, in increasing order of precedence.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", configPath, err)
	}

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) error {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMySQL, StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Engine.MaxBidRetries < 1 || c.Engine.MaxSettleRetries < 1 {
		return errors.New("engine retries must be at least 1")
	}
	if c.Scheduler.Spec == "" {
		return errors.New("scheduler spec must not be empty")
	}
	if _, err := c.Wallet.SeedBalances(); err != nil {
		return err
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Storage: %s, Redis: %s, Scheduler: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Storage.Driver,
		c.Redis.Address,
		c.Scheduler.Spec,
		c.Instance.ID,
	)
}
