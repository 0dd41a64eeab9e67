package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"goflare.io/ember"
	emberConfig "goflare.io/ember/config"
	"goflare.io/ignite"
	"goflare.io/voucher/auth"
	"goflare.io/voucher/driver"
	"goflare.io/voucher/ledger"
	"goflare.io/voucher/models"
	"goflare.io/voucher/notification"
)

const (
	DefaultConfigFile = "./config.yaml"
	envPrefix         = "VOUCHER"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Notification NotificationConfig `mapstructure:"notification"`
	Reward       RewardConfig       `mapstructure:"reward"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
	// Migrate applies the voucher schema at startup.
	Migrate bool `mapstructure:"migrate"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type NotificationConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Fanout    int           `mapstructure:"fanout"`
}

type RewardConfig struct {
	Name            string        `mapstructure:"name"`
	DiscountPercent float64       `mapstructure:"discount_percent"`
	Validity        time.Duration `mapstructure:"validity"`
}

type LoggerConfig struct {
	// Mode is "production" or "development".
	Mode string `mapstructure:"mode"`
}

func setDefaults(v *viper.Viper) {
	notify := notification.DefaultOptions()
	reward := ledger.DefaultRewardPolicy()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("postgres.url", "")
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "voucher")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("notification.workers", notify.Workers)
	v.SetDefault("notification.queue_size", notify.QueueSize)
	v.SetDefault("notification.timeout", notify.Timeout)
	v.SetDefault("notification.fanout", notify.Fanout)
	v.SetDefault("reward.name", reward.Name)
	v.SetDefault("reward.discount_percent", reward.DiscountPercent)
	v.SetDefault("reward.validity", reward.Validity)
	v.SetDefault("logger.mode", "production")
}

// Load reads path if it exists, then applies VOUCHER_* environment overrides,
// e.g. VOUCHER_POSTGRES_URL for postgres.url.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch {
	case c.Postgres.URL == "":
		return errors.New("postgres.url is required")
	case c.Auth.JWTSecret == "":
		return errors.New("auth.jwt_secret is required")
	case c.Reward.DiscountPercent < 1 || c.Reward.DiscountPercent > 100:
		return fmt.Errorf("reward.discount_percent must be between 1 and 100, got %v", c.Reward.DiscountPercent)
	case c.Reward.Validity <= 0:
		return errors.New("reward.validity must be positive")
	}
	return nil
}

func ProvideApplicationConfig() (*Config, error) {
	return Load(DefaultConfigFile)
}

func ProvidePostgresConn(appConfig *Config, logger *zap.Logger) (driver.PostgresPool, error) {

	conn, err := driver.ConnectSQL(appConfig.Postgres.URL)
	if err != nil {
		return nil, err
	}

	if appConfig.Postgres.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err = driver.Migrate(ctx, conn.Pool); err != nil {
			conn.Pool.Close()
			return nil, err
		}
		logger.Info("voucher schema is up to date")
	}

	return conn.Pool, nil
}

func ProvideRedis(appConfig *Config) (*redis.Client, error) {
	return driver.ConnectRedis(appConfig.Redis.Addr, appConfig.Redis.Password, appConfig.Redis.DB)
}

func ProvideEmber(conn *redis.Client, logger *zap.Logger) (*ember.MultiCache, error) {

	config := emberConfig.NewConfig()
	cache, err := ember.NewMultiCache(context.Background(), &config, conn)
	if err != nil {
		logger.Error("failed to create cache", zap.Error(err))
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return cache, nil
}

func ProvideIgnite() ignite.Manager {
	return ignite.NewManager()
}

func ProvideClock() models.Clock {
	return models.SystemClock()
}

func ProvideRewardPolicy(appConfig *Config) ledger.RewardPolicy {
	return ledger.RewardPolicy{
		Name:            appConfig.Reward.Name,
		DiscountPercent: appConfig.Reward.DiscountPercent,
		Validity:        appConfig.Reward.Validity,
	}
}

func ProvideAuthenticator(appConfig *Config, logger *zap.Logger) *auth.Authenticator {
	return auth.NewAuthenticator(appConfig.Auth.JWTSecret, logger)
}

func ProvidePublisher(conn *redis.Client, appConfig *Config, clock models.Clock, logger *zap.Logger) notification.Publisher {
	return notification.NewRedisPublisher(conn, appConfig.Redis.ChannelPrefix, clock, logger)
}

// ProvideNotifier starts the notification dispatcher. The engine stops it on Close.
func ProvideNotifier(publisher notification.Publisher, appConfig *Config, logger *zap.Logger) notification.Notifier {
	dispatcher := notification.NewDispatcher(publisher, notification.Options{
		Workers:   appConfig.Notification.Workers,
		QueueSize: appConfig.Notification.QueueSize,
		Timeout:   appConfig.Notification.Timeout,
		Fanout:    appConfig.Notification.Fanout,
	}, logger)
	dispatcher.Run()
	return dispatcher
}

func NewLogger(appConfig *Config) (*zap.Logger, error) {
	if appConfig.Logger.Mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
