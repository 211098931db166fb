package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/crypto"
)

// Config is built once at process start and passed by reference into each
// component's constructor. Nothing mutates it after Load returns.
type Config struct {
	App      AppConfig
	Data     DataConfig
	Network  NetworkConfig
	Upload   UploadConfig
	Limits   LimitsConfig
	Launcher LauncherConfig
	Human    HumanConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Telegram TelegramConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Port      int
	LogLevel  string
	LogFormat string
}

type DataConfig struct {
	// BaseDir holds one subdirectory per creator; each may contain an
	// "uploaded videos" subfolder for processed files.
	BaseDir string
	// StateDir holds bot_state.json, folder_progress.json and
	// uploaded_videos.json.
	StateDir string
	// QuarantineDir, when set, receives videos that exhausted their retry
	// budget instead of deleting them. Empty means delete.
	QuarantineDir string
	SelectorsPath string
}

type NetworkConfig struct {
	CheckInterval   time.Duration
	CheckTimeout    time.Duration
	DialAddr        string
	PrimaryURL      string
	SecondaryURL    string
	MaxRecoveryWait time.Duration
	RecoveryPoll    time.Duration
}

type UploadConfig struct {
	MaxAttempts          int
	RetryBackoffBase     time.Duration
	ProgressTimeout      time.Duration
	ProgressPollInterval time.Duration
	StuckThreshold       int
	TargetDomain         string
	NavigationTimeout    time.Duration
	ElementTimeout       time.Duration
}

type LimitsConfig struct {
	Plan            models.Plan
	BasicDailyLimit int
}

type LauncherConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type HumanConfig struct {
	KeyDelayMeanMs  float64
	KeyDelaySigmaMs float64
	CursorSteps     int
	PauseMinMs      int
	PauseMaxMs      int
	Seed            int64
	EnableStealth   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

type AuthConfig struct {
	JWTSecret string
}

// envOverrides is the documented environment surface beyond viper's
// automatic binding.
type envOverrides struct {
	DataDir       string `envconfig:"UPLOADFLOW_DATA_DIR"`
	StateDir      string `envconfig:"UPLOADFLOW_STATE_DIR"`
	LauncherKey   string `envconfig:"UPLOADFLOW_LAUNCHER_API_KEY"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RabbitURL     string `envconfig:"RABBITMQ_URL"`
	TelegramToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	JWTSecret     string `envconfig:"JWT_SECRET"`
	MasterKey     string `envconfig:"UPLOADFLOW_MASTER_KEY"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvPrefix("UPLOADFLOW")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}
	applyOverrides(&cfg, env)

	apiKey, err := resolveAPIKey(cfg.Launcher.APIKey, env.MasterKey)
	if err != nil {
		return nil, err
	}
	cfg.Launcher.APIKey = apiKey

	if cfg.Limits.Plan != models.PlanPro {
		cfg.Limits.Plan = models.PlanBasic
	}

	return &cfg, nil
}

const (
	encryptedPrefix = "enc:"
	launcherKeySalt = "uploadflow.launcher"
)

// resolveAPIKey decrypts an "enc:" prefixed launcher key using a key
// derived from the master passphrase. Plain keys pass through untouched.
func resolveAPIKey(raw, masterKey string) (string, error) {
	if !strings.HasPrefix(raw, encryptedPrefix) {
		return raw, nil
	}
	if masterKey == "" {
		return "", fmt.Errorf("launcher api key is encrypted but UPLOADFLOW_MASTER_KEY is not set")
	}

	enc, err := crypto.NewEncryptor(crypto.DeriveKey(masterKey, launcherKeySalt))
	if err != nil {
		return "", err
	}
	decrypted, err := enc.Decrypt(strings.TrimPrefix(raw, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt launcher api key: %w", err)
	}
	return decrypted, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.loglevel", "info")
	v.SetDefault("app.logformat", "json")

	v.SetDefault("data.basedir", "./creator-data")
	v.SetDefault("data.statedir", "./state")
	v.SetDefault("data.quarantinedir", "")
	v.SetDefault("data.selectorspath", "./configs/selectors.yaml")

	v.SetDefault("network.checkinterval", "10s")
	v.SetDefault("network.checktimeout", "5s")
	v.SetDefault("network.dialaddr", "8.8.8.8:53")
	v.SetDefault("network.primaryurl", "https://www.google.com/generate_204")
	v.SetDefault("network.secondaryurl", "https://www.cloudflare.com/cdn-cgi/trace")
	v.SetDefault("network.maxrecoverywait", "300s")
	v.SetDefault("network.recoverypoll", "10s")

	v.SetDefault("upload.maxattempts", 3)
	v.SetDefault("upload.retrybackoffbase", "30s")
	v.SetDefault("upload.progresstimeout", "600s")
	v.SetDefault("upload.progresspollinterval", "5s")
	v.SetDefault("upload.stuckthreshold", 12)
	v.SetDefault("upload.targetdomain", "facebook.com")
	v.SetDefault("upload.navigationtimeout", "30s")
	v.SetDefault("upload.elementtimeout", "10s")

	v.SetDefault("limits.plan", "basic")
	v.SetDefault("limits.basicdailylimit", 10)

	v.SetDefault("launcher.baseurl", "http://127.0.0.1:54345")
	v.SetDefault("launcher.timeout", "30s")

	v.SetDefault("human.keydelaymeanms", 120)
	v.SetDefault("human.keydelaysigmams", 40)
	v.SetDefault("human.cursorsteps", 25)
	v.SetDefault("human.pauseminms", 500)
	v.SetDefault("human.pausemaxms", 2000)
	v.SetDefault("human.enablestealth", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lockttl", "60s")

	v.SetDefault("rabbitmq.exchange", "uploadflow.events")
}

func applyOverrides(cfg *Config, env envOverrides) {
	if env.DataDir != "" {
		cfg.Data.BaseDir = env.DataDir
	}
	if env.StateDir != "" {
		cfg.Data.StateDir = env.StateDir
	}
	if env.LauncherKey != "" {
		cfg.Launcher.APIKey = env.LauncherKey
	}
	if env.RedisAddr != "" {
		cfg.Redis.Addr = env.RedisAddr
	}
	if env.RabbitURL != "" {
		cfg.RabbitMQ.URL = env.RabbitURL
	}
	if env.TelegramToken != "" {
		cfg.Telegram.Token = env.TelegramToken
	}
	if env.JWTSecret != "" {
		cfg.Auth.JWTSecret = env.JWTSecret
	}
}
