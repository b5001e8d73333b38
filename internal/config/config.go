package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	WebhookModeDirect = "direct"
	WebhookModeKafka  = "kafka"
)

// KindSettings holds the quota and pacing knobs for one collection kind.
type KindSettings struct {
	Enabled    bool          `mapstructure:"enabled"`
	DailyLimit int           `mapstructure:"daily_limit"`
	ItemDelay  time.Duration `mapstructure:"item_delay"`
}

type Config struct {
	App struct {
		Port string `mapstructure:"port"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`
	DB struct {
		DSN          string        `mapstructure:"dsn"`
		QueryTimeout time.Duration `mapstructure:"query_timeout"`
	} `mapstructure:"db"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenLifespan time.Duration `mapstructure:"token_lifespan"`
	} `mapstructure:"auth"`
	Cloudinary struct {
		CloudName string `mapstructure:"cloud_name"`
		ApiKey    string `mapstructure:"api_key"`
		ApiSecret string `mapstructure:"api_secret"`
	} `mapstructure:"cloudinary"`
	Jaeger struct {
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"jaeger"`
	DuxSoup struct {
		BaseURL           string        `mapstructure:"base_url"`
		UserID            string        `mapstructure:"user_id"`
		APIKey            string        `mapstructure:"api_key"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"`
		Timeout           time.Duration `mapstructure:"timeout"`
	} `mapstructure:"duxsoup"`
	Sync struct {
		Interval    time.Duration `mapstructure:"interval"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		LockTTL     time.Duration `mapstructure:"lock_ttl"`
		Visit       KindSettings  `mapstructure:"visit"`
		Scan        KindSettings  `mapstructure:"scan"`
	} `mapstructure:"sync"`
	Webhook struct {
		Mode string `mapstructure:"mode"`
	} `mapstructure:"webhook"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "3000")
	v.SetDefault("app.env", "development")
	v.SetDefault("db.query_timeout", 10*time.Second)
	v.SetDefault("auth.token_lifespan", 24*time.Hour)
	v.SetDefault("duxsoup.base_url", "https://app.dux-soup.com/xapi/remote/control/")
	v.SetDefault("duxsoup.requests_per_second", 2.0)
	v.SetDefault("duxsoup.timeout", 30*time.Second)
	v.SetDefault("sync.interval", time.Hour)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.lock_ttl", 2*time.Hour)
	v.SetDefault("sync.visit.enabled", true)
	v.SetDefault("sync.visit.daily_limit", 100)
	v.SetDefault("sync.visit.item_delay", 5*time.Second)
	v.SetDefault("sync.scan.enabled", true)
	v.SetDefault("sync.scan.daily_limit", 200)
	v.SetDefault("sync.scan.item_delay", 3*time.Second)
	v.SetDefault("webhook.mode", WebhookModeDirect)
}

// LoadConfig reads .env and config.yaml from the given directories (current
// directory when none are given), then applies environment overrides.
func LoadConfig(paths ...string) (cfg Config, err error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	envFiles := make([]string, 0, len(paths))
	for _, p := range paths {
		envFiles = append(envFiles, strings.TrimRight(p, "/")+"/.env")
	}
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("warning: .env file not found, use system environment variables.")
	}

	v := viper.New()
	setDefaults(v)
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		log.Printf("note: config.yaml not found, read env only. Error: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("db.dsn", "DB_DSN")
	v.BindEnv("db.query_timeout", "DB_QUERY_TIMEOUT")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_lifespan", "TOKEN_LIFESPAN")

	v.BindEnv("cloudinary.cloud_name", "CLOUDINARY_CLOUD_NAME")
	v.BindEnv("cloudinary.api_key", "CLOUDINARY_API_KEY")
	v.BindEnv("cloudinary.api_secret", "CLOUDINARY_API_SECRET")
	v.BindEnv("jaeger.otlp_endpoint", "OTLP_ENDPOINT")

	v.BindEnv("duxsoup.base_url", "DUXSOUP_BASE_URL")
	v.BindEnv("duxsoup.user_id", "DUXSOUP_USER_ID")
	v.BindEnv("duxsoup.api_key", "DUXSOUP_API_KEY")
	v.BindEnv("duxsoup.requests_per_second", "DUXSOUP_REQUESTS_PER_SECOND")
	v.BindEnv("duxsoup.timeout", "DUXSOUP_TIMEOUT")

	v.BindEnv("sync.interval", "SYNC_INTERVAL")
	v.BindEnv("sync.max_attempts", "SYNC_MAX_ATTEMPTS")
	v.BindEnv("sync.lock_ttl", "SYNC_LOCK_TTL")
	v.BindEnv("sync.visit.enabled", "SYNC_VISIT_ENABLED")
	v.BindEnv("sync.visit.daily_limit", "SYNC_VISIT_DAILY_LIMIT")
	v.BindEnv("sync.visit.item_delay", "SYNC_VISIT_ITEM_DELAY")
	v.BindEnv("sync.scan.enabled", "SYNC_SCAN_ENABLED")
	v.BindEnv("sync.scan.daily_limit", "SYNC_SCAN_DAILY_LIMIT")
	v.BindEnv("sync.scan.item_delay", "SYNC_SCAN_ITEM_DELAY")
	v.BindEnv("webhook.mode", "WEBHOOK_MODE")

	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("cannot unmarshal config: %w", err)
	}
	// KAFKA_BROKERS arrives as a single comma separated string from the environment.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	return cfg, nil
}

// Validate checks the settings the sync engine cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DuxSoup.UserID == "" {
		errs = append(errs, errors.New("duxsoup.user_id is required"))
	}
	if c.DuxSoup.APIKey == "" {
		errs = append(errs, errors.New("duxsoup.api_key is required"))
	}
	if c.Sync.MaxAttempts <= 0 {
		errs = append(errs, errors.New("sync.max_attempts must be positive"))
	}
	for name, ks := range map[string]KindSettings{"visit": c.Sync.Visit, "scan": c.Sync.Scan} {
		if ks.DailyLimit <= 0 {
			errs = append(errs, fmt.Errorf("sync.%s.daily_limit must be positive", name))
		}
		if ks.ItemDelay < 0 {
			errs = append(errs, fmt.Errorf("sync.%s.item_delay must not be negative", name))
		}
	}
	switch c.Webhook.Mode {
	case WebhookModeDirect, WebhookModeKafka:
	default:
		errs = append(errs, fmt.Errorf("webhook.mode %q is not supported", c.Webhook.Mode))
	}
	if c.Webhook.Mode == WebhookModeKafka && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("webhook.mode kafka requires kafka.brokers"))
	}
	return errors.Join(errs...)
}
