package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	SchedulerBackground = "background"
	SchedulerInline     = "inline"

	CustodySolana = "solana"
	CustodyPaper  = "paper"
)

type DatabaseSettings struct {
	Host          string
	Port          string
	User          string
	Password      string
	Name          string
	SSLMode       string
	TimeZone      string
	AutoMigrate   bool
	MigrationsDir string
}

func (d DatabaseSettings) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone)
}

type RabbitMQSettings struct {
	Host          string
	Port          string
	User          string
	Password      string
	ActivityQueue string
	FundingQueue  string
}

func (r RabbitMQSettings) Enabled() bool { return r.Host != "" }

func (r RabbitMQSettings) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type RedisSettings struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisSettings) Enabled() bool { return r.Addr != "" }

type SchedulerSettings struct {
	Mode         string
	SyncInterval time.Duration
	LeaseTTL     time.Duration
}

type TradeSettings struct {
	FundingMint     string
	FundingDecimals int32
	WalletCount     int
	JupiterBaseURL  string
	JupiterRPS      float64
	SlippageBps     int
	PriceTimeout    time.Duration
	QuoteTimeout    time.Duration
	SubmitTimeout   time.Duration
	ConfirmTimeout  time.Duration
}

type CustodySettings struct {
	Backend                string
	SolanaRPC              string
	EncryptPassword        string
	DepositAddress         string
	AllowUnverifiedFunding bool
}

// Settings is every knob of the service, read once at startup
type Settings struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	Database  DatabaseSettings
	RabbitMQ  RabbitMQSettings
	Redis     RedisSettings
	Scheduler SchedulerSettings
	Trade     TradeSettings
	Custody   CustodySettings
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (*Settings, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug("no .env file loaded, using process environment")
	}

	s := &Settings{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Database: DatabaseSettings{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", ""),
			Name:          getEnv("DB_NAME", "bump"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			TimeZone:      getEnv("DB_TIMEZONE", "UTC"),
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", false),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		RabbitMQ: RabbitMQSettings{
			Host:          getEnv("RABBITMQ_HOST", ""),
			Port:          getEnv("RABBITMQ_PORT", "5672"),
			User:          getEnv("RABBITMQ_USER", "guest"),
			Password:      getEnv("RABBITMQ_PASSWORD", "guest"),
			ActivityQueue: getEnv("RABBITMQ_ACTIVITY_QUEUE", "bump.activity"),
			FundingQueue:  getEnv("RABBITMQ_FUNDING_QUEUE", "bump.funding"),
		},
		Redis: RedisSettings{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Scheduler: SchedulerSettings{
			Mode:         getEnv("SCHEDULER_MODE", SchedulerBackground),
			SyncInterval: getEnvDuration("SCHEDULER_SYNC_INTERVAL", 5*time.Second),
			LeaseTTL:     getEnvDuration("SCHEDULER_LEASE_TTL", 30*time.Second),
		},
		Trade: TradeSettings{
			FundingMint:     getEnv("FUNDING_MINT", "So11111111111111111111111111111111111111112"),
			FundingDecimals: int32(getEnvInt("FUNDING_DECIMALS", 9)),
			WalletCount:     getEnvInt("WALLET_COUNT", 5),
			JupiterBaseURL:  getEnv("JUPITER_BASE_URL", ""),
			JupiterRPS:      getEnvFloat("JUPITER_RPS", 1),
			SlippageBps:     getEnvInt("SLIPPAGE_BPS", 100),
			PriceTimeout:    getEnvDuration("PRICE_TIMEOUT", 10*time.Second),
			QuoteTimeout:    getEnvDuration("QUOTE_TIMEOUT", 10*time.Second),
			SubmitTimeout:   getEnvDuration("SUBMIT_TIMEOUT", 20*time.Second),
			ConfirmTimeout:  getEnvDuration("CONFIRM_TIMEOUT", 60*time.Second),
		},
		Custody: CustodySettings{
			Backend:                getEnv("CUSTODY_BACKEND", CustodyPaper),
			SolanaRPC:              getEnv("DEFAULT_SOLANA_RPC", ""),
			EncryptPassword:        getEnv("ENCRYPTPASSWORD", ""),
			DepositAddress:         getEnv("DEPOSIT_ADDRESS", ""),
			AllowUnverifiedFunding: getEnvBool("ALLOW_UNVERIFIED_FUNDING", false),
		},
	}
	return s, s.Validate()
}

func (s *Settings) Validate() error {
	var errs []error
	if s.Trade.WalletCount < 1 {
		errs = append(errs, errors.New("WALLET_COUNT must be at least 1"))
	}
	switch s.Scheduler.Mode {
	case SchedulerBackground, SchedulerInline:
	default:
		errs = append(errs, fmt.Errorf("SCHEDULER_MODE %q is not background or inline", s.Scheduler.Mode))
	}
	if s.Scheduler.SyncInterval < time.Second {
		errs = append(errs, errors.New("SCHEDULER_SYNC_INTERVAL must be at least 1s"))
	}
	if s.Custody.EncryptPassword == "" {
		errs = append(errs, errors.New("ENCRYPTPASSWORD is required"))
	}
	switch s.Custody.Backend {
	case CustodyPaper:
	case CustodySolana:
		if s.Custody.SolanaRPC == "" {
			errs = append(errs, errors.New("DEFAULT_SOLANA_RPC is required for the solana backend"))
		}
		if s.Custody.DepositAddress == "" {
			errs = append(errs, errors.New("DEPOSIT_ADDRESS is required for the solana backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("CUSTODY_BACKEND %q is not solana or paper", s.Custody.Backend))
	}
	return errors.Join(errs...)
}

// ConfigureLogger sets the logrus level and formatter. Workers log JSON.
func (s *Settings) ConfigureLogger(jsonOutput bool) {
	level, err := log.ParseLevel(s.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if jsonOutput {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warnf("invalid %s=%q, using %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warnf("invalid %s=%q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Warnf("invalid %s=%q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Warnf("invalid %s=%q, using %s", key, value, defaultValue)
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
