package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Mpesa        MpesaConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Payments.Tolerance(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DUKAPESA_APP_ENV" required:"true"`
	Port         string `envconfig:"DUKAPESA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DUKAPESA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DUKAPESA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DUKAPESA_DB_DSN"`
	Driver string `envconfig:"DUKAPESA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DUKAPESA_DB_HOST"`
	Port     int    `envconfig:"DUKAPESA_DB_PORT" default:"5432"`
	User     string `envconfig:"DUKAPESA_DB_USER"`
	Password string `envconfig:"DUKAPESA_DB_PASSWORD"`
	Name     string `envconfig:"DUKAPESA_DB_NAME"`
	SSLMode  string `envconfig:"DUKAPESA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DUKAPESA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DUKAPESA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DUKAPESA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DUKAPESA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DUKAPESA_REDIS_URL"`
	Address      string        `envconfig:"DUKAPESA_REDIS_ADDR"`
	Password     string        `envconfig:"DUKAPESA_REDIS_PASSWORD"`
	DB           int           `envconfig:"DUKAPESA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DUKAPESA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DUKAPESA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DUKAPESA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DUKAPESA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DUKAPESA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DUKAPESA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DUKAPESA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DUKAPESA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// MpesaConfig carries the STK-push gateway credentials. The fields are not
// required at Load time so non-payment binaries can boot; the gateway client
// constructor validates them and fails fast.
type MpesaConfig struct {
	BaseURL        string        `envconfig:"DUKAPESA_MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey    string        `envconfig:"DUKAPESA_MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"DUKAPESA_MPESA_CONSUMER_SECRET"`
	Shortcode      string        `envconfig:"DUKAPESA_MPESA_SHORTCODE"`
	Passkey        string        `envconfig:"DUKAPESA_MPESA_PASSKEY"`
	CallbackURL    string        `envconfig:"DUKAPESA_MPESA_CALLBACK_URL"`
	Timeout        time.Duration `envconfig:"DUKAPESA_MPESA_TIMEOUT" default:"30s"`
	TokenSkew      time.Duration `envconfig:"DUKAPESA_MPESA_TOKEN_SKEW" default:"30s"`
}

type PaymentsConfig struct {
	// AmountTolerance is the maximum accepted difference, in currency units,
	// between a client-supplied display amount and the server-computed total.
	AmountTolerance string `envconfig:"DUKAPESA_PAYMENTS_AMOUNT_TOLERANCE" default:"5"`
}

// Tolerance parses the configured amount tolerance into a decimal.
func (p PaymentsConfig) Tolerance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(p.AmountTolerance)
	if raw == "" {
		raw = "5"
	}
	tolerance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount tolerance %q: %w", raw, err)
	}
	if tolerance.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount tolerance must not be negative, got %s", tolerance)
	}
	return tolerance, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DUKAPESA_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range componentDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
