package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Address                   string
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	BankingConfig struct {
		BaseURL   string
		SecretKey string
		BankName  string
	}

	PayrollConfig struct {
		TaxRate     float64
		PensionRate float64
	}

	AssessmentConfig struct {
		TokenLength int
		TokenTTL    time.Duration
	}

	RateLimitConfig struct {
		Requests int
		Window   time.Duration
	}

	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		DefaultFromEmailAddr      string
		RollbarToken              string
		SendgridApiKey            string
		RedisURL                  string
		Currency                  string
		AdmissionPrefix           string
		PasswordResetTimeoutDelta time.Duration

		Server     ServerConfig
		Database   DatabaseConfig
		Banking    BankingConfig
		Payroll    PayrollConfig
		Assessment AssessmentConfig
		RateLimit  RateLimitConfig
	}
)

// NewConfig loads the configuration of the current environment.
// Values are read, in order of precedence, from prefixed env vars (eg. DEV_SECRET_KEY),
// the optional `config/.env.<env>` file and the defaults below.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("app_name", "Shule")
	v.SetDefault("secret_key", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontend_base_url", "http://localhost:8080")
	v.SetDefault("default_from_email", "Shule <noreply@localhost>")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("currency", "NGN")
	v.SetDefault("admission_prefix", "ADM")
	v.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "shule")
	v.SetDefault("db_user", "shule")
	v.SetDefault("db_password", "shule")
	v.SetDefault("db_admin_user", "postgres")
	v.SetDefault("db_admin_password", "postgres")
	v.SetDefault("db_disable_tls", true)

	v.SetDefault("banking_base_url", "")
	v.SetDefault("banking_secret_key", "")
	v.SetDefault("banking_bank_name", "Shule Microfinance Bank")

	v.SetDefault("payroll_tax_rate", 0.075)
	v.SetDefault("payroll_pension_rate", 0.08)

	v.SetDefault("assessment_token_length", 8)
	v.SetDefault("assessment_token_ttl", 14*24*time.Hour)

	v.SetDefault("rate_limit_requests", 10)
	v.SetDefault("rate_limit_window", time.Minute)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("test_mode"),
		AppName:                   v.GetString("app_name"),
		SecretKey:                 v.GetString("secret_key"),
		WorkDir:                   workDir,
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontend_base_url"), "/"),
		DefaultFromEmailAddr:      v.GetString("default_from_email"),
		RollbarToken:              v.GetString("rollbar_token"),
		SendgridApiKey:            v.GetString("sendgrid_api_key"),
		RedisURL:                  v.GetString("redis_url"),
		Currency:                  v.GetString("currency"),
		AdmissionPrefix:           v.GetString("admission_prefix"),
		PasswordResetTimeoutDelta: v.GetDuration("password_reset_timeout_delta"),
		Server: ServerConfig{
			Address:                   v.GetString("server_address"),
			Host:                      v.GetString("server_host"),
			DebugHost:                 v.GetString("server_debug_host"),
			ShutdownTimeout:           v.GetDuration("server_shutdown_timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_admin_user"),
			AdminPassword: v.GetString("db_admin_password"),
			DisableTLS:    v.GetBool("db_disable_tls"),
		},
		Banking: BankingConfig{
			BaseURL:   v.GetString("banking_base_url"),
			SecretKey: v.GetString("banking_secret_key"),
			BankName:  v.GetString("banking_bank_name"),
		},
		Payroll: PayrollConfig{
			TaxRate:     v.GetFloat64("payroll_tax_rate"),
			PensionRate: v.GetFloat64("payroll_pension_rate"),
		},
		Assessment: AssessmentConfig{
			TokenLength: v.GetInt("assessment_token_length"),
			TokenTTL:    v.GetDuration("assessment_token_ttl"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("rate_limit_requests"),
			Window:   v.GetDuration("rate_limit_window"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no disk or env lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		Debug:                     false,
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:8080",
		DefaultFromEmailAddr:      "Shule <noreply@localhost>",
		Currency:                  "NGN",
		AdmissionPrefix:           "ADM",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Database:   DatabaseConfig{Engine: "inmem"},
		Banking:    BankingConfig{SecretKey: "bank-secret", BankName: "Test Bank"},
		Payroll:    PayrollConfig{TaxRate: 0.1, PensionRate: 0.08},
		Assessment: AssessmentConfig{TokenLength: 8, TokenTTL: 24 * time.Hour},
		RateLimit:  RateLimitConfig{Requests: 1000, Window: time.Minute},
	}
}

// DefaultFromEmail parses the configured sender address.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmailAddr)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (d DatabaseConfig) Address() string {
	return net.JoinHostPort(d.Host, d.Port)
}
