package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Database struct {
	Driver         string
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SQLitePath     string
	ConnectRetries int
}

// DSN returns the connection string for the configured driver.
func (d Database) DSN() string {
	if d.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", d.SQLitePath)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

type Lending struct {
	BookLoanDays      int
	CDLoanDays        int
	DefaultLoanDays   int
	ReservationWindow time.Duration
}

type Config struct {
	Database       Database
	Lending        Lending
	HTTPAddr       string
	LogLevel       string
	ExpiryInterval time.Duration
}

var envKeys = map[string]string{
	"db.driver":                  "DB_DRIVER",
	"db.host":                    "DB_HOST",
	"db.port":                    "DB_PORT",
	"db.user":                    "DB_USER",
	"db.password":                "DB_PASSWORD",
	"db.name":                    "DB_NAME",
	"db.sqlite_path":             "SQLITE_PATH",
	"db.connect_retries":         "DB_CONNECT_RETRIES",
	"http.addr":                  "HTTP_ADDR",
	"log.level":                  "LOG_LEVEL",
	"lending.book_days":          "LOAN_DAYS_BOOK",
	"lending.cd_days":            "LOAN_DAYS_CD",
	"lending.default_days":       "LOAN_DAYS_DEFAULT",
	"lending.reservation_window": "RESERVATION_WINDOW",
	"sweeper.interval":           "EXPIRY_INTERVAL",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.host", "postgres")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "program")
	v.SetDefault("db.password", "test")
	v.SetDefault("db.name", "library")
	v.SetDefault("db.sqlite_path", "library.db")
	v.SetDefault("db.connect_retries", 10)
	v.SetDefault("http.addr", ":8060")
	v.SetDefault("log.level", "info")
	v.SetDefault("lending.book_days", 14)
	v.SetDefault("lending.cd_days", 7)
	v.SetDefault("lending.default_days", 14)
	v.SetDefault("lending.reservation_window", 48*time.Hour)
	v.SetDefault("sweeper.interval", time.Minute)

	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
}

// Load reads configuration from v, optionally merging the YAML file at path.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Database: Database{
			Driver:         strings.ToLower(v.GetString("db.driver")),
			Host:           v.GetString("db.host"),
			Port:           v.GetString("db.port"),
			User:           v.GetString("db.user"),
			Password:       v.GetString("db.password"),
			Name:           v.GetString("db.name"),
			SQLitePath:     v.GetString("db.sqlite_path"),
			ConnectRetries: v.GetInt("db.connect_retries"),
		},
		Lending: Lending{
			BookLoanDays:      v.GetInt("lending.book_days"),
			CDLoanDays:        v.GetInt("lending.cd_days"),
			DefaultLoanDays:   v.GetInt("lending.default_days"),
			ReservationWindow: v.GetDuration("lending.reservation_window"),
		},
		HTTPAddr:       v.GetString("http.addr"),
		LogLevel:       v.GetString("log.level"),
		ExpiryInterval: v.GetDuration("sweeper.interval"),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Lending.BookLoanDays <= 0 || c.Lending.CDLoanDays <= 0 || c.Lending.DefaultLoanDays <= 0 {
		return fmt.Errorf("loan periods must be positive")
	}
	if c.Lending.ReservationWindow <= 0 {
		return fmt.Errorf("reservation window must be positive")
	}
	if c.ExpiryInterval <= 0 {
		return fmt.Errorf("expiry interval must be positive")
	}
	return nil
}
