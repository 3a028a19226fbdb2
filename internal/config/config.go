package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrConfigNotLoaded = errors.New("config not loaded")
)

type Environment string

const (
	Production  Environment = "prod"
	Development Environment = "dev"
)

func (e *Environment) SetValue(s string) error {
	*e = Environment(s)
	if *e != Production && *e != Development {
		return configNotLoadedErr(`only "prod" and "dev" environments are allowed`)
	}
	return nil
}

type Config struct {
	App struct {
		Env Environment `yaml:"env" env:"ENV" env-required:""`
	} `yaml:"app" env-prefix:"APP_" env-required:""`

	Server struct {
		Host string `yaml:"host" env:"HOST" env-default:"localhost"`
		Port int    `yaml:"port" env:"PORT" env-default:"8080"`
	} `yaml:"server" env-prefix:"SERVER_"`

	// Backend points at the hosted service that owns authentication and
	// weight entry storage. The gateway never persists entries itself.
	Backend struct {
		URL    string `yaml:"url" env:"URL" env-required:""`
		APIKey string `yaml:"api_key" env:"API_KEY" env-required:""`
		// JWTSecret lets the gateway verify access token signatures.
		// When empty, claims are parsed without verification: the hosted
		// service remains the trust anchor for every data call anyway.
		JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-default:""`
	} `yaml:"backend" env-prefix:"BACKEND_" env-required:""`

	// DB holds the gateway's own session store, not entry data.
	DB struct {
		DSN string `yaml:"dsn" env:"DB_DSN" env-required:""`
	} `yaml:"db" env-prefix:"DB_" env-required:""`

	Sync struct {
		PageSize int `yaml:"page_size" env:"PAGE_SIZE" env-default:"10"`
		// DataLoadTimeout bounds the initial entry load so the UI never
		// hangs on a stalled call without a retry path.
		DataLoadTimeout time.Duration `yaml:"data_load_timeout" env:"DATA_LOAD_TIMEOUT" env-default:"5s"`
	} `yaml:"sync" env-prefix:"SYNC_"`

	Session struct {
		TTL        time.Duration `yaml:"ttl" env:"TTL" env-default:"720h"`
		CookieName string        `yaml:"cookie_name" env:"COOKIE_NAME" env-default:"wt_session"`
	} `yaml:"session" env-prefix:"SESSION_"`
}

func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(filePath, cfg); err != nil {
		return nil, configNotLoadedErr("config not loaded: %w", err)
	}

	return cfg, nil
}

func MustLoad(filePath string) *Config {
	cfg, err := Load(filePath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func configNotLoadedErr(format string, args ...any) error {
	return errors.Join(fmt.Errorf(format, args...), ErrConfigNotLoaded)
}
