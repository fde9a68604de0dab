package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	Port    string `env:"PORT" envDefault:"8080"`
	Storage string `env:"STORAGE" envDefault:"mongo"`

	MongoURI              string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DBName                string `env:"DB_NAME" envDefault:"rbac_db"`
	PermissionsCollection string `env:"COLLECTION_PERMISSIONS" envDefault:"rbac_permissions"`
	RolesCollection       string `env:"COLLECTION_ROLES" envDefault:"rbac_roles"`
	AssignmentsCollection string `env:"COLLECTION_ASSIGNMENTS" envDefault:"rbac_assignments"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// DefinitionCacheTTL bounds how stale cached roles and permissions may be.
	DefinitionCacheTTL  time.Duration `env:"DEFINITION_CACHE_TTL" envDefault:"30s"`
	DefinitionCacheSize int           `env:"DEFINITION_CACHE_SIZE" envDefault:"1024"`
	// CheckTimeout is the deadline of a permission check; a check that runs past it is denied.
	CheckTimeout time.Duration `env:"CHECK_TIMEOUT" envDefault:"2s"`

	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@every 5m"`
	SweepTimeout  time.Duration `env:"SWEEP_TIMEOUT" envDefault:"1m"`
	SeedOnStart   bool          `env:"SEED_ON_START" envDefault:"true"`
	// BootstrapAdmin, when set, is given the super_admin role at startup.
	BootstrapAdmin string `env:"BOOTSTRAP_ADMIN"`
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE must be %q or %q", StorageMongo, StorageMemory)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.CheckTimeout <= 0 {
		return errors.New("CHECK_TIMEOUT must be positive")
	}
	if c.SweepSchedule == "" {
		return errors.New("SWEEP_SCHEDULE is required")
	}
	if c.DefinitionCacheTTL <= 0 || c.DefinitionCacheSize <= 0 {
		return errors.New("definition cache ttl and size must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}
