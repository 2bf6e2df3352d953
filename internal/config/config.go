// Package config loads service configuration from the environment, with an
// optional .env file for local development and an optional YAML file for
// solver tuning.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMigrate   bool   `envconfig:"DB_MIGRATE" default:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`

	OSRMBaseURL    string        `envconfig:"OSRM_BASE_URL" default:"http://router.project-osrm.org"`
	OSRMTimeout    time.Duration `envconfig:"OSRM_TIMEOUT" default:"20s"`
	MatrixCacheTTL time.Duration `envconfig:"MATRIX_CACHE_TTL" default:"10m"`

	PlanningTimezone string `envconfig:"PLANNING_TIMEZONE" default:"Africa/Casablanca"`
	SchedulerEnabled bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`

	SMTPHost string `envconfig:"SMTP_SERVER" default:"smtp.gmail.com"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom string `envconfig:"SMTP_FROM"`

	SolverConfigPath string `envconfig:"SOLVER_CONFIG"`
}

// Load reads .env (if present) then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SolverTuning overrides the solver defaults from a YAML file.
type SolverTuning struct {
	MaxRouteDuration time.Duration `yaml:"max_route_duration"`
	SolveBudget      time.Duration `yaml:"solve_budget"`
}

func LoadTuning(path string) (SolverTuning, error) {
	var t SolverTuning
	if path == "" {
		return t, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(body, &t); err != nil {
		return t, err
	}
	return t, nil
}
