package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config models caseline.yml.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWT struct {
			Issuer   string `yaml:"issuer"`
			Audience string `yaml:"audience"`
			Secret   string `yaml:"secret"`
		} `yaml:"jwt"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Case struct {
		CodePrefix string `yaml:"code_prefix"`
	} `yaml:"case"`
	// Currencies lists accepted payment currencies. The first is the default.
	Currencies []string                 `yaml:"currencies"`
	Services   map[string]ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Description string `yaml:"description"`
	Tariff      string `yaml:"tariff"`
	Currency    string `yaml:"currency"`
}

var (
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
	prefixRe   = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite":
	case "pgx", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or pgx")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	if !prefixRe.MatchString(c.Case.CodePrefix) {
		return fmt.Errorf("config.case.code_prefix must be 2-10 uppercase letters or digits")
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("config.currencies is required")
	}
	seen := map[string]bool{}
	for _, cur := range c.Currencies {
		if !currencyRe.MatchString(cur) {
			return fmt.Errorf("currency %q must be a 3-letter uppercase code", cur)
		}
		if seen[cur] {
			return fmt.Errorf("currency %s listed twice", cur)
		}
		seen[cur] = true
	}
	for id, svc := range c.Services {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config.services contains empty service id")
		}
		if svc.Description == "" {
			return fmt.Errorf("service %s has empty description", id)
		}
		amount, err := decimal.NewFromString(svc.Tariff)
		if err != nil {
			return fmt.Errorf("service %s has invalid tariff %q", id, svc.Tariff)
		}
		if amount.IsNegative() {
			return fmt.Errorf("service %s has negative tariff", id)
		}
		if !seen[svc.Currency] {
			return fmt.Errorf("service %s uses unknown currency %s", id, svc.Currency)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "caseline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(err)
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `database:
  driver: sqlite

server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt:
    issuer: caseline
    audience: caseline-api
    secret: ""

log:
  level: info

case:
  code_prefix: CASE

currencies: [PEN, USD]

services:
  consult.virtual:
    description: "Virtual consultation"
    tariff: "150.00"
    currency: PEN
  consult.in_person:
    description: "In-person consultation"
    tariff: "200.00"
    currency: PEN
  certificate.express:
    description: "Express certificate"
    tariff: "80.00"
    currency: USD
`
