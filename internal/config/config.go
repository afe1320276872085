package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config is the runtime configuration of the API process.
// Values are resolved as defaults < YAML file (CONFIG_FILE) < environment.
type Config struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	DataDir            string   `yaml:"data_dir"`
	StoreDriver        string   `yaml:"store_driver"`
	LogLevel           string   `yaml:"log_level"`
	LogFormat          string   `yaml:"log_format"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	Database           Database `yaml:"database"`

	// Warnings collects non-fatal problems found while loading, logged by
	// the caller once a logger exists.
	Warnings []string `yaml:"-"`
}

// Database holds the connection settings of the postgres store.
type Database struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Schema   string `yaml:"schema"`
}

// DSN renders the key/value connection string understood by pgx.
func (d Database) DSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.Username, d.Password, d.Name, d.Port)
	if d.Schema != "" {
		dsn += " search_path=" + d.Schema
	}
	return dsn
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               3000,
		DataDir:            "./data",
		StoreDriver:        DriverFile,
		LogLevel:           "info",
		LogFormat:          "text",
		CORSAllowedOrigins: []string{"*"},
		Database: Database{
			Host: "localhost",
			Port: "5432",
		},
	}
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load resolves the configuration from CONFIG_FILE (optional) and the
// environment. A .env file in the working directory is loaded on import.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	if v, ok := lookup("HOST"); ok {
		c.Host = v
	}
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("invalid PORT environment variable %q, using %d", v, c.Port))
		} else {
			c.Port = port
		}
	}
	if v, ok := lookup("DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := lookup("STORE_DRIVER"); ok {
		c.StoreDriver = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok {
		c.CORSAllowedOrigins = splitList(v)
	}

	if v, ok := lookup("BLUEPRINT_DB_HOST"); ok {
		c.Database.Host = v
	}
	if v, ok := lookup("BLUEPRINT_DB_PORT"); ok {
		c.Database.Port = v
	}
	if v, ok := lookup("BLUEPRINT_DB_USERNAME"); ok {
		c.Database.Username = v
	}
	if v, ok := lookup("BLUEPRINT_DB_PASSWORD"); ok {
		c.Database.Password = v
	}
	if v, ok := lookup("BLUEPRINT_DB_DATABASE"); ok {
		c.Database.Name = v
	}
	if v, ok := lookup("BLUEPRINT_DB_SCHEMA"); ok {
		c.Database.Schema = v
	}
}

// Validate reports configuration that cannot be started with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverFile:
		if c.DataDir == "" {
			return errors.New("data dir must not be empty")
		}
	case DriverPostgres:
		if c.Database.Name == "" {
			return errors.New("BLUEPRINT_DB_DATABASE is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q (want %q or %q)", c.StoreDriver, DriverFile, DriverPostgres)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// lookup treats an empty variable the same as an unset one.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
