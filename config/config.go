// Package config loads the server configuration.
//
// Precedence, highest first: command-line flags bound by cmd/server,
// ATTENDANCE_* environment variables (a .env file in the working directory
// is loaded into the environment first), the attendance.yaml config file,
// then the defaults below.
//
// Keys are dotted; the environment form upper-cases them and replaces dots
// with underscores: server.port -> ATTENDANCE_SERVER_PORT.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/attendance-engine/logging"
)

const (
	EnvPrefix  = "ATTENDANCE"
	ConfigName = "attendance"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
	Gallery  GalleryConfig  `mapstructure:"gallery"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	StaticDir   string   `mapstructure:"static_dir"` // optional front-end bundle
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type UploadsConfig struct {
	Dir string `mapstructure:"dir"`
}

type AdminConfig struct {
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GalleryConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.attendance")
	}
	v.AddConfigPath("/etc/attendance")
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.path", "attendance.db")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("admin.password", "88888888")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("gallery.cache_ttl", 5*time.Minute)
}

// LoadDotEnv loads path into the process environment if it exists. Values
// already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file (configFile, or the search path when empty),
// then unmarshals and validates. A missing file on the search path is not
// an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if strings.TrimSpace(c.Admin.Password) == "" {
		return errors.New("admin.password must not be empty")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Gallery.CacheTTL < 0 {
		return errors.New("gallery.cache_ttl must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}
