package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port      string `mapstructure:"port"`
		StaticDir string `mapstructure:"static_dir"`
		Debug     bool   `mapstructure:"debug"`
	} `mapstructure:"server"`

	Store struct {
		Type string `mapstructure:"type"` // "sqlite", "file" or "memory"
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	ML struct {
		Type            string        `mapstructure:"type"` // "google"
		ProjectID       string        `mapstructure:"project_id"`
		Location        string        `mapstructure:"location"`
		CredentialsFile string        `mapstructure:"credentials_file"`
		Model           string        `mapstructure:"model"`
		Temperature     float32       `mapstructure:"temperature"`
		Timeout         time.Duration `mapstructure:"timeout"`
	} `mapstructure:"ml"`

	Camera struct {
		Width       int    `mapstructure:"width"`
		Height      int    `mapstructure:"height"`
		Facing      string `mapstructure:"facing"` // "rear" or "front"
		JPEGQuality int    `mapstructure:"jpeg_quality"`
	} `mapstructure:"camera"`

	Access struct {
		Enabled     bool          `mapstructure:"enabled"`
		Endpoint    string        `mapstructure:"endpoint"`
		BypassCodes []string      `mapstructure:"bypass_codes"`
		Codes       []string      `mapstructure:"codes"` // checked locally when no endpoint is set
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"access"`

	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.static_dir", "./static")
	v.SetDefault("server.debug", false)
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.path", "fooddeclare.db")
	v.SetDefault("ml.type", "google")
	v.SetDefault("ml.location", "us-central1")
	v.SetDefault("ml.model", "gemini-2.5-flash")
	v.SetDefault("ml.temperature", 0.1)
	v.SetDefault("ml.timeout", 30*time.Second)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.facing", "rear")
	v.SetDefault("camera.jpeg_quality", 90)
	v.SetDefault("access.enabled", false)
	v.SetDefault("access.timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// LoadConfig loads configuration from defaults, an optional JSON file and
// FOODDECLARE_* environment variables. A configPath that does not exist is
// an error; an empty configPath falls back to GetConfigPath and tolerates
// a missing file.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("FOODDECLARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("json")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigFile(GetConfigPath())
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return fmt.Errorf("server port is not set")
	}
	switch c.Store.Type {
	case "sqlite", "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store path cannot be empty for store type %q", c.Store.Type)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}
	if c.ML.Timeout <= 0 {
		return fmt.Errorf("ml timeout must be positive (got %s)", c.ML.Timeout)
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return fmt.Errorf("camera jpeg_quality must be within 1..100 (got %d)", c.Camera.JPEGQuality)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution must be positive (got %dx%d)", c.Camera.Width, c.Camera.Height)
	}
	if c.Access.Enabled && c.Access.Endpoint == "" && len(c.Access.BypassCodes) == 0 && len(c.Access.Codes) == 0 {
		return fmt.Errorf("access gate enabled without endpoint or codes")
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("FOODDECLARE_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	configDir := "config"
	if _, err := os.Stat(configDir); err == nil {
		return filepath.Join(configDir, "config.json")
	}

	// Finally, try current directory
	return "config.json"
}
