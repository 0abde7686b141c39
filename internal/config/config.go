// Package config provides configuration management for the KrishiVoice client
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all client configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Language LanguageConfig `mapstructure:"language"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentConfig configures the remote agent client
type AgentConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LanguageConfig selects the farmer-facing language
type LanguageConfig struct {
	Selected string `mapstructure:"selected"` // UI language id, e.g. "kannada"
}

// AudioConfig configures audio capture/playback
type AudioConfig struct {
	InputDevice    string        `mapstructure:"input_device"`
	InputFormat    string        `mapstructure:"input_format"` // ffmpeg -f value, e.g. "pulse", "alsa", "avfoundation"
	SampleRate     int           `mapstructure:"sample_rate"`
	MaxRecording   time.Duration `mapstructure:"max_recording"` // safety ceiling for one clip
	RecordCommand  string        `mapstructure:"record_command"`
	PlayerCommand  string        `mapstructure:"player_command"`
	TempDir        string        `mapstructure:"temp_dir"` // empty means os.TempDir
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			ServerURL: "http://localhost:8000",
			Timeout:   60 * time.Second,
		},
		Language: LanguageConfig{
			Selected: "kannada",
		},
		Audio: AudioConfig{
			InputDevice:   "default",
			InputFormat:   "pulse",
			SampleRate:    48000,
			MaxRecording:  60 * time.Second,
			RecordCommand: "ffmpeg",
			PlayerCommand: "ffplay",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := Dir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("KRISHIVOICE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("agent", cfg.Agent)
	viper.Set("language", cfg.Language)
	viper.Set("audio", cfg.Audio)
	viper.Set("logging", cfg.Logging)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// Watch re-reads the config file whenever it changes on disk and invokes
// onChange with the freshly unmarshaled configuration. Removal or rename
// events (editors replacing the file) are ignored; viper re-arms itself.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".krishivoice"), nil
}
