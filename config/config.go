// Package config loads the YAML settings file and applies QUILL_* environment
// overrides. API keys are never stored in the file; they come from the
// environment only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"quill/hotkey"
)

type HotkeyConfig struct {
	Binding     string `mapstructure:"binding" yaml:"binding"`
	Mode        string `mapstructure:"mode" yaml:"mode"`
	LongPressMs int    `mapstructure:"long_press_ms" yaml:"long_press_ms"`
}

type InjectionConfig struct {
	Method string `mapstructure:"method" yaml:"method"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Max  int    `mapstructure:"max" yaml:"max"`
}

type AudioConfig struct {
	Device       string `mapstructure:"device" yaml:"device"`
	MinCaptureMs int    `mapstructure:"min_capture_ms" yaml:"min_capture_ms"`
}

type IdleConfig struct {
	WarnSeconds int `mapstructure:"warn_seconds" yaml:"warn_seconds"`
	StopSeconds int `mapstructure:"stop_seconds" yaml:"stop_seconds"`
}

type Config struct {
	Provider  string          `mapstructure:"provider" yaml:"provider"`
	Language  string          `mapstructure:"language" yaml:"language"`
	Format    string          `mapstructure:"format" yaml:"format"`
	Theme     string          `mapstructure:"theme" yaml:"theme"`
	Hotkey    HotkeyConfig    `mapstructure:"hotkey" yaml:"hotkey"`
	Injection InjectionConfig `mapstructure:"injection" yaml:"injection"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Idle      IdleConfig      `mapstructure:"idle" yaml:"idle"`
}

// ConfigDir returns the settings directory, ~/.config/quill by default.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "quill"), nil
}

// DefaultPath is the config file location used when no --config flag is given.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Default() Config {
	return Config{
		Provider: "auto",
		Language: "",
		Format:   "flac",
		Theme:    "dark",
		Hotkey: HotkeyConfig{
			Binding:     hotkey.DefaultBinding.String(),
			Mode:        "hybrid",
			LongPressMs: 600,
		},
		Injection: InjectionConfig{Method: "keystroke"},
		History:   HistoryConfig{Max: 50},
		Audio:     AudioConfig{MinCaptureMs: 100},
		Idle:      IdleConfig{WarnSeconds: 8, StopSeconds: 30},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("provider", d.Provider)
	v.SetDefault("language", d.Language)
	v.SetDefault("format", d.Format)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("hotkey.binding", d.Hotkey.Binding)
	v.SetDefault("hotkey.mode", d.Hotkey.Mode)
	v.SetDefault("hotkey.long_press_ms", d.Hotkey.LongPressMs)
	v.SetDefault("injection.method", d.Injection.Method)
	v.SetDefault("history.path", "")
	v.SetDefault("history.max", d.History.Max)
	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.min_capture_ms", d.Audio.MinCaptureMs)
	v.SetDefault("idle.warn_seconds", d.Idle.WarnSeconds)
	v.SetDefault("idle.stop_seconds", d.Idle.StopSeconds)
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error: defaults plus environment overrides
// apply. Every key can be overridden with QUILL_SECTION_KEY variables, e.g.
// QUILL_HOTKEY_BINDING=Ctrl+Alt+D.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if c.History.Path == "" {
		dir, err := ConfigDir()
		if err != nil {
			return Config{}, err
		}
		c.History.Path = filepath.Join(dir, "history.json")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	switch c.Provider {
	case "auto", "deepgram", "groq", "openai":
	default:
		return fmt.Errorf("provider must be auto, deepgram, groq or openai, got %q", c.Provider)
	}
	switch c.Format {
	case "flac", "wav":
	default:
		return fmt.Errorf("format must be flac or wav, got %q", c.Format)
	}
	switch c.Hotkey.Mode {
	case "ptt", "toggle", "hybrid":
	default:
		return fmt.Errorf("hotkey.mode must be ptt, toggle or hybrid, got %q", c.Hotkey.Mode)
	}
	if _, err := hotkey.ParseBinding(c.Hotkey.Binding); err != nil {
		return fmt.Errorf("hotkey.binding: %w", err)
	}
	if c.Hotkey.LongPressMs <= 0 {
		return fmt.Errorf("hotkey.long_press_ms must be positive, got %d", c.Hotkey.LongPressMs)
	}
	switch c.Injection.Method {
	case "keystroke", "paste":
	default:
		return fmt.Errorf("injection.method must be keystroke or paste, got %q", c.Injection.Method)
	}
	if c.History.Max <= 0 {
		return fmt.Errorf("history.max must be positive, got %d", c.History.Max)
	}
	if c.Audio.MinCaptureMs < 0 {
		return fmt.Errorf("audio.min_capture_ms cannot be negative, got %d", c.Audio.MinCaptureMs)
	}
	if c.Idle.StopSeconds > 0 && c.Idle.WarnSeconds >= c.Idle.StopSeconds {
		return fmt.Errorf("idle.warn_seconds (%d) must be below idle.stop_seconds (%d)",
			c.Idle.WarnSeconds, c.Idle.StopSeconds)
	}
	return nil
}

// Binding returns the parsed hotkey combination. Call Validate first.
func (c Config) Binding() hotkey.Binding {
	b, _ := hotkey.ParseBinding(c.Hotkey.Binding)
	return b
}

// Save writes the config as YAML to path, creating directories as needed.
func Save(c Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	v := viper.New()
	v.Set("provider", c.Provider)
	v.Set("language", c.Language)
	v.Set("format", c.Format)
	v.Set("theme", c.Theme)
	v.Set("hotkey.binding", c.Hotkey.Binding)
	v.Set("hotkey.mode", c.Hotkey.Mode)
	v.Set("hotkey.long_press_ms", c.Hotkey.LongPressMs)
	v.Set("injection.method", c.Injection.Method)
	v.Set("history.path", c.History.Path)
	v.Set("history.max", c.History.Max)
	v.Set("audio.device", c.Audio.Device)
	v.Set("audio.min_capture_ms", c.Audio.MinCaptureMs)
	v.Set("idle.warn_seconds", c.Idle.WarnSeconds)
	v.Set("idle.stop_seconds", c.Idle.StopSeconds)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}
