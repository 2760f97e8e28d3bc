package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath = "DPSMETER_CONFIG"
	EnvLogLevel   = "DPSMETER_LOG_LEVEL"
	EnvCharacter  = "DPSMETER_CHARACTER"
	EnvListen     = "DPSMETER_LISTEN"
	EnvDebug      = "DPSMETER_DEBUG"

	fileName = "dpsmeter.yaml"
)

// Flow is the last confirmed capture flow. The values are opaque to the meter.
type Flow struct {
	IP     string `yaml:"ip"`
	Port   int    `yaml:"port"`
	Device string `yaml:"device"`
}

type Config struct {
	CharacterName string `yaml:"characterName"`
	KnownActorID  int    `yaml:"knownActorId"`
	LastFlow      Flow   `yaml:"lastFlow"`

	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"logLevel"`

	SelectionMode    string        `yaml:"selectionMode"`
	LegacyMode       string        `yaml:"legacyMode"`
	LastHitWindow    time.Duration `yaml:"lastHitWindow"`
	AllTargetsWindow time.Duration `yaml:"allTargetsWindow"`
	PollInterval     time.Duration `yaml:"pollInterval"`

	Listen      string `yaml:"listen"`
	CatalogPath string `yaml:"catalogPath"`
	MaxFlows    int    `yaml:"maxFlows"`
}

func Default() Config {
	return Config{
		LogLevel:         "info",
		SelectionMode:    "lastHitByMe",
		LegacyMode:       "bossOnly",
		LastHitWindow:    10 * time.Second,
		AllTargetsWindow: 0,
		PollInterval:     250 * time.Millisecond,
		Listen:           "127.0.0.1:8787",
		MaxFlows:         16,
	}
}

// Load reads the yaml config from DPSMETER_CONFIG or the first candidate path
// that exists, then applies .env and environment overrides. A missing file is
// not an error. The returned path is the file that was read, if any.
func Load() (cfg Config, path string, err error) {
	cfg = Default()
	_ = godotenv.Load()

	if envPath := strings.TrimSpace(os.Getenv(EnvConfigPath)); envPath != "" {
		path, err = loadFile(&cfg, envPath)
	} else {
		for _, p := range candidatePaths() {
			path, err = loadFile(&cfg, p)
			if path != "" || err != nil {
				break
			}
		}
	}
	if err != nil {
		return cfg, path, err
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

func loadFile(cfg *Config, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return p, fmt.Errorf("read config %s: %w", p, err)
	}
	var raw Config
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return p, fmt.Errorf("parse config %s: %w", p, err)
	}
	overlay(cfg, raw)
	return p, nil
}

// overlay copies the non-empty values of raw onto cfg.
func overlay(cfg *Config, raw Config) {
	setString(&cfg.CharacterName, raw.CharacterName)
	setString(&cfg.LastFlow.IP, raw.LastFlow.IP)
	setString(&cfg.LastFlow.Device, raw.LastFlow.Device)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.SelectionMode, raw.SelectionMode)
	setString(&cfg.LegacyMode, raw.LegacyMode)
	setString(&cfg.Listen, raw.Listen)
	setString(&cfg.CatalogPath, raw.CatalogPath)
	if raw.KnownActorID > 0 {
		cfg.KnownActorID = raw.KnownActorID
	}
	if raw.LastFlow.Port > 0 {
		cfg.LastFlow.Port = raw.LastFlow.Port
	}
	if raw.Debug {
		cfg.Debug = true
	}
	if raw.LastHitWindow > 0 {
		cfg.LastHitWindow = raw.LastHitWindow
	}
	if raw.AllTargetsWindow > 0 {
		cfg.AllTargetsWindow = raw.AllTargetsWindow
	}
	if raw.PollInterval > 0 {
		cfg.PollInterval = raw.PollInterval
	}
	if raw.MaxFlows > 0 {
		cfg.MaxFlows = raw.MaxFlows
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, os.Getenv(EnvLogLevel))
	setString(&cfg.CharacterName, os.Getenv(EnvCharacter))
	setString(&cfg.Listen, os.Getenv(EnvListen))
	if v := strings.TrimSpace(os.Getenv(EnvDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// Save writes cfg as yaml, creating the parent directory when needed.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is empty")
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// DefaultPath is where Save writes when no config file was found.
func DefaultPath() string {
	if p := candidatePaths(); len(p) > 0 {
		return p[len(p)-1]
	}
	return fileName
}

func candidatePaths() []string {
	var out []string

	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), fileName))
	}

	if base, err := os.UserConfigDir(); err == nil {
		folder := "dpsmeter"
		if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
			folder = "DPSMeter"
		}
		out = append(out, filepath.Join(base, folder, fileName))
	}

	return out
}
