package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	RetentionPersist    = "persist"
	RetentionAutoDelete = "auto-delete"
)

type Config struct {
	DiscordToken      string        `yaml:"discord_token"`
	CommandGuildID    string        `yaml:"command_guild_id"`
	MonitoredPath     string        `yaml:"monitored_path"`
	GuildConfigPath   string        `yaml:"guild_config_path"`
	HistoryPath       string        `yaml:"history_path"`
	LogLevel          string        `yaml:"log_level"`
	DisplayTimezone   string        `yaml:"display_timezone"`
	DefaultLogChannel string        `yaml:"default_log_channel"`
	RetentionDays     int           `yaml:"retention_days"`
	Monitor           MonitorConfig `yaml:"monitor"`
	Alerts            AlertConfig   `yaml:"alerts"`
	Health            HealthConfig  `yaml:"health"`
}

type MonitorConfig struct {
	CheckIntervalSeconds int `yaml:"check_interval_seconds"`
	ThresholdSeconds     int `yaml:"threshold_seconds"`
	DebounceSeconds      int `yaml:"debounce_seconds"`
}

type AlertConfig struct {
	Retention           string   `yaml:"retention"`
	AutoDeleteSeconds   int      `yaml:"auto_delete_seconds"`
	PingEveryone        bool     `yaml:"ping_everyone"`
	PingRoleIDs         []string `yaml:"ping_role_ids"`
	UITempDeleteSeconds int      `yaml:"ui_temp_delete_seconds"`
	PanelImagePath      string   `yaml:"panel_image_path"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Metrics bool   `yaml:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		MonitoredPath:   "monitored.json",
		GuildConfigPath: "config.json",
		HistoryPath:     "channelwatch.db",
		LogLevel:        "info",
		DisplayTimezone: "Asia/Ho_Chi_Minh",
		RetentionDays:   14,
		Monitor: MonitorConfig{
			CheckIntervalSeconds: 180,
			ThresholdSeconds:     300,
			DebounceSeconds:      5,
		},
		Alerts: AlertConfig{
			Retention:           RetentionPersist,
			AutoDeleteSeconds:   300,
			PingEveryone:        true,
			UITempDeleteSeconds: 10,
		},
		Health: HealthConfig{Enabled: false, Addr: ":8080", Metrics: true},
	}
}

func Load() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFile(path)
}

func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.Alerts.Retention = normalizeRetention(cfg.Alerts.Retention)
	if cfg.Monitor.CheckIntervalSeconds <= 0 {
		cfg.Monitor.CheckIntervalSeconds = 180
	}
	if cfg.Monitor.ThresholdSeconds <= 0 {
		cfg.Monitor.ThresholdSeconds = 300
	}
	if cfg.Monitor.DebounceSeconds <= 0 {
		cfg.Monitor.DebounceSeconds = 5
	}
	if cfg.Alerts.AutoDeleteSeconds <= 0 {
		cfg.Alerts.AutoDeleteSeconds = 300
	}
	if cfg.Alerts.UITempDeleteSeconds <= 0 {
		cfg.Alerts.UITempDeleteSeconds = 10
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.CommandGuildID = envString("BOT_GUILD_ID", cfg.CommandGuildID)
	cfg.MonitoredPath = envString("MONITORED_PATH", cfg.MonitoredPath)
	cfg.GuildConfigPath = envString("GUILD_CONFIG_PATH", cfg.GuildConfigPath)
	cfg.HistoryPath = envString("HISTORY_PATH", cfg.HistoryPath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DisplayTimezone = envString("DISPLAY_TIMEZONE", cfg.DisplayTimezone)
	cfg.DefaultLogChannel = envString("DEFAULT_LOG_CHANNEL", cfg.DefaultLogChannel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.Monitor.CheckIntervalSeconds = envInt("CHECK_INTERVAL_SECONDS", cfg.Monitor.CheckIntervalSeconds)
	cfg.Monitor.ThresholdSeconds = envInt("THRESHOLD_SECONDS", cfg.Monitor.ThresholdSeconds)
	cfg.Monitor.DebounceSeconds = envInt("DEBOUNCE_SECONDS", cfg.Monitor.DebounceSeconds)
	cfg.Alerts.Retention = envString("ALERT_RETENTION", cfg.Alerts.Retention)
	cfg.Alerts.AutoDeleteSeconds = envInt("ALERT_AUTO_DELETE_SECONDS", cfg.Alerts.AutoDeleteSeconds)
	cfg.Alerts.PingEveryone = envBool("PING_EVERYONE", cfg.Alerts.PingEveryone)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Health.Metrics = envBool("HEALTH_METRICS", cfg.Health.Metrics)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeRetention(value string) string {
	switch strings.ToLower(value) {
	case RetentionAutoDelete, "autodelete", "auto_delete":
		return RetentionAutoDelete
	default:
		return RetentionPersist
	}
}
