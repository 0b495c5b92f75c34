package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	SummaryTime    string
	Location       *time.Location
	WeekStart      time.Weekday
	LogLevel       string
	LogFile        string
}

// Load reads configuration from the environment and an optional .env file
// in the working directory.
func Load() (Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with the .env file looked up in dir.
func LoadFrom(dir string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "task_planner.db")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("WEEK_START", "monday")
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		ReportInterval: parseInterval(strings.TrimSpace(v.GetString("REPORT_INTERVAL_HOURS"))),
		SummaryTime:    strings.TrimSpace(v.GetString("SUMMARY_TIME")),
		LogLevel:       strings.TrimSpace(v.GetString("LOG_LEVEL")),
		LogFile:        strings.TrimSpace(v.GetString("LOG_FILE")),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "task_planner.db"
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	loc, err := parseLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return cfg, err
	}
	cfg.Location = loc

	weekStart, err := parseWeekday(v.GetString("WEEK_START"))
	if err != nil {
		return cfg, err
	}
	cfg.WeekStart = weekStart

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

func parseLocation(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", raw, err)
	}
	return loc, nil
}

func parseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if value == name || value == name[:3] {
			return day, nil
		}
	}
	return time.Monday, fmt.Errorf("WEEK_START %q is not a weekday", raw)
}
