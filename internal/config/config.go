package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

const (
	MinRounds = 1
	MaxRounds = 20

	MinTimerSeconds = 10
	MaxTimerSeconds = 600
)

type AppConfig struct {
	BridgeBaseURL string
	BridgeWSURL   string

	BotPrefix string

	AllowedRooms []string

	RedisURL    string
	DatabaseURL string

	QuestionsFile string

	DefaultRounds       int
	DefaultTimerSeconds int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		BotPrefix:           "/",
		DefaultRounds:       4,
		DefaultTimerSeconds: 90,
	}

	cfg.BridgeBaseURL = strings.TrimSpace(os.Getenv("BRIDGE_BASE_URL"))
	cfg.BridgeWSURL = strings.TrimSpace(os.Getenv("BRIDGE_WS_URL"))

	if v := strings.TrimSpace(os.Getenv("BOT_PREFIX")); v != "" {
		cfg.BotPrefix = v
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.QuestionsFile = strings.TrimSpace(os.Getenv("QUESTIONS_FILE"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("DEFAULT_ROUNDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinRounds || n > MaxRounds {
			return nil, errors.New("DEFAULT_ROUNDS must be an integer between 1 and 20")
		}
		cfg.DefaultRounds = n
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_TIMER")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < MinTimerSeconds || n > MaxTimerSeconds {
			return nil, errors.New("DEFAULT_TIMER must be seconds between 10 and 600")
		}
		cfg.DefaultTimerSeconds = n
	}

	if cfg.BridgeBaseURL == "" {
		return nil, errors.New("BRIDGE_BASE_URL is required")
	}
	if cfg.BridgeWSURL == "" {
		return nil, errors.New("BRIDGE_WS_URL is required")
	}

	return cfg, nil
}
