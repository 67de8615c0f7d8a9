package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.base_url", typ: kString, env: "RAGCHAT_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "server.user_id", typ: kString, env: "RAGCHAT_SERVER_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Server.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.UserID },
	},
	{
		key: "poll.interval_seconds", typ: kInt, env: "RAGCHAT_POLL_INTERVAL_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Poll.IntervalSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Poll.IntervalSeconds },
	},
	{
		key: "chat.timeout_seconds", typ: kInt, env: "RAGCHAT_CHAT_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Chat.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.TimeoutSeconds },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RAGCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "mock.batch_size", typ: kInt, env: "RAGCHAT_MOCK_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Mock.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Mock.BatchSize },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
