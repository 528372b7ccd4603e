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
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TWIND_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TWIND_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "redis.addr", typ: kString, env: "TWIND_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.ttl", typ: kString, env: "TWIND_REDIS_TTL",
		apply:   func(cfg *Config, v any) { cfg.Redis.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.TTL },
	},
	{
		key: "history.limit", typ: kInt, env: "TWIND_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.History.Limit = v.(int) },
		extract: func(cfg Config) any { return cfg.History.Limit },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "TWIND_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.model", typ: kString, env: "TWIND_PROXY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Model },
	},
	{
		key: "log.level", typ: kString, env: "TWIND_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
