package config

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	History HistoryConfig
	Proxy   ProxyConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// RedisConfig controls the session history backend. An empty Addr selects
// the in-process store.
type RedisConfig struct {
	Addr string
	TTL  string
}

type HistoryConfig struct {
	Limit int
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	Model            string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Redis: RedisConfig{
			Addr: "",
			TTL:  "24h",
		},
		History: HistoryConfig{
			Limit: 50,
		},
		Proxy: ProxyConfig{
			Model: "anthropic/claude-opus-4",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/twind/config.json, then applies TWIND_* environment
// overrides and secrets from secrets.json.
//
// The OpenRouter API key is optional: endpoints that need the LLM report an
// api_error when it is missing instead of refusing to start.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), loadSecretsFile())
}

func loadWith(b ConfigBackend, sec secrets) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if cfg.Proxy.OpenRouterAPIKey == "" {
		cfg.Proxy.OpenRouterAPIKey = sec.OpenRouterAPIKey
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
