package config

import "time"

type Config struct {
	Server  ServerConfig
	Poll    PollConfig
	Chat    ChatConfig
	Storage StorageConfig
	Mock    MockConfig
}

type ServerConfig struct {
	BaseURL string
	UserID  string
}

type PollConfig struct {
	IntervalSeconds int
}

type ChatConfig struct {
	// TimeoutSeconds of 0 means no ceiling; generation can be slow.
	TimeoutSeconds int
}

type StorageConfig struct {
	DataDir string
}

type MockConfig struct {
	BatchSize int
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
			UserID:  "default",
		},
		Poll: PollConfig{
			IntervalSeconds: 5,
		},
		Chat: ChatConfig{
			TimeoutSeconds: 0,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Mock: MockConfig{
			BatchSize: 50,
		},
	}
}

// PollInterval returns the background refresh cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

// ChatTimeout returns the chat request ceiling; zero means unlimited.
func (c Config) ChatTimeout() time.Duration {
	return time.Duration(c.Chat.TimeoutSeconds) * time.Second
}

// Load reads configuration from the platform-native backend with
// environment overrides.
//
// On macOS the backend is UserDefaults (domain: com.ragchat.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/ragchat/config.json.
//
// Environment variables (RAGCHAT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
