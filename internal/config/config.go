package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type TURNConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Port     int               `mapstructure:"port"`
	Realm    string            `mapstructure:"realm"`
	PublicIP string            `mapstructure:"public_ip"`
	Users    map[string]string `mapstructure:"users"`
}

// ClientConfig is consumed by the peer session controller; the relay server
// ignores it.
type ClientConfig struct {
	RelayURL           string        `mapstructure:"relay_url"`
	STUNServers        []string      `mapstructure:"stun_servers"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff   time.Duration `mapstructure:"reconnect_backoff"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	DBPath     string        `mapstructure:"db_path"`
	TURN       TURNConfig    `mapstructure:"turn"`
	Client     ClientConfig  `mapstructure:"client"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to dev.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile parses the given yaml file; a missing file just yields defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("db_path", "telecall.db")
	v.SetDefault("turn.enabled", false)
	v.SetDefault("turn.port", 3478)
	v.SetDefault("turn.realm", "telecall")
	v.SetDefault("client.relay_url", "ws://localhost:8080/ws/signal")
	v.SetDefault("client.stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("client.negotiation_timeout", "30s")
	v.SetDefault("client.reconnect_attempts", 3)
	v.SetDefault("client.reconnect_backoff", "500ms")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
