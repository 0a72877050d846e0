package provider

import (
	"time"

	"github.com/spf13/viper"
)

// Credentials of one external service
type Credentials struct {
	Key          string
	URL          string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Configured checks the key presence
func (c Credentials) Configured() bool {
	return c.Key != ""
}

// Config holds credentials of all external model services
type Config struct {
	OpenAI     Credentials
	AssemblyAI Credentials
	Gemini     Credentials
}

// LoadConfig reads credentials from viper sections openai, assemblyai, gemini
func LoadConfig(cfg *viper.Viper) Config {
	return Config{
		OpenAI:     load(cfg, "openai"),
		AssemblyAI: load(cfg, "assemblyai"),
		Gemini:     load(cfg, "gemini"),
	}
}

func load(cfg *viper.Viper, prefix string) Credentials {
	return Credentials{
		Key:          cfg.GetString(prefix + ".key"),
		URL:          cfg.GetString(prefix + ".url"),
		Model:        cfg.GetString(prefix + ".model"),
		Timeout:      cfg.GetDuration(prefix + ".timeout"),
		PollInterval: cfg.GetDuration(prefix + ".pollInterval"),
	}
}
