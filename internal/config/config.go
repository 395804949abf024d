// Package config loads agentshell settings from (in increasing
// priority) built-in defaults, a viper-bound YAML config file,
// AGENTSHELL_-prefixed environment variables, and CLI flags —
// mirroring the precedence chain the teacher's
// internal/profile.Profile.FromEnv establishes (SPEC_FULL §6).
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of runtime settings.
type Config struct {
	LogDir                string
	MaxConcurrentSessions int
	RingBufferCapacity    int
	DurableLogEnabled     bool
	SubprocessTimeout     time.Duration
	RequestTimeout        time.Duration
	HTTPAPIAddr           string // empty disables the observability API
	Model                 string
	Silence               bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/agentshell/config.yaml,
// falling back to $HOME/.config/agentshell/config.yaml.
func DefaultConfigPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, "agentshell", "config.yaml")
}

// RegisterFlags adds the persistent flags Load reads, and binds
// them into v so flags take precedence over file and environment
// values once parsed.
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to config file")
	flags.String("log-dir", "", "directory for durable session logs")
	flags.Int("max-concurrent-sessions", 10, "maximum simultaneously running subprocess sessions")
	flags.Int("ring-buffer-capacity", 1000, "per-session output ring buffer capacity")
	flags.Bool("durable-log-enabled", true, "persist session output to disk (has no effect: the streamer always writes session logs)")
	flags.Duration("subprocess-timeout", 0, "default subprocess timeout (has no effect: /shell sessions run without a timeout)")
	flags.Duration("request-timeout", 120*time.Second, "task runner request timeout")
	flags.String("http-api-addr", "", "address for the optional HTTP observability API (empty disables it)")
	flags.String("model", "gpt-4o-mini", "default LLM model")
	flags.Bool("silence", false, "suppress REPL banners, for scripted use")

	for _, name := range []string{
		"config", "log-dir", "max-concurrent-sessions", "ring-buffer-capacity",
		"durable-log-enabled", "subprocess-timeout", "request-timeout",
		"http-api-addr", "model", "silence",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

// Load resolves the final Config from v, after RegisterFlags has bound
// flags and any config file named by --config has been read.
func Load(v *viper.Viper) (Config, error) {
	v.SetDefault("log-dir", defaultLogDir())
	v.SetEnvPrefix("agentshell")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigFile(DefaultConfigPath())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	return Config{
		LogDir:                v.GetString("log-dir"),
		MaxConcurrentSessions: v.GetInt("max-concurrent-sessions"),
		RingBufferCapacity:    v.GetInt("ring-buffer-capacity"),
		DurableLogEnabled:     v.GetBool("durable-log-enabled"),
		SubprocessTimeout:     v.GetDuration("subprocess-timeout"),
		RequestTimeout:        v.GetDuration("request-timeout"),
		HTTPAPIAddr:           v.GetString("http-api-addr"),
		Model:                 v.GetString("model"),
		Silence:               v.GetBool("silence"),
		OpenAIAPIKey:          os.Getenv("AGENTSHELL_OPENAI_API_KEY"),
		OpenAIBaseURL:         os.Getenv("AGENTSHELL_OPENAI_BASE_URL"),
	}, nil
}

func defaultLogDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, "agentshell", "logs")
}
