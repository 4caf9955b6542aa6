// Package cmd wires configuration, credential resolution, and the probe run
// into the nimprobe entrypoint.
package cmd

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"nimprobe/internal/constants/kimi"
	"nimprobe/internal/env"
	"nimprobe/internal/logger"
	"nimprobe/internal/probe"
	"nimprobe/internal/utils"
)

type config struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	Prompt      string        `mapstructure:"prompt"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	Stream      bool          `mapstructure:"stream"`
	Thinking    bool          `mapstructure:"thinking"`
	Timeout     time.Duration `mapstructure:"timeout"`
	EnvFile     string        `mapstructure:"env_file"`
	LogLevel    string        `mapstructure:"log_level"`
}

// Run parses flags and optional config, then executes one probe. The return
// value is the process exit code: 1 only when the credential is missing,
// otherwise 0 even after a failed request, matching the tool's contract of
// "configuration errors are fatal, request errors are reported".
func Run() int {
	configPath := pflag.StringP("config", "c", "", "config file location e.g. ./nimprobe.yaml")
	pflag.String("endpoint", kimi.DefaultEndpoint, "chat completions endpoint URL")
	pflag.String("model", kimi.DefaultModel, "model identifier to request")
	pflag.String("prompt", kimi.DefaultPrompt, "user message to send")
	pflag.Bool("stream", true, "request a streamed (SSE) response")
	pflag.Duration("timeout", kimi.DefaultTimeout, "request timeout")
	pflag.String("env-file", ".env", "credentials file to load")
	pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	pflag.Parse()

	v := viper.NewWithOptions(
		viper.EnvKeyReplacer(strings.NewReplacer("-", "_")),
	)

	if *configPath != "" {
		v.SetConfigFile(*configPath)
	} else {
		v.SetConfigName("nimprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetDefault("endpoint", kimi.DefaultEndpoint)
	v.SetDefault("model", kimi.DefaultModel)
	v.SetDefault("prompt", kimi.DefaultPrompt)
	v.SetDefault("max_tokens", kimi.DefaultMaxTokens)
	v.SetDefault("temperature", kimi.DefaultTemperature)
	v.SetDefault("top_p", kimi.DefaultTopP)
	v.SetDefault("stream", true)
	v.SetDefault("thinking", true)
	v.SetDefault("timeout", kimi.DefaultTimeout)
	v.SetDefault("env_file", ".env")
	v.SetDefault("log_level", "info")

	// Bound one by one: flag names are dashed, config keys use underscores.
	v.BindPFlag("endpoint", pflag.Lookup("endpoint"))
	v.BindPFlag("model", pflag.Lookup("model"))
	v.BindPFlag("prompt", pflag.Lookup("prompt"))
	v.BindPFlag("stream", pflag.Lookup("stream"))
	v.BindPFlag("timeout", pflag.Lookup("timeout"))
	v.BindPFlag("env_file", pflag.Lookup("env-file"))
	v.BindPFlag("log_level", pflag.Lookup("log-level"))
	v.AutomaticEnv()

	lgr := logger.New(logger.LevelFromString(v.GetString("log_level")), os.Stdout)

	// A config file is optional for a smoke tester; defaults alone must work.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			lgr.Warnf("could not read config file: %v", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		lgr.Errorf("unmarshaling config: %v", err)
		return 1
	}
	// Log level may have come from config rather than the flag.
	lgr = logger.New(logger.LevelFromString(cfg.LogLevel), os.Stdout)

	return run(cfg, nil, os.Stdout, lgr)
}

// run executes the probe against a resolved configuration. The client and
// output writer are injectable for tests; a nil client means the probe
// builds its own.
func run(cfg config, client *http.Client, out io.Writer, lgr *logger.Logger) int {
	if err := env.Load(cfg.EnvFile); err != nil {
		lgr.Warnf("%v", err)
	}

	apiKey := os.Getenv(kimi.APIKeyVar)
	if apiKey == "" {
		lgr.Errorf("missing %s in environment or %s", kimi.APIKeyVar, cfg.EnvFile)
		return 1
	}

	lgr.Infof("Testing %s (Key: %s...)...", cfg.Model, keyPreview(apiKey))
	lgr.Debugf("probe %s: POST %s stream=%t", utils.GenerateProbeID(), cfg.Endpoint, cfg.Stream)

	p := probe.New(probe.Options{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		ApiKey:      apiKey,
		Prompt:      cfg.Prompt,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Stream:      cfg.Stream,
		Thinking:    cfg.Thinking,
		Timeout:     cfg.Timeout,
		HTTPClient:  client,
		Output:      out,
		Logger:      lgr,
	})

	if err := p.Run(context.Background()); err != nil {
		// Request failures are reported but keep exit status 0; only a
		// missing credential is fatal.
		lgr.Errorf("%v", err)
	}
	return 0
}

func keyPreview(key string) string {
	if len(key) > 10 {
		key = key[:10]
	}
	return key
}
