package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/klarolink/notifications/internal/notifyclient"
)

// watchConfig is read from flags, NOTIFY_WATCH_* variables and an optional YAML file, in that order of precedence.
type watchConfig struct {
	APIURL       string        `mapstructure:"api-url"`
	WSURL        string        `mapstructure:"ws-url"`
	UserID       string        `mapstructure:"user-id"`
	Categories   []string      `mapstructure:"categories"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	Toasts       bool          `mapstructure:"toasts"`
	LogLevel     string        `mapstructure:"log-level"`
}

func loadConfig(args []string) (*watchConfig, error) {
	fs := pflag.NewFlagSet("notify-watch", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("api-url", "http://localhost:3000", "base URL of the notification REST API")
	fs.String("ws-url", "ws://localhost:8080/ws/notifications", "notification socket endpoint")
	fs.String("user-id", "", "user id to subscribe as")
	fs.StringSlice("categories", nil, "categories to subscribe to")
	fs.String("token", "", "admin bearer token for REST calls")
	fs.Duration("poll-interval", notifyclient.DefaultPollInterval, "REST polling interval while the socket is down")
	fs.Bool("toasts", true, "print a toast for every new notification")
	fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("NOTIFY_WATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &watchConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.UserID == "" {
		return nil, errors.New("user-id is required")
	}
	return cfg, nil
}
