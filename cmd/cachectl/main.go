package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/agentuity/go-cache/cache"
	"github.com/agentuity/go-cache/config"
	"github.com/agentuity/go-cache/env"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and populate the configured cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "The cache config file (default config/cache.yaml)")
	root.PersistentFlags().String("driver", "", "Override the configured driver")
	root.PersistentFlags().String("log-level", "", "The log level (trace, debug, info, warn, error)")
	root.PersistentFlags().Bool("facade", false, "Go through the cache facade: honour CACHE_QUERIES and compute values while the driver fails")

	root.AddCommand(installCommand(), rememberCommand(), foreverCommand(), forgetCommand())
	return root
}

func installCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install [dir]",
		Short: "Write the default cache config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "config"
			if len(args) > 0 {
				dir = args[0]
			}
			if !config.Install(dir, env.NewLogger(cmd)) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", config.Filename(dir))
			}
			return nil
		},
	}
}

func rememberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember <key> <value>",
		Short: "Return the cached value of key, caching value for --ttl on a miss",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			return withDriver(cmd, func(ctx context.Context, d cache.Driver) error {
				val, err := d.Remember(ctx, args[0], ttl, producerOf(cmd, args[1]))
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), val)
			})
		},
	}
	cmd.Flags().Duration("ttl", time.Minute, "How long the value is cached")
	return cmd
}

func foreverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forever <key> <value>",
		Short: "Return the cached value of key, caching value without expiration on a miss",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, func(ctx context.Context, d cache.Driver) error {
				val, err := d.Forever(ctx, args[0], producerOf(cmd, args[1]))
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), val)
			})
		},
	}
}

func forgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <key>",
		Short: "Remove key from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDriver(cmd, func(ctx context.Context, d cache.Driver) error {
				return d.Forget(ctx, args[0])
			})
		},
	}
}

// loadConfig reads the config file, falling back to the defaults when it is
// missing, and applies the environment overrides.
func loadConfig(cmd *cobra.Command) (cache.Config, error) {
	fn := env.FlagOrEnv(cmd, "config", "CACHE_CONFIG", config.Filename("config"))
	cfg, err := config.Load(fn)
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return cache.Config{}, err
	}
	config.ApplyEnv(&cfg)
	if driver, _ := cmd.Flags().GetString("driver"); driver != "" {
		cfg.Driver = driver
	}
	return cfg, nil
}

func withDriver(cmd *cobra.Command, fn func(ctx context.Context, d cache.Driver) error) error {
	log := env.NewLogger(cmd)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m := cache.NewManager(cfg, cache.WithManagerLogger(log))
	m.Extend("sqlite", cache.SQLiteFactory(cache.WithLogger(log)))
	m.Extend("composite", cache.CompositeFactory(m))
	d, err := m.Driver()
	if err != nil {
		return err
	}
	if facade, _ := cmd.Flags().GetBool("facade"); facade {
		d = cache.NewWithDriver(cfg.Driver, d, cache.WithCacheLogger(log))
	}
	if closer, ok := d.(io.Closer); ok {
		defer closer.Close()
	}
	log.Debug("using %s driver", cfg.Driver)
	return fn(cmd.Context(), d)
}

// producerOf decodes value as JSON, keeping it as a plain string when it is
// not valid JSON. It reports on stderr when the value was produced.
func producerOf(cmd *cobra.Command, value string) cache.Producer {
	return cache.Deferred(func(ctx context.Context) (any, error) {
		fmt.Fprintln(cmd.ErrOrStderr(), "miss, storing value")
		var val any
		if err := json.Unmarshal([]byte(value), &val); err != nil {
			return value, nil
		}
		return val, nil
	})
}

func printValue(w io.Writer, val any) error {
	buf, err := json.Marshal(val)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(buf))
	return err
}
