// Package cli provides the bmschat command-line interface. Each invocation
// builds a fresh messaging core directly from the profile configuration;
// the long-lived connection belongs to bmschatd, not to one-shot commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/auth"
	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/client"
	"github.com/imramesh222/bms-chat/internal/config"
	"github.com/imramesh222/bms-chat/internal/conn"
	"github.com/imramesh222/bms-chat/internal/delivery"
	"github.com/imramesh222/bms-chat/internal/profile"
	"github.com/imramesh222/bms-chat/internal/reconcile"
	"github.com/imramesh222/bms-chat/internal/rest"
	"github.com/imramesh222/bms-chat/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	profileFlag string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bmschat",
	Short: "Realtime chat client for the dashboard",
	Long: `bmschat talks to the dashboard's chat backend: it lists conversations,
sends messages over REST, and can tail the realtime event stream.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(tailCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildCore assembles a messaging core for the resolved profile.
func buildCore() (*client.Core, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	tokens := auth.Env(cfg.Server.TokenEnv)
	b := bus.New(logger)
	st := store.New(cfg.Server.UserID, b, logger)

	cc := cfg.Connection
	mgr := conn.NewManager(conn.Options{
		TokenSource:  tokens,
		Logger:       logger,
		PingInterval: time.Duration(cc.PingIntervalSeconds) * time.Second,
		PongTimeout:  time.Duration(cc.PongTimeoutSeconds) * time.Second,
		BackoffBase:  time.Duration(cc.BackoffBaseMillis) * time.Millisecond,
		BackoffCap:   time.Duration(cc.BackoffCapMillis) * time.Millisecond,
		MaxAttempts:  cc.MaxAttempts,
		QueueCap:     cc.QueueCap,
	})

	api := rest.NewClient(cfg.Server.BaseURL, tokens, logger)
	rec := reconcile.New(st, time.Duration(cfg.Reconcile.DedupWindowSeconds)*time.Second, logger)
	del := delivery.New(st, mgr, api, rec, b, logger)

	return client.New(client.Deps{
		ServerURL:  cfg.Server.RealtimeEndpoint(),
		Conn:       mgr,
		Bus:        b,
		Store:      st,
		Reconciler: rec,
		Delivery:   del,
		API:        api,
		Logger:     logger,
	}), nil
}
