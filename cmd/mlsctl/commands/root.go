package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mlsgroup/internal/app"
	"mlsgroup/internal/services/group"
)

var (
	home       string
	passphrase string
	logLevel   string

	retention   int
	kpLifetime  time.Duration
	cacheSize   int
	metricsFile string

	deps     *app.Wire
	registry *prometheus.Registry
)

func Execute() error {
	root := &cobra.Command{
		Use:          "mlsctl",
		Short:        "Group messaging sessions over files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".mlsgroup")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}
			cfg := app.Config{
				Home:               home,
				LogLevel:           logLevel,
				Retention:          retention,
				KeyPackageLifetime: kpLifetime,
				CacheSize:          cacheSize,
			}
			if metricsFile != "" {
				registry = prometheus.NewRegistry()
				cfg.Registerer = registry
			}
			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			deps = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if deps == nil {
				return nil
			}
			if registry != nil {
				if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
					_ = deps.Close()
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return deps.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.mlsgroup)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the identity")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	root.PersistentFlags().IntVar(&retention, "retention", 0, "epoch records kept per group (0 keeps all)")
	root.PersistentFlags().DurationVar(&kpLifetime, "keypackage-lifetime", 0, "validity of new key packages (0 uses the engine default)")
	root.PersistentFlags().IntVar(&cacheSize, "cache-size", 0, "open group sessions kept in memory (0 uses the default)")
	root.PersistentFlags().StringVar(&metricsFile, "metrics", "", "write group metrics to this file in Prometheus text format")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		keyPackageCmd(),
		createCmd(),
		addCmd(),
		joinCmd(),
		processCmd(),
		sendCmd(),
		commitCmd(),
		membersCmd(),
		exportSecretCmd(),
	)
	return root.Execute()
}

var errNoPassphrase = errors.New("passphrase required (-p)")

// unlock opens the identity and the group client.
func unlock() (*app.App, error) {
	if passphrase == "" {
		return nil, errNoPassphrase
	}
	return deps.Open(passphrase)
}

// loadGroup unlocks the identity and loads the group named by a hex id.
func loadGroup(hexID string) (*group.Group, error) {
	id, err := hex.DecodeString(hexID)
	if err != nil {
		return nil, fmt.Errorf("group id: %w", err)
	}
	a, err := unlock()
	if err != nil {
		return nil, err
	}
	return a.Client.LoadGroup(id)
}
