// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webtraversal/internal/config"
	"github.com/xkilldash9x/webtraversal/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// envPrefix prefixes environment overrides, e.g. WTL_BROWSER_HEADLESS=false.
const envPrefix = "WTL"

const logFileName = "wtl.log"

// NewRootCommand builds a fresh command tree. Every invocation gets its own
// flag state.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile   string
		overrides []string
	)

	root := &cobra.Command{
		Use:           "webtraversal",
		Short:         "webtraversal drives browsers through websites, one classified snapshot at a time.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			if err := config.ApplyOverrides(v, overrides); err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// Saved runs keep their log next to the snapshots.
			if cfg.Debug.Save && cfg.Logger.LogFile == "" {
				if out, err := cmd.Flags().GetString("output"); err == nil && out != "" {
					cfg.Logger.LogFile = filepath.Join(out, logFileName)
				}
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringArrayVar(&overrides, "set", nil, "override a configuration key, e.g. --set browser.headless=false")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line against ctx. Errors are logged before being
// returned.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, if any, and environment variables into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFrom returns the configuration loaded by the root command.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration was not loaded")
	}
	return cfg, nil
}
