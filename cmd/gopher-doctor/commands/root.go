package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/tonyjoanes/gopher-doctor/internal/config"
)

const Version = "0.2.0"

var (
	configPath string
	logLevel   string
	dbPath     string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
	// overrides collects config keys set by subcommand flags.
	overrides = map[string]any{}
)

// flagKeys maps string flags onto the config keys they override.
var flagKeys = map[string]string{
	"log-level": "logLevel",
	"context":   "kubeContext",
	"model":     "llm.model",
	"provider":  "llm.provider",
	"addr":      "server.addr",
	"db":        "store.path",
}

var rootCmd = &cobra.Command{
	Use:   "gopher-doctor",
	Short: "gopher-doctor - Kubernetes namespace diagnostics",
	Long: `gopher-doctor inspects the pods, nodes and events of one namespace,
classifies what is wrong, groups related failures by owning workload,
reads the logs of the worst offenders and writes a diagnostic report.
It never modifies the cluster.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		for flag, key := range flagKeys {
			if !cmd.Flags().Changed(flag) {
				continue
			}
			value, err := cmd.Flags().GetString(flag)
			if err != nil {
				return err
			}
			overrides[key] = value
		}
		loaded, err := config.Load(configPath, overrides)
		if err != nil {
			return err
		}
		cfg = loaded
		return setupLog(cfg.LogLevel, cmd.Name() != operatorCmd.Name())
	},
}

// Execute runs the root command and prints any error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "gopher-doctor: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default ~/.gopher-doctor/config.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"Path to the report history database (default ~/.gopher-doctor/history.db)")

	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(operatorCmd)
}

var zapLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// setupLog installs the process-wide logr logger. Logs go to stderr so the
// report on stdout stays clean.
func setupLog(level string, dev bool) error {
	lvl, ok := zapLevels[level]
	if !ok {
		return fmt.Errorf("invalid log level %q", level)
	}
	ctrl.SetLogger(zap.New(
		zap.UseDevMode(dev),
		zap.Level(lvl),
		zap.WriteTo(os.Stderr),
	))
	return nil
}
