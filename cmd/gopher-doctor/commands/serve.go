package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/tonyjoanes/gopher-doctor/internal/server"
	"github.com/tonyjoanes/gopher-doctor/internal/store"
)

var (
	serveAddr    string
	serveContext string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the diagnose and report history HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := ctrl.Log.WithName("server")

		engine, err := newEngine(ctx, cfg, true)
		if err != nil {
			return err
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("listening", "addr", cfg.Server.Addr)
		return server.New(engine, s, logger).ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :8080)")
	serveCmd.Flags().StringVarP(&serveContext, "context", "c", "", "Kubeconfig context to use")
}
