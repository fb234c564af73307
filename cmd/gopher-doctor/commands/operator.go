package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	opsv1alpha1 "github.com/tonyjoanes/gopher-doctor/api/v1alpha1"
	"github.com/tonyjoanes/gopher-doctor/internal/controller"
	"github.com/tonyjoanes/gopher-doctor/internal/observability"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(opsv1alpha1.AddToScheme(scheme))
}

var (
	metricsAddr     string
	healthAddr      string
	leaderElect     bool
	operatorKubeCtx string
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Run the NamespaceCheckup controller",
	Long: `Operator runs a controller that diagnoses every namespace named by a
NamespaceCheckup resource on an interval, records the verdict in its status
and optionally files GitHub issues and webhook notifications.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := ctrl.Log.WithName("setup")

		rc, err := restConfig(cfg)
		if err != nil {
			return err
		}
		mgr, err := ctrl.NewManager(rc, ctrl.Options{
			Scheme: scheme,
			Metrics: metricsserver.Options{
				BindAddress: metricsAddr,
			},
			HealthProbeBindAddress: healthAddr,
			LeaderElection:         leaderElect,
			LeaderElectionID:       "gopher-doctor.ops.gopherguard.dev",
		})
		if err != nil {
			return fmt.Errorf("creating manager: %w", err)
		}

		src, err := observability.NewClusterSource(mgr.GetConfig(), observability.Options{
			Timeout:       cfg.FetchTimeout,
			PrometheusURL: cfg.PrometheusURL,
			Scheme:        scheme,
		})
		if err != nil {
			return err
		}

		if err := (&controller.NamespaceCheckupReconciler{
			Client:       mgr.GetClient(),
			Scheme:       mgr.GetScheme(),
			Recorder:     mgr.GetEventRecorderFor("gopher-doctor"),
			Source:       src,
			MaxIssues:    cfg.DeepDive.MaxIssues,
			LogTailLines: cfg.DeepDive.LogTailLines,
		}).SetupWithManager(mgr); err != nil {
			return fmt.Errorf("setting up NamespaceCheckup controller: %w", err)
		}

		if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
			return fmt.Errorf("adding health check: %w", err)
		}
		if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
			return fmt.Errorf("adding ready check: %w", err)
		}

		logger.Info("starting manager")
		return mgr.Start(ctrl.SetupSignalHandler())
	},
}

func init() {
	operatorCmd.Flags().StringVar(&metricsAddr, "metrics-bind-address", ":8081", "Address the metrics endpoint binds to")
	operatorCmd.Flags().StringVar(&healthAddr, "health-probe-bind-address", ":8082", "Address the health and readiness endpoints bind to")
	operatorCmd.Flags().BoolVar(&leaderElect, "leader-elect", false, "Enable leader election for the controller manager")
	operatorCmd.Flags().StringVarP(&operatorKubeCtx, "context", "c", "", "Kubeconfig context to use")
}
