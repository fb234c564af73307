package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/tonyjoanes/gopher-doctor/internal/config"
	"github.com/tonyjoanes/gopher-doctor/internal/diagnosis"
	ggithub "github.com/tonyjoanes/gopher-doctor/internal/github"
	"github.com/tonyjoanes/gopher-doctor/internal/notify"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
	"github.com/tonyjoanes/gopher-doctor/internal/store"
)

var (
	kubeContext  string
	model        string
	provider     string
	outputFormat string
	pretty       bool
	noAnalysis   bool
	saveReport   bool
	publish      bool
	sendNotify   bool
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [namespace]",
	Short: "Diagnose one namespace and print the report",
	Long: `Diagnose runs triage over every pod, node and event, investigates the
worst issues in depth, optionally asks an LLM for an analysis and prints
the diagnostic report.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().StringVarP(&kubeContext, "context", "c", "", "Kubeconfig context to use")
	diagnoseCmd.Flags().StringVarP(&model, "model", "m", "", "LLM model for the analysis")
	diagnoseCmd.Flags().StringVar(&provider, "provider", "", "LLM provider: anthropic, ollama, groq or openai")
	diagnoseCmd.Flags().StringVarP(&outputFormat, "output", "o", "markdown", "Output format: markdown, json or yaml")
	diagnoseCmd.Flags().BoolVar(&pretty, "pretty", false, "Render markdown for the terminal")
	diagnoseCmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "Skip the LLM analysis")
	diagnoseCmd.Flags().BoolVar(&saveReport, "save", false, "Store the report in the local history")
	diagnoseCmd.Flags().BoolVar(&publish, "publish", false, "File or update a GitHub issue with the report")
	diagnoseCmd.Flags().BoolVar(&sendNotify, "notify", false, "Post a summary to the configured Slack/Discord webhook")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	namespace := cfg.Namespace
	if len(args) > 0 {
		namespace = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := log.FromContext(ctx).WithName("diagnose")
	ctx = log.IntoContext(ctx, logger)

	engine, err := newEngine(ctx, cfg, !noAnalysis)
	if err != nil {
		return err
	}
	st, err := engine.Run(ctx, namespace)
	if err != nil {
		return fmt.Errorf("diagnosing %s: %w", namespace, err)
	}
	r := st.Report

	if saveReport {
		if err := saveToHistory(ctx, cfg, r); err != nil {
			logger.Error(err, "saving report")
		}
	}
	var reportURL string
	if publish {
		url, err := publishReport(ctx, cfg, st)
		if err != nil {
			logger.Error(err, "publishing report")
		}
		reportURL = url
	}
	if sendNotify {
		if err := notifyReport(ctx, cfg, st, reportURL); err != nil {
			logger.Error(err, "sending notification")
		}
	}

	if pretty && format == report.FormatMarkdown {
		return renderPretty(report.Markdown(r))
	}
	return report.Encode(os.Stdout, r, format)
}

func renderPretty(md string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	fmt.Print(out)
	return nil
}

func saveToHistory(ctx context.Context, c *config.Config, r report.DiagnosticReport) error {
	s, err := store.Open(c.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	rec, err := s.Save(ctx, r)
	if err != nil {
		return err
	}
	log.FromContext(ctx).Info("report saved", "id", rec.ID)
	return nil
}

func publishReport(ctx context.Context, c *config.Config, st *diagnosis.State) (string, error) {
	if c.GitHub.Repo == "" || c.GitHub.Token == "" {
		return "", fmt.Errorf("github.repo and github.token must be set to publish")
	}
	owner, repo, err := ggithub.SplitRepo(c.GitHub.Repo)
	if err != nil {
		return "", err
	}
	res, err := ggithub.NewReportPublisher(c.GitHub.Token).Publish(ctx, ggithub.PublishRequest{
		Owner:     owner,
		Repo:      repo,
		Namespace: st.Namespace,
		Verdict:   string(st.Verdict()),
		Markdown:  report.Markdown(st.Report),
	})
	if err != nil {
		return "", err
	}
	log.FromContext(ctx).Info("report published", "url", res.URL, "updated", res.Updated)
	return res.URL, nil
}

func notifyReport(ctx context.Context, c *config.Config, st *diagnosis.State, reportURL string) error {
	if c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhookURL must be set to notify")
	}
	u := notify.UpdateFromReport(st.Report, string(st.Verdict()), reportURL)
	return notify.NewNotificationClient(c.Notify.WebhookURL).SendReport(ctx, u)
}
