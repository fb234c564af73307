/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	opsv1alpha1 "github.com/tonyjoanes/gopher-doctor/api/v1alpha1"
	"github.com/tonyjoanes/gopher-doctor/internal/diagnosis"
	ggithub "github.com/tonyjoanes/gopher-doctor/internal/github"
	"github.com/tonyjoanes/gopher-doctor/internal/llm"
	"github.com/tonyjoanes/gopher-doctor/internal/notify"
	"github.com/tonyjoanes/gopher-doctor/internal/report"
)

const (
	// DefaultInterval applies when spec.interval is unset.
	DefaultInterval = 5 * time.Minute
	// minRunSpacing keeps pod churn from re-running the pipeline back to back.
	minRunSpacing = 30 * time.Second

	// ConditionHealthy mirrors the phase as a standard condition.
	ConditionHealthy = "Healthy"
)

// gopherArt is printed whenever GopherDoctor delivers an AI analysis.
const gopherArt = `
    /\_____/\
   /  o   o  \   G O P H E R D O C T O R
  ( ==  ^  == )  ─────────────────────────
   )         (   Analysis for %s:
  (           )
 ( (  )   (  ) )
(__(__)___(__)__)
`

// Publisher files reports somewhere durable. *ggithub.ReportPublisher
// implements it.
type Publisher interface {
	Publish(ctx context.Context, req ggithub.PublishRequest) (*ggithub.PublishResult, error)
}

// Notifier posts report summaries. *notify.NotificationClient implements it.
type Notifier interface {
	SendReport(ctx context.Context, u notify.ReportUpdate) error
}

// NamespaceCheckupReconciler reconciles a NamespaceCheckup object.
type NamespaceCheckupReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	// Source reads the diagnosed namespaces.
	Source diagnosis.Source

	// MaxIssues and LogTailLines tune the deep dive; zero uses its defaults.
	MaxIssues    int
	LogTailLines int64

	// The factories below default to the real clients; tests replace them.
	NewAnalyst   func(ctx context.Context, c client.Client, nc *opsv1alpha1.NamespaceCheckup) (llm.Analyst, error)
	NewPublisher func(token string) Publisher
	NewNotifier  func(webhookURL string) Notifier
	Now          func() time.Time
}

// +kubebuilder:rbac:groups=ops.gopherguard.dev,resources=namespacecheckups,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=ops.gopherguard.dev,resources=namespacecheckups/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=ops.gopherguard.dev,resources=namespacecheckups/finalizers,verbs=update
// +kubebuilder:rbac:groups=apps,resources=replicasets,verbs=get;list;watch
// +kubebuilder:rbac:groups=batch,resources=jobs,verbs=get;list;watch
// +kubebuilder:rbac:groups=core,resources=pods,verbs=get;list;watch
// +kubebuilder:rbac:groups=core,resources=pods/log,verbs=get
// +kubebuilder:rbac:groups=core,resources=nodes,verbs=get;list;watch
// +kubebuilder:rbac:groups=core,resources=events,verbs=get;list;watch;create;patch
// +kubebuilder:rbac:groups=core,resources=secrets,verbs=get;list;watch
// +kubebuilder:rbac:groups=metrics.k8s.io,resources=pods,verbs=get;list

// Reconcile is the main control loop.
//
//  1. Fetch the NamespaceCheckup CR.
//  2. Run the diagnostic pipeline against the target namespace.
//  3. Record a Kubernetes event with the verdict.
//  4. When the phase turns unhealthy: publish the report to GitHub and send
//     a Slack/Discord notification. Both are best effort.
//  5. Patch the status and requeue after the interval.
//
// Nothing in the target namespace is ever modified.
func (r *NamespaceCheckupReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	// --- 1. Fetch NamespaceCheckup CR ---
	var checkup opsv1alpha1.NamespaceCheckup
	if err := r.Get(ctx, req.NamespacedName, &checkup); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("fetching NamespaceCheckup: %w", err)
	}

	interval := DefaultInterval
	if checkup.Spec.Interval != nil && checkup.Spec.Interval.Duration > 0 {
		interval = checkup.Spec.Interval.Duration
	}

	now := r.now()
	if last := checkup.Status.LastRunTime; last != nil {
		if wait := last.Add(minRunSpacing).Sub(now); wait > 0 {
			return ctrl.Result{RequeueAfter: wait}, nil
		}
	}

	target := checkup.Target()
	logger.Info("running namespace checkup",
		"checkup", req.NamespacedName,
		"target", target,
		"phase", checkup.Status.Phase,
	)

	// --- 2. Diagnose ---
	analyst, err := r.newAnalyst(ctx, &checkup)
	if err != nil {
		// the report is still worth having without a narrative
		logger.Error(err, "analysis disabled for this run")
		r.Recorder.Event(&checkup, corev1.EventTypeWarning, "AnalystUnavailable", err.Error())
		analyst = nil
	}
	engine := &diagnosis.Engine{
		Source:       r.Source,
		Analyst:      analyst,
		MaxIssues:    r.MaxIssues,
		LogTailLines: r.LogTailLines,
		Now:          r.Now,
	}
	st, err := engine.Run(ctx, target)
	if err != nil {
		return ctrl.Result{}, err
	}

	phase := opsv1alpha1.CheckupPhase(st.Verdict())
	previous := checkup.Status.Phase
	critical, warning := st.Report.Counts()

	// --- 3. Record event ---
	if phase == opsv1alpha1.PhaseHealthy {
		r.Recorder.Event(&checkup, corev1.EventTypeNormal, "CheckupHealthy", st.Report.Summary)
	} else {
		r.Recorder.Event(&checkup, corev1.EventTypeWarning, "IssuesFound", st.Report.Summary)
	}
	if st.LLMAnalysis != "" {
		logger.Info(fmt.Sprintf(gopherArt, target) + st.LLMAnalysis)
	}

	// --- 4. Publish + notify on a change to an unhealthy phase ---
	reportURL := ""
	if phase != opsv1alpha1.PhaseHealthy && phase != previous {
		reportURL = r.publish(ctx, &checkup, phase, st.Report)
		r.notify(ctx, &checkup, phase, st.Report, reportURL)
	}

	// --- 5. Update status ---
	if err := r.patchStatus(ctx, req, func(c *opsv1alpha1.NamespaceCheckup) {
		c.Status.Phase = phase
		c.Status.Summary = st.Report.Summary
		c.Status.CriticalIssues = int32(critical)
		c.Status.WarningIssues = int32(warning)
		ran := metav1.NewTime(now)
		c.Status.LastRunTime = &ran
		if reportURL != "" {
			c.Status.LastReportURL = reportURL
		}
		cond := metav1.Condition{
			Type:               ConditionHealthy,
			Status:             metav1.ConditionTrue,
			Reason:             string(phase),
			Message:            st.Report.Summary,
			ObservedGeneration: c.Generation,
		}
		if phase != opsv1alpha1.PhaseHealthy {
			cond.Status = metav1.ConditionFalse
		}
		meta.SetStatusCondition(&c.Status.Conditions, cond)
	}); err != nil {
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: interval}, nil
}

func (r *NamespaceCheckupReconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *NamespaceCheckupReconciler) newAnalyst(ctx context.Context, nc *opsv1alpha1.NamespaceCheckup) (llm.Analyst, error) {
	if r.NewAnalyst != nil {
		return r.NewAnalyst(ctx, r.Client, nc)
	}
	return llm.NewFromSpec(ctx, r.Client, nc)
}

// patchStatus re-fetches the CR, applies mutFn, and patches .status.
func (r *NamespaceCheckupReconciler) patchStatus(
	ctx context.Context,
	req ctrl.Request,
	mutFn func(*opsv1alpha1.NamespaceCheckup),
) error {
	var checkup opsv1alpha1.NamespaceCheckup
	if err := r.Get(ctx, req.NamespacedName, &checkup); err != nil {
		return fmt.Errorf("re-fetching NamespaceCheckup for status patch: %w", err)
	}
	patch := client.MergeFrom(checkup.DeepCopy())
	mutFn(&checkup)
	if err := r.Status().Patch(ctx, &checkup, patch); err != nil {
		return fmt.Errorf("patching NamespaceCheckup status: %w", err)
	}
	return nil
}

// publish files the report as a GitHub issue when a repo and token secret
// are configured. It returns the issue URL, or "" when nothing was filed.
func (r *NamespaceCheckupReconciler) publish(
	ctx context.Context,
	checkup *opsv1alpha1.NamespaceCheckup,
	phase opsv1alpha1.CheckupPhase,
	rep report.DiagnosticReport,
) string {
	logger := log.FromContext(ctx)
	if checkup.Spec.ReportRepo == "" || checkup.Spec.GitSecretRef == "" {
		return ""
	}

	owner, repo, err := ggithub.SplitRepo(checkup.Spec.ReportRepo)
	if err != nil {
		r.Recorder.Event(checkup, corev1.EventTypeWarning, "PublishFailed", err.Error())
		return ""
	}
	token, err := llm.ReadSecretKey(ctx, r.Client, checkup.Namespace, checkup.Spec.GitSecretRef, "token")
	if err != nil {
		logger.Error(err, "reading GitHub token")
		r.Recorder.Event(checkup, corev1.EventTypeWarning, "PublishFailed", err.Error())
		return ""
	}

	newPublisher := r.NewPublisher
	if newPublisher == nil {
		newPublisher = func(token string) Publisher { return ggithub.NewReportPublisher(token) }
	}
	res, err := newPublisher(token).Publish(ctx, ggithub.PublishRequest{
		Owner:     owner,
		Repo:      repo,
		Namespace: rep.Namespace,
		Verdict:   string(phase),
		Markdown:  report.Markdown(rep),
	})
	if err != nil {
		logger.Error(err, "failed to publish report")
		r.Recorder.Event(checkup, corev1.EventTypeWarning, "PublishFailed", err.Error())
		return ""
	}

	logger.Info("report published", "url", res.URL, "updated", res.Updated)
	r.Recorder.Event(checkup, corev1.EventTypeNormal, "ReportPublished",
		fmt.Sprintf("Report filed: %s", res.URL))
	return res.URL
}

// notify fires a Slack/Discord webhook if a notify secret is configured.
func (r *NamespaceCheckupReconciler) notify(
	ctx context.Context,
	checkup *opsv1alpha1.NamespaceCheckup,
	phase opsv1alpha1.CheckupPhase,
	rep report.DiagnosticReport,
	reportURL string,
) {
	logger := log.FromContext(ctx)
	if checkup.Spec.NotifySecretRef == "" {
		return
	}
	webhookURL, err := llm.ReadSecretKey(ctx, r.Client, checkup.Namespace, checkup.Spec.NotifySecretRef, "webhookUrl")
	if err != nil {
		logger.Error(err, "reading webhook URL")
		return
	}

	newNotifier := r.NewNotifier
	if newNotifier == nil {
		newNotifier = func(url string) Notifier { return notify.NewNotificationClient(url) }
	}
	if err := newNotifier(webhookURL).SendReport(ctx, notify.UpdateFromReport(rep, string(phase), reportURL)); err != nil {
		logger.Error(err, "webhook notification failed (non-fatal)")
	}
}

// podTurnedUnhealthy passes pod updates that add restarts or change the
// phase. Routine status churn is dropped.
var podTurnedUnhealthy = predicate.Funcs{
	CreateFunc:  func(event.CreateEvent) bool { return false },
	DeleteFunc:  func(event.DeleteEvent) bool { return false },
	GenericFunc: func(event.GenericEvent) bool { return false },
	UpdateFunc: func(e event.UpdateEvent) bool {
		oldPod, ok1 := e.ObjectOld.(*corev1.Pod)
		newPod, ok2 := e.ObjectNew.(*corev1.Pod)
		if !ok1 || !ok2 {
			return false
		}
		return oldPod.Status.Phase != newPod.Status.Phase || restarts(newPod) > restarts(oldPod)
	},
}

func restarts(pod *corev1.Pod) int32 {
	var n int32
	for _, cs := range pod.Status.ContainerStatuses {
		n += cs.RestartCount
	}
	return n
}

// checkupsForPod maps a pod to every checkup targeting its namespace.
func (r *NamespaceCheckupReconciler) checkupsForPod(ctx context.Context, obj client.Object) []reconcile.Request {
	var list opsv1alpha1.NamespaceCheckupList
	if err := r.List(ctx, &list); err != nil {
		return nil
	}
	var requests []reconcile.Request
	for _, nc := range list.Items {
		if nc.Target() == obj.GetNamespace() {
			requests = append(requests, reconcile.Request{
				NamespacedName: types.NamespacedName{Namespace: nc.Namespace, Name: nc.Name},
			})
		}
	}
	return requests
}

// SetupWithManager wires the reconciler into the controller-runtime manager.
func (r *NamespaceCheckupReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&opsv1alpha1.NamespaceCheckup{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Watches(
			&corev1.Pod{},
			handler.EnqueueRequestsFromMapFunc(r.checkupsForPod),
			builder.WithPredicates(podTurnedUnhealthy),
		).
		Named("namespacecheckup").
		Complete(r)
}
