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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	opsv1alpha1 "github.com/tonyjoanes/gopher-doctor/api/v1alpha1"
	ggithub "github.com/tonyjoanes/gopher-doctor/internal/github"
	"github.com/tonyjoanes/gopher-doctor/internal/llm"
	"github.com/tonyjoanes/gopher-doctor/internal/notify"
	"github.com/tonyjoanes/gopher-doctor/internal/observability"
	"github.com/tonyjoanes/gopher-doctor/internal/owners"
	"github.com/tonyjoanes/gopher-doctor/internal/sizing"
)

type fakeSource struct {
	pods []observability.PodSnapshot
}

func (f *fakeSource) ListPods(context.Context, string) ([]observability.PodSnapshot, error) {
	return f.pods, nil
}

func (f *fakeSource) ListNodes(context.Context) ([]observability.NodeSnapshot, error) {
	return []observability.NodeSnapshot{{
		Name:       "node-1",
		Conditions: []observability.Condition{{Type: "Ready", Status: "True"}},
	}}, nil
}

func (f *fakeSource) ListEvents(context.Context, string) ([]observability.EventSnapshot, error) {
	return nil, nil
}

func (f *fakeSource) ListReplicaSetOwners(context.Context, string) ([]owners.Controller, error) {
	return nil, nil
}

func (f *fakeSource) ListJobOwners(context.Context, string) ([]owners.Controller, error) {
	return nil, nil
}

func (f *fakeSource) ReadLogs(context.Context, observability.LogRequest) (string, error) {
	return "fatal: config missing", nil
}

func (f *fakeSource) PodMetrics(context.Context, string, string) (sizing.PodUsage, error) {
	return sizing.PodUsage{}, nil
}

type fakePublisher struct {
	requests []ggithub.PublishRequest
	token    string
}

func (p *fakePublisher) Publish(_ context.Context, req ggithub.PublishRequest) (*ggithub.PublishResult, error) {
	p.requests = append(p.requests, req)
	return &ggithub.PublishResult{URL: "https://github.com/acme/ops/issues/1", Number: 1}, nil
}

type fakeNotifier struct {
	url     string
	updates []notify.ReportUpdate
}

func (n *fakeNotifier) SendReport(_ context.Context, u notify.ReportUpdate) error {
	n.updates = append(n.updates, u)
	return nil
}

func pod(state string, restarts int32) observability.PodSnapshot {
	return observability.PodSnapshot{
		Name:       "api-1",
		Namespace:  "prod",
		Phase:      "Running",
		Restarts:   restarts,
		Containers: []observability.ContainerSnapshot{{Name: "api", State: state}},
	}
}

var _ = Describe("NamespaceCheckup controller", func() {
	var (
		ctx        context.Context
		scheme     *runtime.Scheme
		source     *fakeSource
		publisher  *fakePublisher
		notifier   *fakeNotifier
		recorder   *record.FakeRecorder
		now        time.Time
		key        types.NamespacedName
		reconciler *NamespaceCheckupReconciler
	)

	newReconciler := func(objs ...client.Object) *NamespaceCheckupReconciler {
		c := fake.NewClientBuilder().
			WithScheme(scheme).
			WithObjects(objs...).
			WithStatusSubresource(&opsv1alpha1.NamespaceCheckup{}).
			Build()
		return &NamespaceCheckupReconciler{
			Client:   c,
			Scheme:   scheme,
			Recorder: recorder,
			Source:   source,
			NewAnalyst: func(context.Context, client.Client, *opsv1alpha1.NamespaceCheckup) (llm.Analyst, error) {
				return nil, nil
			},
			NewPublisher: func(token string) Publisher {
				publisher.token = token
				return publisher
			},
			NewNotifier: func(url string) Notifier {
				notifier.url = url
				return notifier
			},
			Now: func() time.Time { return now },
		}
	}

	checkup := func() *opsv1alpha1.NamespaceCheckup {
		return &opsv1alpha1.NamespaceCheckup{
			ObjectMeta: metav1.ObjectMeta{Name: "prod-checkup", Namespace: "ops"},
			Spec: opsv1alpha1.NamespaceCheckupSpec{
				TargetNamespace: "prod",
				Interval:        &metav1.Duration{Duration: 10 * time.Minute},
				ReportRepo:      "acme/ops",
				GitSecretRef:    "git",
				NotifySecretRef: "hooks",
			},
		}
	}

	secrets := []client.Object{
		&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "git", Namespace: "ops"},
			Data:       map[string][]byte{"token": []byte("ghp_test")},
		},
		&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "hooks", Namespace: "ops"},
			Data:       map[string][]byte{"webhookUrl": []byte("https://hooks.slack.com/x")},
		},
	}

	fetch := func() *opsv1alpha1.NamespaceCheckup {
		var got opsv1alpha1.NamespaceCheckup
		Expect(reconciler.Get(ctx, key, &got)).To(Succeed())
		return &got
	}

	BeforeEach(func() {
		ctx = context.Background()
		scheme = runtime.NewScheme()
		Expect(clientgoscheme.AddToScheme(scheme)).To(Succeed())
		Expect(opsv1alpha1.AddToScheme(scheme)).To(Succeed())
		source = &fakeSource{}
		publisher = &fakePublisher{}
		notifier = &fakeNotifier{}
		recorder = record.NewFakeRecorder(20)
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		key = types.NamespacedName{Name: "prod-checkup", Namespace: "ops"}
	})

	It("marks a namespace with a crashing pod Critical and publishes once", func() {
		source.pods = []observability.PodSnapshot{pod("CrashLoopBackOff", 7)}
		reconciler = newReconciler(append(secrets, checkup())...)

		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(10 * time.Minute))

		got := fetch()
		Expect(got.Status.Phase).To(Equal(opsv1alpha1.PhaseCritical))
		Expect(got.Status.CriticalIssues).To(BeEquivalentTo(1))
		Expect(got.Status.WarningIssues).To(BeEquivalentTo(0))
		Expect(got.Status.LastReportURL).To(Equal("https://github.com/acme/ops/issues/1"))
		Expect(got.Status.LastRunTime.Time).To(BeTemporally("==", now))
		Expect(meta.IsStatusConditionFalse(got.Status.Conditions, ConditionHealthy)).To(BeTrue())

		Expect(publisher.token).To(Equal("ghp_test"))
		Expect(publisher.requests).To(HaveLen(1))
		Expect(publisher.requests[0].Owner).To(Equal("acme"))
		Expect(publisher.requests[0].Namespace).To(Equal("prod"))
		Expect(publisher.requests[0].Markdown).To(ContainSubstring("CrashLoopBackOff"))

		Expect(notifier.url).To(Equal("https://hooks.slack.com/x"))
		Expect(notifier.updates).To(HaveLen(1))
		Expect(notifier.updates[0].Verdict).To(Equal("Critical"))
		Expect(notifier.updates[0].ReportURL).To(Equal("https://github.com/acme/ops/issues/1"))

		Expect(recorder.Events).To(Receive(ContainSubstring("IssuesFound")))

		By("running again with the same verdict")
		now = now.Add(time.Minute)
		_, err = reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.requests).To(HaveLen(1))
		Expect(notifier.updates).To(HaveLen(1))
	})

	It("counts every crashing pod of a grouped workload", func() {
		for _, name := range []string{"gateway-a", "gateway-b", "gateway-c"} {
			p := pod("CrashLoopBackOff", 4)
			p.Name = name
			p.OwnerReferences = []owners.Reference{{Kind: "ReplicaSet", Name: "gateway-7f9c"}}
			source.pods = append(source.pods, p)
		}
		reconciler = newReconciler(append(secrets, checkup())...)

		_, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())

		got := fetch()
		Expect(got.Status.CriticalIssues).To(BeEquivalentTo(3))
		Expect(got.Status.Summary).To(ContainSubstring("Found 3 critical issue(s)"))
		Expect(notifier.updates).To(HaveLen(1))
		Expect(notifier.updates[0].Critical).To(Equal(3))
		Expect(notifier.updates[0].TopIssues).To(HaveLen(1))
	})

	It("marks a healthy namespace Healthy without publishing", func() {
		source.pods = []observability.PodSnapshot{pod("Running", 0)}
		reconciler = newReconciler(append(secrets, checkup())...)

		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(10 * time.Minute))

		got := fetch()
		Expect(got.Status.Phase).To(Equal(opsv1alpha1.PhaseHealthy))
		Expect(got.Status.CriticalIssues).To(BeZero())
		Expect(meta.IsStatusConditionTrue(got.Status.Conditions, ConditionHealthy)).To(BeTrue())
		Expect(publisher.requests).To(BeEmpty())
		Expect(notifier.updates).To(BeEmpty())
		Expect(recorder.Events).To(Receive(ContainSubstring("CheckupHealthy")))
	})

	It("waits out the minimum spacing between runs", func() {
		nc := checkup()
		last := metav1.NewTime(now.Add(-10 * time.Second))
		nc.Status.LastRunTime = &last
		nc.Status.Phase = opsv1alpha1.PhaseHealthy
		reconciler = newReconciler(nc)

		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(20 * time.Second))
		Expect(fetch().Status.LastRunTime.Time).To(BeTemporally("==", last.Time))
	})

	It("defaults the interval and skips sinks that are not configured", func() {
		source.pods = []observability.PodSnapshot{pod("OOMKilled", 1)}
		nc := checkup()
		nc.Spec.Interval = nil
		nc.Spec.ReportRepo = ""
		nc.Spec.NotifySecretRef = ""
		reconciler = newReconciler(nc)

		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(DefaultInterval))
		Expect(fetch().Status.Phase).To(Equal(opsv1alpha1.PhaseCritical))
		Expect(publisher.requests).To(BeEmpty())
		Expect(notifier.updates).To(BeEmpty())
	})

	It("ignores a deleted checkup", func() {
		reconciler = newReconciler()
		res, err := reconciler.Reconcile(ctx, ctrl.Request{NamespacedName: key})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal(ctrl.Result{}))
	})

	It("maps pods to the checkups targeting their namespace", func() {
		other := checkup()
		other.Name = "staging-checkup"
		other.Spec.TargetNamespace = "staging"
		reconciler = newReconciler(checkup(), other)

		reqs := reconciler.checkupsForPod(ctx, &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "prod"}})
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].NamespacedName).To(Equal(key))
	})
})
