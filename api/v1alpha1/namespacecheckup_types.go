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


package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// LLMProvider enumerates the supported analysis backends.
// +kubebuilder:validation:Enum=anthropic;ollama;groq;openai;none
type LLMProvider string

const (
	LLMProviderAnthropic LLMProvider = "anthropic"
	LLMProviderOllama    LLMProvider = "ollama"
	LLMProviderGroq      LLMProvider = "groq"
	LLMProviderOpenAI    LLMProvider = "openai"
	LLMProviderNone      LLMProvider = "none"
)

// CheckupPhase summarises the most recent diagnostic run.
// +kubebuilder:validation:Enum=Healthy;Warning;Critical;Unreachable
type CheckupPhase string

const (
	PhaseHealthy     CheckupPhase = "Healthy"
	PhaseWarning     CheckupPhase = "Warning"
	PhaseCritical    CheckupPhase = "Critical"
	PhaseUnreachable CheckupPhase = "Unreachable"
)

// NamespaceCheckupSpec defines the desired state of NamespaceCheckup.
type NamespaceCheckupSpec struct {
	// TargetNamespace is the namespace to diagnose. Defaults to the
	// NamespaceCheckup's own namespace.
	// +optional
	TargetNamespace string `json:"targetNamespace,omitempty"`

	// Interval between diagnostic runs. Defaults to 5m.
	// +optional
	Interval *metav1.Duration `json:"interval,omitempty"`

	// LLMProvider selects which backend writes the root-cause analysis.
	// +kubebuilder:default=none
	LLMProvider LLMProvider `json:"llmProvider,omitempty"`

	// LLMModel is the model identifier sent to the provider.
	// +optional
	LLMModel string `json:"llmModel,omitempty"`

	// LLMSecretRef names a Secret holding the provider API key under "apiKey"
	// and optionally an endpoint override under "baseUrl".
	// +optional
	LLMSecretRef string `json:"llmSecretRef,omitempty"`

	// NotifySecretRef names a Secret holding a Slack or Discord webhook URL
	// under "webhookUrl".
	// +optional
	NotifySecretRef string `json:"notifySecretRef,omitempty"`

	// ReportRepo is the "owner/repo" GitHub repository that receives report
	// issues when the phase turns unhealthy.
	// +optional
	ReportRepo string `json:"reportRepo,omitempty"`

	// GitSecretRef names a Secret containing a GitHub token under "token".
	// +optional
	GitSecretRef string `json:"gitSecretRef,omitempty"`

	// SkipAnalysis disables the analysis stage even when a provider is set.
	// +kubebuilder:default=false
	SkipAnalysis bool `json:"skipAnalysis,omitempty"`
}

// NamespaceCheckupStatus defines the observed state of NamespaceCheckup.
type NamespaceCheckupStatus struct {
	// Phase is the verdict of the last run.
	// +optional
	Phase CheckupPhase `json:"phase,omitempty"`

	// Summary is the one-line report summary of the last run.
	// +optional
	Summary string `json:"summary,omitempty"`

	// CriticalIssues counts critical report issues of the last run.
	// +optional
	CriticalIssues int32 `json:"criticalIssues,omitempty"`

	// WarningIssues counts warning report issues of the last run.
	// +optional
	WarningIssues int32 `json:"warningIssues,omitempty"`

	// LastRunTime records when the last run finished.
	// +optional
	LastRunTime *metav1.Time `json:"lastRunTime,omitempty"`

	// LastReportURL is the GitHub issue the last unhealthy report was filed to.
	// +optional
	LastReportURL string `json:"lastReportURL,omitempty"`

	// Conditions provides standard Kubernetes condition reporting.
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=nscheck
// +kubebuilder:printcolumn:name="Target",type=string,JSONPath=".spec.targetNamespace"
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Critical",type=integer,JSONPath=".status.criticalIssues"
// +kubebuilder:printcolumn:name="Warnings",type=integer,JSONPath=".status.warningIssues"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".metadata.creationTimestamp"

// NamespaceCheckup is the Schema for the namespacecheckups API.
type NamespaceCheckup struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   NamespaceCheckupSpec   `json:"spec,omitempty"`
	Status NamespaceCheckupStatus `json:"status,omitempty"`
}

// Target returns the namespace to diagnose.
func (n *NamespaceCheckup) Target() string {
	if n.Spec.TargetNamespace != "" {
		return n.Spec.TargetNamespace
	}
	return n.Namespace
}

// +kubebuilder:object:root=true

// NamespaceCheckupList contains a list of NamespaceCheckup.
type NamespaceCheckupList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NamespaceCheckup `json:"items"`
}

func init() {
	SchemeBuilder.Register(&NamespaceCheckup{}, &NamespaceCheckupList{})
}
