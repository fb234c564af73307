package report

import (
	"github.com/tonyjoanes/gopher-doctor/internal/triage"
)

// nextSteps maps a reason to its remediation hints. Read-only.
var nextSteps = map[string][]string{
	triage.ReasonCrashLoopBackOff: {
		"Check application logs for startup errors",
		"Verify environment variables and configuration",
		"Check if required services/dependencies are available",
		"Review resource limits (CPU/memory)",
	},
	triage.ReasonOOMKilled: {
		"Increase memory limits in pod specification",
		"Check for memory leaks in the application",
		"Profile memory usage under load",
		"Consider horizontal scaling instead of vertical",
	},
	triage.ReasonFailedMount: {
		"Verify the secret/configmap exists in the namespace",
		"Check RBAC permissions for the service account",
		"Verify PVC is bound and available",
	},
	triage.ReasonImagePullBackOff: {
		"Verify image name and tag are correct",
		"Check image registry credentials",
		"Verify network access to container registry",
	},
	triage.ReasonPending: {
		"Check node resource availability",
		"Review node selectors and taints/tolerations",
		"Check PVC binding status",
	},
	triage.ReasonHighRestartCount: {
		"Review recent changes to the deployment",
		"Check for liveness probe failures",
		"Monitor application health metrics",
	},
	triage.ReasonClusterUnreachable: {
		"Check your kubeconfig and current context",
		"Verify VPN or network connectivity to the cluster",
		"Check if the cluster API server is running",
	},
}

var defaultNextSteps = []string{"Review pod events and logs for more details"}

// NextSteps returns the remediation hints for a reason. The returned slice
// is a copy.
func NextSteps(reason string) []string {
	steps, ok := nextSteps[reason]
	if !ok {
		steps = defaultNextSteps
	}
	return append([]string(nil), steps...)
}

// SuggestedCommands returns the kubectl commands worth running for an issue.
func SuggestedCommands(issue triage.Issue) []string {
	if issue.Reason == triage.ReasonClusterUnreachable {
		return []string{"kubectl cluster-info", "kubectl get nodes"}
	}

	pod, ns := issue.PodName, issue.Namespace
	containerArg := ""
	if issue.ContainerName != "" {
		containerArg = " -c " + issue.ContainerName
	}

	cmds := []string{"kubectl describe pod " + pod + " -n " + ns}
	switch issue.Reason {
	case triage.ReasonCrashLoopBackOff, triage.ReasonOOMKilled:
		cmds = append(cmds, "kubectl logs "+pod+" -n "+ns+containerArg+" --previous")
	}
	cmds = append(cmds, "kubectl logs "+pod+" -n "+ns+containerArg+" --tail=100")

	switch issue.Reason {
	case triage.ReasonOOMKilled:
		cmds = append(cmds,
			"kubectl top pod "+pod+" -n "+ns,
			"kubectl get pod "+pod+" -n "+ns+" -o jsonpath='{.spec.containers[*].resources}'",
		)
	case triage.ReasonFailedMount:
		cmds = append(cmds,
			"kubectl get secrets -n "+ns,
			"kubectl get configmaps -n "+ns,
			"kubectl get pvc -n "+ns,
		)
	case triage.ReasonPending, triage.ReasonFailedScheduling:
		cmds = append(cmds,
			"kubectl get events -n "+ns+" --field-selector involvedObject.name="+pod,
			"kubectl get nodes -o wide",
		)
	case triage.ReasonHighRestartCount:
		cmds = append(cmds, "kubectl rollout restart deployment -n "+ns)
	}
	return cmds
}
