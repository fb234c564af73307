package sizing

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/strategicpatch"
	"sigs.k8s.io/yaml"
)

// SuggestedPatch renders a recommendation as a strategic-merge-patch YAML
// fragment for the owning workload. The fragment is advice for the operator;
// nothing here talks to the cluster.
func SuggestedPatch(workloadKind string, rec Recommendation) (string, error) {
	resources := map[string]any{}
	if rec.SuggestedRequest != "" {
		resources["requests"] = map[string]string{string(rec.Resource): rec.SuggestedRequest}
	}
	if rec.SuggestedLimit != "" {
		resources["limits"] = map[string]string{string(rec.Resource): rec.SuggestedLimit}
	}
	if len(resources) == 0 {
		return "", fmt.Errorf("recommendation for %q carries no suggested values", rec.ContainerName)
	}

	podSpec := map[string]any{
		"containers": []any{map[string]any{
			"name":      rec.ContainerName,
			"resources": resources,
		}},
	}

	var (
		patch  map[string]any
		schema any
	)
	template := map[string]any{"template": map[string]any{"spec": podSpec}}
	switch workloadKind {
	case "Deployment":
		patch, schema = map[string]any{"spec": template}, appsv1.Deployment{}
	case "StatefulSet":
		patch, schema = map[string]any{"spec": template}, appsv1.StatefulSet{}
	case "DaemonSet":
		patch, schema = map[string]any{"spec": template}, appsv1.DaemonSet{}
	case "ReplicaSet":
		patch, schema = map[string]any{"spec": template}, appsv1.ReplicaSet{}
	case "Job":
		patch, schema = map[string]any{"spec": template}, batchv1.Job{}
	case "CronJob":
		patch = map[string]any{"spec": map[string]any{"jobTemplate": map[string]any{"spec": template}}}
		schema = batchv1.CronJob{}
	default:
		patch, schema = map[string]any{"spec": podSpec}, corev1.Pod{}
	}

	patchYAML, err := yaml.Marshal(patch)
	if err != nil {
		return "", fmt.Errorf("marshalling resources patch: %w", err)
	}
	if _, err := ApplyYAMLPatch([]byte("{}"), string(patchYAML), schema); err != nil {
		return "", err
	}
	return string(patchYAML), nil
}

// ApplyYAMLPatch applies a strategic merge patch (YAML) to a manifest (YAML)
// using dataStruct as the schema and returns the patched YAML.
// An empty patch returns the original content unchanged.
func ApplyYAMLPatch(currentYAML []byte, patchYAML string, dataStruct any) ([]byte, error) {
	if patchYAML == "" {
		return currentYAML, nil
	}

	currentJSON, err := yaml.YAMLToJSON(currentYAML)
	if err != nil {
		return nil, fmt.Errorf("converting current YAML to JSON: %w", err)
	}
	patchJSON, err := yaml.YAMLToJSON([]byte(patchYAML))
	if err != nil {
		return nil, fmt.Errorf("converting patch YAML to JSON: %w", err)
	}

	patchedJSON, err := strategicpatch.StrategicMergePatch(currentJSON, patchJSON, dataStruct)
	if err != nil {
		return nil, fmt.Errorf("applying strategic merge patch: %w", err)
	}

	patchedYAML, err := yaml.JSONToYAML(patchedJSON)
	if err != nil {
		return nil, fmt.Errorf("converting patched JSON back to YAML: %w", err)
	}
	return patchedYAML, nil
}
