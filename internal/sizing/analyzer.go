package sizing

import (
	"fmt"
	"math"
)

const (
	// OverProvisionedRatio flags usage below 30% of the request.
	OverProvisionedRatio = 0.3
	// UnderProvisionedRatio flags usage above 80% of the limit.
	UnderProvisionedRatio = 0.8
	// HeadroomMultiplier is applied to observed usage when suggesting a request.
	HeadroomMultiplier = 1.5
)

// Status is the sizing verdict for one container.
type Status string

const (
	StatusRightSized       Status = "right-sized"
	StatusOverProvisioned  Status = "over-provisioned"
	StatusUnderProvisioned Status = "under-provisioned"
	StatusUnknown          Status = "unknown"
)

// RecommendationType is the direction of a suggested change.
type RecommendationType string

const (
	RecommendIncrease RecommendationType = "increase"
	RecommendReduce   RecommendationType = "reduce"
	RecommendAdd      RecommendationType = "add"
)

// ResourceName is either "cpu" or "memory".
type ResourceName string

const (
	ResourceCPU    ResourceName = "cpu"
	ResourceMemory ResourceName = "memory"
)

// ResourceList holds quantity strings as declared in a pod spec or reported
// by a metrics collector. Empty means unset.
type ResourceList struct {
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// ContainerResources is the declared requests/limits of one container.
type ContainerResources struct {
	Name     string       `json:"name"`
	Requests ResourceList `json:"requests,omitempty"`
	Limits   ResourceList `json:"limits,omitempty"`
}

// ContainerUsage is the observed usage of one container.
type ContainerUsage struct {
	Name  string       `json:"name"`
	Usage ResourceList `json:"usage"`
}

// PodResources groups the declared resources of a pod's containers.
type PodResources struct {
	Name       string               `json:"name"`
	Containers []ContainerResources `json:"containers"`
}

// PodUsage groups the observed usage of a pod's containers.
type PodUsage struct {
	Name       string           `json:"name"`
	Containers []ContainerUsage `json:"containers"`
}

// Recommendation is a suggested change to one resource of one container.
type Recommendation struct {
	Type             RecommendationType `json:"type"`
	Resource         ResourceName       `json:"resource"`
	ContainerName    string             `json:"containerName"`
	CurrentRequest   string             `json:"currentRequest,omitempty"`
	CurrentLimit     string             `json:"currentLimit,omitempty"`
	SuggestedRequest string             `json:"suggestedRequest,omitempty"`
	SuggestedLimit   string             `json:"suggestedLimit,omitempty"`
	Reason           string             `json:"reason"`
}

// Metrics are the parsed numbers behind an Analysis. CPU in cores, memory in bytes.
type Metrics struct {
	CPUUsage      float64  `json:"cpuUsage"`
	MemoryUsage   float64  `json:"memoryUsage"`
	CPURequest    *float64 `json:"cpuRequest,omitempty"`
	CPULimit      *float64 `json:"cpuLimit,omitempty"`
	MemoryRequest *float64 `json:"memoryRequest,omitempty"`
	MemoryLimit   *float64 `json:"memoryLimit,omitempty"`
}

// Analysis is the sizing verdict for one container of a pod.
type Analysis struct {
	PodName         string           `json:"podName"`
	ContainerName   string           `json:"containerName"`
	Status          Status           `json:"status"`
	Recommendations []Recommendation `json:"recommendations"`
	Warnings        []string         `json:"warnings"`
	Metrics         Metrics          `json:"metrics"`
}

type check struct {
	over, under    bool
	recommendation *Recommendation
}

type dimension struct {
	name   ResourceName
	format func(float64) string
	round  func(float64) float64
}

var (
	cpuDimension    = dimension{name: ResourceCPU, format: FormatCPU, round: roundCPU}
	memoryDimension = dimension{name: ResourceMemory, format: FormatMemory, round: roundMemory}
)

// Analyze produces one Analysis per declared container. Usage is matched by
// container name; a single-container pod falls back to the first usage entry
// so that collectors reporting a different container name still match.
func Analyze(resources PodResources, usage PodUsage) []Analysis {
	if len(resources.Containers) == 0 {
		return []Analysis{unknown(resources.Name, "unknown")}
	}
	out := make([]Analysis, 0, len(resources.Containers))
	for _, c := range resources.Containers {
		u := findUsage(usage, c.Name, len(resources.Containers) == 1)
		if u == nil {
			out = append(out, unknown(resources.Name, c.Name))
			continue
		}
		out = append(out, AnalyzeContainer(resources.Name, c, *u))
	}
	return out
}

// AnalyzeContainer classifies CPU and memory of a single container independently
// and combines the verdicts: under-provisioned wins over over-provisioned.
func AnalyzeContainer(podName string, c ContainerResources, u ContainerUsage) Analysis {
	cpuUsage := ParseQuantity(u.Usage.CPU)
	memUsage := ParseQuantity(u.Usage.Memory)

	m := Metrics{
		CPUUsage:      cpuUsage,
		MemoryUsage:   memUsage,
		CPURequest:    parseOptional(c.Requests.CPU),
		CPULimit:      parseOptional(c.Limits.CPU),
		MemoryRequest: parseOptional(c.Requests.Memory),
		MemoryLimit:   parseOptional(c.Limits.Memory),
	}

	cpu := provisioning(cpuDimension, c.Name, cpuUsage, m.CPURequest, m.CPULimit, c.Requests.CPU, c.Limits.CPU)
	mem := provisioning(memoryDimension, c.Name, memUsage, m.MemoryRequest, m.MemoryLimit, c.Requests.Memory, c.Limits.Memory)

	a := Analysis{
		PodName:         podName,
		ContainerName:   c.Name,
		Status:          StatusRightSized,
		Recommendations: []Recommendation{},
		Warnings:        missingWarnings(c),
		Metrics:         m,
	}
	switch {
	case cpu.under || mem.under:
		a.Status = StatusUnderProvisioned
	case cpu.over || mem.over:
		a.Status = StatusOverProvisioned
	}
	for _, r := range []check{cpu, mem} {
		if r.recommendation != nil {
			a.Recommendations = append(a.Recommendations, *r.recommendation)
		}
	}
	return a
}

func provisioning(d dimension, container string, usage float64, request, limit *float64, currentRequest, currentLimit string) check {
	if request != nil && *request > 0 && usage / *request < OverProvisionedRatio {
		suggested := d.round(usage * HeadroomMultiplier)
		return check{over: true, recommendation: &Recommendation{
			Type:             RecommendReduce,
			Resource:         d.name,
			ContainerName:    container,
			CurrentRequest:   currentRequest,
			CurrentLimit:     currentLimit,
			SuggestedRequest: d.format(suggested),
			SuggestedLimit:   d.format(suggested * 2),
			Reason:           fmt.Sprintf("Using only %s of %s requested", d.format(usage), currentRequest),
		}}
	}
	if limit != nil && *limit > 0 && usage / *limit > UnderProvisionedRatio {
		suggested := d.round(usage * HeadroomMultiplier)
		return check{under: true, recommendation: &Recommendation{
			Type:             RecommendIncrease,
			Resource:         d.name,
			ContainerName:    container,
			CurrentRequest:   currentRequest,
			CurrentLimit:     currentLimit,
			SuggestedRequest: d.format(suggested),
			SuggestedLimit:   d.format(suggested * 2),
			Reason: fmt.Sprintf("Using %s which is %d%% of limit",
				d.format(usage), int64(math.Round(usage / *limit * 100))),
		}}
	}
	return check{}
}

func missingWarnings(c ContainerResources) []string {
	var w []string
	if c.Requests.CPU == "" {
		w = append(w, fmt.Sprintf("Container %q has no CPU request set", c.Name))
	}
	if c.Requests.Memory == "" {
		w = append(w, fmt.Sprintf("Container %q has no memory request set", c.Name))
	}
	if c.Limits.CPU == "" {
		w = append(w, fmt.Sprintf("Container %q has no CPU limit set", c.Name))
	}
	if c.Limits.Memory == "" {
		w = append(w, fmt.Sprintf("Container %q has no memory limit set", c.Name))
	}
	return w
}

func findUsage(usage PodUsage, name string, fallback bool) *ContainerUsage {
	for i := range usage.Containers {
		if usage.Containers[i].Name == name {
			return &usage.Containers[i]
		}
	}
	if fallback && len(usage.Containers) > 0 {
		return &usage.Containers[0]
	}
	return nil
}

func parseOptional(s string) *float64 {
	if s == "" {
		return nil
	}
	v := ParseQuantity(s)
	return &v
}

func unknown(podName, containerName string) Analysis {
	return Analysis{
		PodName:         podName,
		ContainerName:   containerName,
		Status:          StatusUnknown,
		Recommendations: []Recommendation{},
		Warnings:        []string{"Could not find container data"},
	}
}

// FormatRecommendation renders a recommendation as a short human-readable block.
func FormatRecommendation(rec Recommendation) string {
	action := "Add"
	switch rec.Type {
	case RecommendIncrease:
		action = "Increase"
	case RecommendReduce:
		action = "Reduce"
	}
	text := fmt.Sprintf("%s %s for container %q: %s", action, rec.Resource, rec.ContainerName, rec.Reason)
	if rec.SuggestedRequest != "" {
		text += "\n  Suggested request: " + rec.SuggestedRequest
	}
	if rec.SuggestedLimit != "" {
		text += "\n  Suggested limit: " + rec.SuggestedLimit
	}
	return text
}
