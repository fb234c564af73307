package observability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// LogTailLines is the number of log lines fetched per container when the
// request does not say otherwise.
const LogTailLines int64 = 50

// ReadLogs returns the tail of one container's log. When the previous
// instance was requested but never existed, a readable notice is returned
// instead of an error so the investigation text still says something useful.
func (s *ClusterSource) ReadLogs(ctx context.Context, req LogRequest) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	tail := req.TailLines
	if tail <= 0 {
		tail = LogTailLines
	}
	logReq := s.Kube.CoreV1().Pods(req.Namespace).GetLogs(req.PodName, &corev1.PodLogOptions{
		Container: req.Container,
		TailLines: &tail,
		Previous:  req.Previous,
	})

	stream, err := logReq.Stream(ctx)
	if err != nil {
		if req.Previous && missingPreviousInstance(err) {
			return fmt.Sprintf("No previous logs found for pod %s. Try reading current logs.", req.PodName), nil
		}
		return "", fmt.Errorf("fetching logs for %s/%s[%s]: %w", req.Namespace, req.PodName, req.Container, err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", fmt.Errorf("reading log stream: %w", err)
	}
	return buf.String(), nil
}

func missingPreviousInstance(err error) bool {
	if apierrors.IsNotFound(err) {
		return true
	}
	return apierrors.IsBadRequest(err) && strings.Contains(err.Error(), "previous terminated container")
}
