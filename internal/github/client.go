// Package github publishes diagnostic reports as GitHub issues.
//
// One open issue is kept per namespace: a later report for the same
// namespace replaces the body of the open issue instead of filing a
// duplicate, so the issue history doubles as the namespace's health log.
package github

import (
	"context"
	"fmt"
	"strings"

	gogithub "github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// Label is attached to every issue filed by the publisher and is used to
// find previously filed issues.
const Label = "gopher-doctor"

// PublishRequest carries everything needed to file or update one issue.
type PublishRequest struct {
	// Owner and Repo identify the GitHub repository ("owner/repo").
	Owner string
	Repo  string
	// Namespace names the diagnosed namespace; it keys the issue title.
	Namespace string
	// Verdict is Healthy, Warning, Critical or Unreachable.
	Verdict string
	// Markdown is the rendered report.
	Markdown string
}

// PublishResult is returned after a successful publish.
type PublishResult struct {
	URL    string
	Number int
	// Updated is true when an existing open issue was edited.
	Updated bool
}

// ReportPublisher uses the GitHub REST API to publish reports.
type ReportPublisher struct {
	gh *gogithub.Client
}

// NewReportPublisher creates an authenticated GitHub client using a personal
// access token or GitHub App installation token.
func NewReportPublisher(token string) *ReportPublisher {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &ReportPublisher{gh: gogithub.NewClient(tc)}
}

// IssueTitle is the stable title of a namespace's report issue.
func IssueTitle(namespace string) string {
	return fmt.Sprintf("[gopher-doctor] Diagnostic report for namespace %s", namespace)
}

// Publish files the report as a new issue, or replaces the body of the open
// issue with the same title.
func (p *ReportPublisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	title := IssueTitle(req.Namespace)
	body := buildIssueBody(req)

	existing, err := p.findOpenIssue(ctx, req.Owner, req.Repo, title)
	if err != nil {
		return nil, fmt.Errorf("searching open report issues: %w", err)
	}

	if existing != nil {
		issue, _, err := p.gh.Issues.Edit(ctx, req.Owner, req.Repo, existing.GetNumber(), &gogithub.IssueRequest{
			Body: gogithub.String(body),
		})
		if err != nil {
			return nil, fmt.Errorf("updating issue #%d: %w", existing.GetNumber(), err)
		}
		return &PublishResult{URL: issue.GetHTMLURL(), Number: issue.GetNumber(), Updated: true}, nil
	}

	issue, _, err := p.gh.Issues.Create(ctx, req.Owner, req.Repo, &gogithub.IssueRequest{
		Title:  gogithub.String(title),
		Body:   gogithub.String(body),
		Labels: &[]string{Label},
	})
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return &PublishResult{URL: issue.GetHTMLURL(), Number: issue.GetNumber()}, nil
}

// findOpenIssue returns the open, labelled issue titled title, or nil.
func (p *ReportPublisher) findOpenIssue(ctx context.Context, owner, repo, title string) (*gogithub.Issue, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{Label},
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := p.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			if !issue.IsPullRequest() && issue.GetTitle() == title {
				return issue, nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}

// buildIssueBody wraps the rendered report.
func buildIssueBody(req PublishRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Verdict:** %s\n\n", req.Verdict)
	sb.WriteString(req.Markdown)
	sb.WriteString("\n\n---\n")
	sb.WriteString("🩺 *Filed by gopher-doctor. This issue is updated in place on every unhealthy run; nothing was changed in the cluster.*\n")
	return sb.String()
}

// SplitRepo splits "owner/repo" into (owner, repo).
// Returns an error if the format is invalid.
func SplitRepo(gitRepo string) (owner, repo string, err error) {
	parts := strings.SplitN(gitRepo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo %q: expected \"owner/repo\"", gitRepo)
	}
	return parts[0], parts[1], nil
}
