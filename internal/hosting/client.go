// Package hosting talks to the GitHub API: pull request metadata resolution,
// recreation strategy classification, and fork provisioning. All reads and
// writes go through the typed go-github client; responses are validated at
// this boundary and surfaced as explicit records.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub API for the recreation engine.
type Client struct {
	gh     *github.Client
	logger *log.Logger
}

// New creates a client authenticated with a personal access or installation
// token.
func New(token string) *Client {
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	))
	return newClient(github.NewClient(hc))
}

// NewFromGitHub wraps an existing go-github client, used by tests to point at
// a local httptest server.
func NewFromGitHub(gh *github.Client) *Client {
	return newClient(gh)
}

func newClient(gh *github.Client) *Client {
	return &Client{
		gh:     gh,
		logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "hosting"}),
	}
}

// CloneURL builds an authenticated HTTPS clone URL. The token is embedded so
// git subprocesses need no credential helper; cached remotes are rewritten
// with the current token before each use.
func CloneURL(owner, repo, token string) string {
	return fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, owner, repo)
}

// isNotFound reports whether err is a GitHub 404.
func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// isValidationFailed reports whether err is a GitHub 422.
func isValidationFailed(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// apiErr wraps a go-github failure, preserving 404s as NotFoundError.
func apiErr(op, resource string, err error) error {
	if isNotFound(err) {
		return &NotFoundError{Resource: resource}
	}
	return &UpstreamAPIError{Op: op, Err: err}
}
