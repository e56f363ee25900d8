package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v71/github"
)

// testClient backs a Client with a local httptest server.
func testClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	gh.BaseURL = base
	return NewFromGitHub(gh)
}

func jsonResponse(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func TestResolvePRMergedTwoParents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/123", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{
			"number": 123, "title": "Add widget", "state": "closed", "merged": true,
			"merge_commit_sha": "mergesha", "commits": 2,
			"user": {"login": "alice"}
		}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/pulls/123/commits", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `[
			{"sha": "x1", "commit": {"message": "first"}, "parents": [{"sha": "aaa"}]},
			{"sha": "x2", "commit": {"message": "second"}, "parents": [{"sha": "x1"}]}
		]`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/mergesha", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{"sha": "mergesha", "parents": [{"sha": "ccc"}, {"sha": "zzz"}]}`)
	})

	c := testClient(t, mux)
	meta, strategy, err := c.ResolvePR(context.Background(), "octo", "widgets", 123)
	if err != nil {
		t.Fatalf("ResolvePR() failed: %v", err)
	}

	if meta.Title != "Add widget" || meta.AuthorLogin != "alice" || !meta.Merged {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if strategy.Kind != StrategyMergeCommitParents {
		t.Fatalf("expected merge-commit strategy, got %s", strategy.Kind)
	}
	if strategy.BaseSHA != "ccc" || strategy.HeadSHA != "zzz" {
		t.Errorf("expected base=ccc head=zzz, got base=%s head=%s", strategy.BaseSHA, strategy.HeadSHA)
	}
}

func TestResolvePRSquashMerge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{
			"number": 7, "state": "closed", "merged": true,
			"merge_commit_sha": "squashsha", "user": {"login": "bob"}
		}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/pulls/7/commits", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `[{"sha": "x1", "commit": {"message": "only"}, "parents": [{"sha": "ddd"}]}]`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/squashsha", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{"sha": "squashsha", "parents": [{"sha": "ddd"}]}`)
	})

	c := testClient(t, mux)
	_, strategy, err := c.ResolvePR(context.Background(), "octo", "widgets", 7)
	if err != nil {
		t.Fatalf("ResolvePR() failed: %v", err)
	}

	// One-parent merge commit: the commit itself is the head.
	if strategy.Kind != StrategyMergeCommitParents {
		t.Fatalf("expected merge-commit strategy, got %s", strategy.Kind)
	}
	if strategy.BaseSHA != "ddd" || strategy.HeadSHA != "squashsha" {
		t.Errorf("expected base=ddd head=squashsha, got base=%s head=%s", strategy.BaseSHA, strategy.HeadSHA)
	}
}

func TestResolvePROpenCherryPick(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/9", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{"number": 9, "state": "open", "merged": false, "user": {"login": "carol"}}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/pulls/9/commits", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `[
			{"sha": "x1", "commit": {"message": "feat: one\n\ndetails"}, "parents": [{"sha": "aaa"}]},
			{"sha": "m1", "commit": {"message": "merge main"}, "parents": [{"sha": "x1"}, {"sha": "www"}]},
			{"sha": "x2", "commit": {"message": "feat: two"}, "parents": [{"sha": "m1"}]}
		]`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/x1", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{"sha": "x1", "parents": [{"sha": "aaa"}]}`)
	})

	c := testClient(t, mux)
	_, strategy, err := c.ResolvePR(context.Background(), "octo", "widgets", 9)
	if err != nil {
		t.Fatalf("ResolvePR() failed: %v", err)
	}

	if strategy.Kind != StrategyCherryPickReplay {
		t.Fatalf("expected cherry-pick strategy, got %s", strategy.Kind)
	}
	if strategy.BaseSHA != "aaa" {
		t.Errorf("expected base aaa (parent of first commit), got %s", strategy.BaseSHA)
	}
	// The merge commit m1 is filtered out of the replay sequence.
	if len(strategy.Commits) != 2 || strategy.Commits[0].SHA != "x1" || strategy.Commits[1].SHA != "x2" {
		t.Errorf("expected replay of [x1 x2], got %+v", strategy.Commits)
	}
	if strategy.Commits[0].FirstLineMessage != "feat: one" {
		t.Errorf("expected first-line message, got %q", strategy.Commits[0].FirstLineMessage)
	}
}

func TestResolvePRMergeCommitLookupFailsFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/5", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{
			"number": 5, "state": "closed", "merged": true,
			"merge_commit_sha": "gonesha", "user": {"login": "dan"}
		}`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/pulls/5/commits", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `[{"sha": "x1", "commit": {"message": "change"}, "parents": [{"sha": "eee"}]}]`)
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/gonesha", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	})
	mux.HandleFunc("GET /repos/octo/widgets/commits/x1", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(t, w, `{"sha": "x1", "parents": [{"sha": "eee"}]}`)
	})

	c := testClient(t, mux)
	_, strategy, err := c.ResolvePR(context.Background(), "octo", "widgets", 5)
	if err != nil {
		t.Fatalf("ResolvePR() failed: %v", err)
	}
	if strategy.Kind != StrategyCherryPickReplay {
		t.Errorf("expected fallback to cherry-pick replay, got %s", strategy.Kind)
	}
	if strategy.BaseSHA != "eee" {
		t.Errorf("expected base eee, got %s", strategy.BaseSHA)
	}
}

func TestResolvePRNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/404", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	})

	c := testClient(t, mux)
	_, _, err := c.ResolvePR(context.Background(), "octo", "widgets", 404)

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestResolvePRUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/widgets/pulls/1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "boom"}`, http.StatusInternalServerError)
	})

	c := testClient(t, mux)
	_, _, err := c.ResolvePR(context.Background(), "octo", "widgets", 1)

	var upstream *UpstreamAPIError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *UpstreamAPIError, got %v", err)
	}
}
