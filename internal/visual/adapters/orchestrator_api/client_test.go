package orchestratorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chronograph-pe/report-diffs-action/internal/visual/domain"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New("api-token", log.New(io.Discard),
		WithBaseURL(srv.URL), WithPollInterval(10*time.Millisecond))
}

func TestHasCompletedRun(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "baseline exists", body: `{"testRuns": [{"id": "run-1"}]}`, want: true},
		{name: "no baseline", body: `{"testRuns": []}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/test-runs" {
					t.Errorf("path = %q, want /test-runs", r.URL.Path)
				}
				if got := r.URL.Query().Get("commitSha"); got != "abc123" {
					t.Errorf("commitSha = %q", got)
				}
				if got := r.URL.Query().Get("suiteId"); got != "suite-1" {
					t.Errorf("suiteId = %q", got)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer api-token" {
					t.Errorf("Authorization = %q", got)
				}
				fmt.Fprint(w, tt.body)
			}))

			got, err := client.HasCompletedRun(context.Background(), "suite-1", "abc123")
			if err != nil {
				t.Fatalf("HasCompletedRun() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasCompletedRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduleRun(t *testing.T) {
	var scheduled atomic.Bool
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/test-runs" {
			t.Errorf("request = %s %s, want POST /test-runs", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("missing Idempotency-Key header")
		}
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding schedule request: %v", err)
		}
		if req.CommitSHA != "base-sha" {
			t.Errorf("CommitSHA = %q", req.CommitSHA)
		}
		scheduled.Store(true)
		w.WriteHeader(http.StatusAccepted)
	}))

	err := client.ScheduleRun(context.Background(), "s", "base-sha")
	if err != nil {
		t.Fatalf("ScheduleRun() error = %v", err)
	}
	if !scheduled.Load() {
		t.Error("schedule endpoint never hit")
	}
}

func TestLatestCompletedRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"testRuns": [{"id": "run-3"}, {"id": "run-2"}]}`)
	})
	mux.HandleFunc("/test-runs/run-3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-3", "status": "completed",
			"tests": [{"name": "home", "state": "passed", "screenshots": ["home.png"]}]}`)
	})

	run, err := testClient(t, mux).LatestCompletedRun(context.Background(), "suite-1", "base-sha")
	if err != nil {
		t.Fatalf("LatestCompletedRun() error = %v", err)
	}
	if run == nil || run.RunID != "run-3" {
		t.Fatalf("run = %+v, want run-3", run)
	}
	if got := domain.ScreenshotNames(run.Tests); len(got) != 1 || got[0] != "home.png" {
		t.Errorf("screenshots = %v", got)
	}
}

func TestLatestCompletedRun_NoneExists(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"testRuns": []}`)
	}))

	run, err := client.LatestCompletedRun(context.Background(), "", "base-sha")
	if err != nil {
		t.Fatalf("LatestCompletedRun() error = %v", err)
	}
	if run != nil {
		t.Errorf("run = %+v, want nil without a completed baseline", run)
	}
}

func TestExecuteTestRun_PollsToCompletion(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/test-runs/execute", func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding execute request: %v", err)
		}
		if req.CommitSHA != "head-sha" || req.BaseCommitSHA != "base-sha" {
			t.Errorf("commit pair = %q/%q", req.CommitSHA, req.BaseCommitSHA)
		}
		if req.AppURL != "https://pr.example.dev" {
			t.Errorf("AppURL = %q", req.AppURL)
		}
		if req.ParallelTasks != 4 || req.MaxRetriesOnFailure != 2 {
			t.Errorf("task settings = %d/%d", req.ParallelTasks, req.MaxRetriesOnFailure)
		}
		fmt.Fprint(w, `{"id": "run-7", "url": "https://runs.example/run-7", "status": "scheduled"}`)
	})
	mux.HandleFunc("/test-runs/run-7", func(w http.ResponseWriter, r *http.Request) {
		switch polls.Add(1) {
		case 1:
			fmt.Fprint(w, `{"id": "run-7", "url": "https://runs.example/run-7", "status": "running",
				"tests": [{"name": "home", "state": "passed"}]}`)
		case 2:
			fmt.Fprint(w, `{"id": "run-7", "url": "https://runs.example/run-7", "status": "running",
				"tests": [{"name": "home", "state": "passed"}, {"name": "checkout", "state": "differing"}]}`)
		default:
			fmt.Fprint(w, `{"id": "run-7", "url": "https://runs.example/run-7", "status": "completed",
				"tests": [{"name": "home", "state": "passed"}, {"name": "checkout", "state": "differing"}]}`)
		}
	})

	var created []domain.RunCreated
	var finished []domain.FinishedTest
	client := testClient(t, mux)

	result, err := client.ExecuteTestRun(context.Background(), domain.ExecuteParams{
		HeadSHA:             "head-sha",
		BaseSHA:             "base-sha",
		TargetURL:           "https://pr.example.dev",
		ParallelTasks:       4,
		MaxRetriesOnFailure: 2,
		OnTestRunCreated:    func(r domain.RunCreated) { created = append(created, r) },
		OnTestFinished:      func(t domain.FinishedTest) { finished = append(finished, t) },
	})
	if err != nil {
		t.Fatalf("ExecuteTestRun() error = %v", err)
	}

	if len(created) != 1 || created[0].ID != "run-7" {
		t.Errorf("OnTestRunCreated calls = %+v, want one for run-7", created)
	}
	if len(finished) != 2 {
		t.Fatalf("OnTestFinished calls = %d, want 2 (no duplicates across polls)", len(finished))
	}
	if finished[0].Name != "home" || finished[1].Name != "checkout" {
		t.Errorf("finished order = %q,%q", finished[0].Name, finished[1].Name)
	}
	if result.RunID != "run-7" || len(result.Tests) != 2 {
		t.Errorf("result = %+v", result)
	}
	if !result.HasDifferences() {
		t.Error("HasDifferences() = false, want true")
	}
}

func TestExecuteTestRun_ShrinkingTestList(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/test-runs/execute", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-10", "status": "scheduled"}`)
	})
	mux.HandleFunc("/test-runs/run-10", func(w http.ResponseWriter, r *http.Request) {
		// A lagging replica may answer with fewer tests than an
		// earlier poll did.
		switch polls.Add(1) {
		case 1:
			fmt.Fprint(w, `{"id": "run-10", "status": "running",
				"tests": [{"name": "home", "state": "passed"}, {"name": "checkout", "state": "passed"}]}`)
		default:
			fmt.Fprint(w, `{"id": "run-10", "status": "completed",
				"tests": [{"name": "home", "state": "passed"}]}`)
		}
	})

	var finished []domain.FinishedTest
	result, err := testClient(t, mux).ExecuteTestRun(context.Background(), domain.ExecuteParams{
		HeadSHA:        "head-sha",
		OnTestFinished: func(t domain.FinishedTest) { finished = append(finished, t) },
	})
	if err != nil {
		t.Fatalf("ExecuteTestRun() error = %v", err)
	}
	if len(finished) != 2 {
		t.Errorf("OnTestFinished calls = %d, want the 2 seen before the truncation", len(finished))
	}
	if len(result.Tests) != 1 {
		t.Errorf("result tests = %d, want the final poll's list", len(result.Tests))
	}
}

func TestExecuteTestRun_FailedRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-runs/execute", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-8", "status": "scheduled"}`)
	})
	mux.HandleFunc("/test-runs/run-8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-8", "status": "failed", "error": "browser crashed"}`)
	})

	_, err := testClient(t, mux).ExecuteTestRun(context.Background(), domain.ExecuteParams{HeadSHA: "x"})
	if err == nil {
		t.Fatal("ExecuteTestRun() error = nil, want failure")
	}
	if !strings.Contains(err.Error(), "browser crashed") {
		t.Errorf("error = %v, want orchestrator message surfaced", err)
	}
}

func TestExecuteTestRun_ContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-runs/execute", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-9", "status": "scheduled"}`)
	})
	mux.HandleFunc("/test-runs/run-9", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run-9", "status": "running"}`)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := testClient(t, mux).ExecuteTestRun(ctx, domain.ExecuteParams{HeadSHA: "x"})
	if err == nil {
		t.Fatal("ExecuteTestRun() error = nil, want context error")
	}
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid token"}`, http.StatusUnauthorized)
	}))

	_, err := client.HasCompletedRun(context.Background(), "", "abc")
	if err == nil {
		t.Fatal("HasCompletedRun() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want status code surfaced", err)
	}
}
