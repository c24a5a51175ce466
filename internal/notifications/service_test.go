package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"slidecast/internal/notifications"
	"slidecast/internal/progress"
	"slidecast/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(cfg)
	if err := svc.NotifyJobStarted(context.Background(), "curso", 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceSendsHeadersAndBody(t *testing.T) {
	type captured struct {
		title    string
		tags     string
		priority string
		body     string
	}
	var requests []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.NotifyJobStarted(context.Background(), "curso nr-10", 5); err != nil {
		t.Fatalf("NotifyJobStarted: %v", err)
	}
	if err := svc.NotifyJobCompleted(context.Background(), "curso nr-10", 5, 90*time.Second); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	if err := svc.NotifyJobFailed(context.Background(), "curso nr-10", "every scene failed to render"); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}

	if len(requests) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(requests))
	}
	if requests[0].title != "Slidecast - Render Started" {
		t.Errorf("start title = %q", requests[0].title)
	}
	if requests[1].priority != "high" {
		t.Errorf("completion should be high priority, got %q", requests[1].priority)
	}
	if requests[2].tags != "slidecast,render,failed" {
		t.Errorf("failure tags = %q", requests[2].tags)
	}
	if requests[2].body != "Render failed for curso nr-10: every scene failed to render" {
		t.Errorf("failure body = %q", requests[2].body)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(cfg)

	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}

func TestSubscriberForwardsLifecycleEvents(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	subscriber := notifications.Subscriber(notifications.NewService(cfg))

	subscriber.HandleEvent(progress.Event{Type: progress.EventPhaseStarted, Phase: progress.PhaseInitialization, JobID: "job-1", ScenesTotal: 2})
	subscriber.HandleEvent(progress.Event{Type: progress.EventPhaseStarted, Phase: progress.PhaseFinalMerge, JobID: "job-1"})
	subscriber.HandleEvent(progress.Event{Type: progress.EventProgress, JobID: "job-1"})
	subscriber.HandleEvent(progress.Event{Type: progress.EventJobCompleted, JobID: "job-1", ScenesCompleted: 2})

	if len(bodies) != 2 {
		t.Fatalf("expected start and completion notifications only, got %d: %q", len(bodies), bodies)
	}
}
