package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/config"
	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/models"
)

func feedServer(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func checkConfig(motionURL, healthURL string) *config.Config {
	cfg := &config.Config{Feeds: config.FeedsConfig{MotionURL: motionURL, HealthURL: healthURL}}
	cfg.ApplyDefaults()
	return cfg
}

func TestFeedCheck_PrintsReadingAndAlerts(t *testing.T) {
	motion := feedServer(t, `{"feeds":[{"field1":"0.1","field2":"0.2","field3":"9.8","field4":"24","field5":"60","field6":"450","field7":"3.9","field8":"Fall Detected"}]}`)
	health := feedServer(t, `{"feeds":[{"field1":"80","field2":"78","field3":"36.7"}]}`)

	var out bytes.Buffer
	if err := checkFeeds(context.Background(), checkConfig(motion, health), &out, zerolog.Nop()); err != nil {
		t.Fatalf("checkFeeds() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"Subject: worker-1", "Gas: 450.0", "ALERT [warning] High Gas Level Detected!", "ALERT [critical] Fall Detected!"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFeedCheck_NoAlerts(t *testing.T) {
	motion := feedServer(t, `{"feeds":[{"field6":"120","field8":"Normal"}]}`)
	health := feedServer(t, `{"feeds":[{"field1":"72"}]}`)

	var out bytes.Buffer
	if err := checkFeeds(context.Background(), checkConfig(motion, health), &out, zerolog.Nop()); err != nil {
		t.Fatalf("checkFeeds() error = %v", err)
	}
	if !strings.Contains(out.String(), "No alerts") {
		t.Errorf("output = %q", out.String())
	}
}

func TestFeedCheck_FetchFailure(t *testing.T) {
	motion := feedServer(t, `not json`)
	health := feedServer(t, `{"feeds":[{"field1":"72"}]}`)

	var out bytes.Buffer
	err := checkFeeds(context.Background(), checkConfig(motion, health), &out, zerolog.Nop())
	if err == nil {
		t.Fatal("checkFeeds() should fail on a malformed feed")
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed on failure, got %q", out.String())
	}
	if !strings.Contains(err.Error(), feed.ErrFetchFailure.Error()) {
		t.Errorf("error = %v", err)
	}
}

func TestPrintMessage(t *testing.T) {
	tick, _ := models.NewMessage(models.MessageTypeTick, models.TickMessage{
		SubjectID:  models.WorkerOne,
		Reading:    models.Reading{SubjectID: models.WorkerOne, GasLevel: 310, Timestamp: time.Now()},
		Alerts:     []models.Alert{{Severity: models.SeverityWarning, Message: "High Gas Level Detected!"}},
		WindowSize: 3,
	})
	failure, _ := models.NewMessage(models.MessageTypeFetchFailure, models.FetchFailureMessage{
		SubjectID: models.WorkerOne, Error: "fetch failed: motion: unexpected status 500", ConsecutiveFailures: 2,
	})

	var out bytes.Buffer
	printMessage(&out, tick)
	printMessage(&out, failure)

	got := out.String()
	for _, want := range []string{"window=3", "ALERT [warning] worker-1: High Gas Level Detected!", "Error fetching data: fetch failed", "failures=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
