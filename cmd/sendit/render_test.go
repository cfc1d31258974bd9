package main

import (
	"strings"
	"testing"
	"time"

	"sendit/internal/history"
	"sendit/internal/queue"
	"sendit/internal/reconcile"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Receive", statusError, "b.txt: peer left", false)
	want := "  Receive:     [ERROR] b.txt: peer left"
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Send", statusOK, "a.txt", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "[----------]   0.0%"},
		{50, "[#####-----]  50.0%"},
		{100, "[##########] 100.0%"},
		{250, "[##########] 100.0%"},
		{-3, "[----------]   0.0%"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.percent, 10); got != tt.want {
			t.Errorf("progressBar(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestItemStatus(t *testing.T) {
	tests := []struct {
		name string
		id   queue.ID
		item queue.Item
		want string
	}{
		{"done wins", queue.Inbound, queue.Item{Done: true, Cancelling: true, Progress: 100}, "done"},
		{"cancelling", queue.Inbound, queue.Item{Cancelling: true, Progress: 20}, "cancelling"},
		{"queued", queue.Outbound, queue.Item{}, "queued"},
		{"receiving", queue.Inbound, queue.Item{Progress: 5}, "receiving"},
		{"sending", queue.Outbound, queue.Item{Progress: 5}, "sending"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := itemStatus(tt.id, tt.item); got != tt.want {
				t.Fatalf("itemStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := formatSpeed(queue.Item{Speed: 1.5}); got != "1.5 MB/s" {
		t.Fatalf("formatSpeed = %q", got)
	}
	if got := formatSpeed(queue.Item{Speed: 1.5, Done: true}); got != "-" {
		t.Fatalf("finished item speed = %q", got)
	}
}

func TestRenderQueue(t *testing.T) {
	empty := renderQueue(queue.Snapshot{Queue: queue.Inbound}, false)
	if !strings.Contains(empty, "Inbound queue") || !strings.Contains(empty, "(empty)") {
		t.Fatalf("unexpected empty render:\n%s", empty)
	}

	snap := queue.Snapshot{Queue: queue.Outbound, Items: []queue.Item{
		{Key: "a.txt", Size: 2000, Progress: 50, Speed: 2, Path: "/src/a.txt"},
		{Key: "b.txt", Size: 1000, Progress: 100, Done: true, Path: "/src/b.txt"},
	}}
	out := renderQueue(snap, false)
	for _, want := range []string{"Outbound queue", "a.txt", "/src/b.txt", "2.0 MB/s", "sending", "done", "1 of 2 done, 2.0 kB of 3.0 kB"} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRenderNotice(t *testing.T) {
	tests := []struct {
		name   string
		notice reconcile.Notice
		want   string
	}{
		{"completed", reconcile.Notice{Kind: reconcile.NoticeCompleted, Queue: queue.Inbound, Key: "b.txt", Path: "/d/b.txt"}, "b.txt -> /d/b.txt"},
		{"error", reconcile.Notice{Kind: reconcile.NoticeError, Queue: queue.Outbound, Key: "a.txt", Message: "disk full"}, "[ERROR] a.txt: disk full"},
		{"aborted", reconcile.Notice{Kind: reconcile.NoticeAborted, Queue: queue.Inbound, Key: "b.txt", Message: "Cancelled"}, "[WARN] b.txt: Cancelled"},
		{"all complete", reconcile.Notice{Kind: reconcile.NoticeAllComplete}, "all files received"},
		{"command failed", reconcile.Notice{Kind: reconcile.NoticeCommandFailed, Command: "add_file", Key: "a.txt", Message: "boom"}, "add_file a.txt: boom"},
		{"ticket is silent", reconcile.Notice{Kind: reconcile.NoticeTicket, Message: "t"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderNotice(tt.notice, false)
			if tt.want == "" {
				if got != "" {
					t.Fatalf("expected no output, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Fatalf("renderNotice = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestRenderHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := renderHistory([]history.Entry{
		{Direction: "inbound", Key: "b.txt", Size: 1500, Outcome: history.OutcomeAborted, Reason: "Cancelled", FinishedAt: now.Add(-2 * time.Hour)},
	}, now)
	for _, want := range []string{"Receive", "b.txt", "1.5 kB", "aborted", "Cancelled", "2 hours ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("history render missing %q:\n%s", want, out)
		}
	}
}

func TestQueueTitle(t *testing.T) {
	if got := queueTitle(queue.Inbound); got != "Inbound queue" {
		t.Fatalf("queueTitle = %q", got)
	}
}
