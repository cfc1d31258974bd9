package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"sendit/internal/history"
	"sendit/internal/lifecycle"
	"sendit/internal/queue"
	"sendit/internal/reconcile"
	"sendit/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := newCLIConfig(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowIncludesSocketOverride(t *testing.T) {
	env := newCLIConfig(t)
	socket := filepath.Join(t.TempDir(), "other.sock")

	out, _, err := runCLI(t, env, "--socket", socket, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[paths]")
	requireContains(t, out, socket)
}

func TestCommandWithoutBackendExplainsHowToStartIt(t *testing.T) {
	env := newCLIConfig(t)
	_, _, err := runCLI(t, env, "watch", "--once")
	if err == nil {
		t.Fatal("expected an error without a backend")
	}
	requireContains(t, err.Error(), "start the SendIt backend")
}

func TestSendQueuesFilesAndPrintsTicket(t *testing.T) {
	env := setupCLITestEnv(t)
	a := testsupport.SourceFile(t, "a.txt", 2048)
	b := testsupport.SourceFile(t, "b.txt", 10)

	out, _, err := runCLI(t, env, "send", a, b)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	requireContains(t, out, "Outbound queue")
	requireContains(t, out, "a.txt")
	requireContains(t, out, "2.0 kB")
	requireContains(t, out, "Ticket: ticket-1")

	adds := env.backend.CallsFor(reconcile.CommandAddFile)
	slices.Sort(adds)
	if !slices.Equal(adds, []string{a, b}) {
		t.Fatalf("add calls = %v, want %v", adds, []string{a, b})
	}
	if got := env.backend.CallsFor(reconcile.CommandGenerateTicket); len(got) != 1 {
		t.Fatalf("expected one ticket request, got %d", len(got))
	}
}

func TestSendReportsAddFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.SetError(reconcile.CommandAddFile, errors.New("file is a directory"))

	_, _, err := runCLI(t, env, "send", testsupport.SourceFile(t, "a.txt", 1))
	if err == nil {
		t.Fatal("expected send to fail")
	}
	requireContains(t, err.Error(), "file is a directory")
	if got := env.backend.CallsFor(reconcile.CommandGenerateTicket); len(got) != 0 {
		t.Fatalf("ticket requested after failed add: %v", got)
	}
}

func TestRemoveResolvesNameToQueuedPath(t *testing.T) {
	env := setupCLITestEnv(t)
	a := testsupport.SourceFile(t, "a.txt", 4)
	if _, _, err := runCLI(t, env, "add", a); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, env, "remove", "a.txt")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	requireContains(t, out, "Removed")
	if got := env.backend.CallsFor(reconcile.CommandRemoveFile); !slices.Equal(got, []string{a}) {
		t.Fatalf("remove calls = %v, want [%s]", got, a)
	}
}

func TestClearWithdrawsEverything(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "add", testsupport.SourceFile(t, "a.txt", 1), testsupport.SourceFile(t, "b.txt", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, _, err := runCLI(t, env, "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	requireContains(t, out, "cleared")
}

func TestReceiveFollowsUntilAllComplete(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.Download = func(_ context.Context, ticket string) error {
		env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "b.txt", Size: 1024})
		env.hub.Publish(lifecycle.EventInboundProgress, lifecycle.InboundProgressPayload{Name: "b.txt", Progress: 50, Speed: 1})
		env.hub.Publish(lifecycle.EventInboundCompleted, lifecycle.InboundCompletedPayload{Name: "b.txt", Path: "/downloads/b.txt"})
		env.hub.Publish(lifecycle.EventInboundAllComplete, struct{}{})
		return nil
	}

	out, _, err := runCLI(t, env, "receive", " blobticket ")
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	requireContains(t, out, "Inbound queue")
	requireContains(t, out, "b.txt")
	requireContains(t, out, "done")
	requireContains(t, out, "/downloads/b.txt")
	if got := env.backend.CallsFor(reconcile.CommandDownloadByTicket); !slices.Equal(got, []string{"blobticket"}) {
		t.Fatalf("download calls = %v", got)
	}
}

func TestReceiveReportsRejectedTicket(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.SetError(reconcile.CommandDownloadByTicket, errors.New("invalid ticket"))

	_, _, err := runCLI(t, env, "receive", "nope")
	if err == nil {
		t.Fatal("expected receive to fail")
	}
	requireContains(t, err.Error(), "invalid ticket")
}

func TestReceiveInterruptCancelsInFlightDownloads(t *testing.T) {
	env := setupCLITestEnv(t)
	env.backend.Download = func(context.Context, string) error {
		env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "a.txt", Size: 10})
		env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "b.txt", Size: 10})
		env.hub.Publish(lifecycle.EventInboundProgress, lifecycle.InboundProgressPayload{Name: "a.txt", Progress: 10, Speed: 1})
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var (
		wg  sync.WaitGroup
		out string
		err error
	)
	wg.Go(func() {
		out, _, err = runCLIContext(t, ctx, env, "receive", "blobticket")
	})

	waitFor(t, 3*time.Second, func() bool {
		return len(env.backend.CallsFor(reconcile.CommandDownloadByTicket)) == 1
	})
	// Give the event pump time to apply the added files.
	time.Sleep(500 * time.Millisecond)
	cancel()
	wg.Wait()

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("receive error = %v, want context.Canceled", err)
	}
	requireContains(t, out, "2 download(s) cancelled")
	cancels := env.backend.CallsFor(reconcile.CommandCancelDownload)
	slices.Sort(cancels)
	if !slices.Equal(cancels, []string{"a.txt", "b.txt"}) {
		t.Fatalf("cancel calls = %v", cancels)
	}
}

func TestCancelNeedsATarget(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "cancel"); err == nil {
		t.Fatal("expected cancel without arguments to fail")
	}
}

func TestCancelNamedDownload(t *testing.T) {
	env := setupCLITestEnv(t)
	env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "a.txt", Size: 10})
	env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "done.txt", Size: 10})
	env.hub.Publish(lifecycle.EventInboundCompleted, lifecycle.InboundCompletedPayload{Name: "done.txt", Path: "/d/done.txt"})

	out, _, err := runCLI(t, env, "cancel", "a.txt", "done.txt", "missing.txt")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "done.txt: not an active download")
	requireContains(t, out, "missing.txt: not an active download")
	requireContains(t, out, "1 download(s) cancelled")
	if got := env.backend.CallsFor(reconcile.CommandCancelDownload); !slices.Equal(got, []string{"a.txt"}) {
		t.Fatalf("cancel calls = %v", got)
	}
}

func TestCancelMatchesNameInAnyNormalizationForm(t *testing.T) {
	env := setupCLITestEnv(t)
	decomposed := "cafe\u0301.txt"
	env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: decomposed, Size: 10})

	out, _, err := runCLI(t, env, "cancel", "caf\u00e9.txt")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "1 download(s) cancelled")
	if got := env.backend.CallsFor(reconcile.CommandCancelDownload); !slices.Equal(got, []string{decomposed}) {
		t.Fatalf("cancel calls = %q, want the backend's own name", got)
	}
}

func TestSendFollowWaitsForEveryFile(t *testing.T) {
	env := setupLoopbackEnv(t)
	a := testsupport.SourceFile(t, "a.bin", 200*1024)
	b := testsupport.SourceFile(t, "b.bin", 4096)

	out, _, err := runCLI(t, env, "send", "--follow", a, b)
	if err != nil {
		t.Fatalf("send --follow: %v", err)
	}
	requireContains(t, out, "Ticket: blob")
	requireContains(t, out, "2 of 2 done")
}

func TestPreviewListsFilesAndCommitAddsThem(t *testing.T) {
	env := setupCLITestEnv(t)
	a := testsupport.SourceFile(t, "a.txt", 1)
	b := testsupport.SourceFile(t, "b.txt", 1)

	out, _, err := runCLI(t, env, "preview", a, b)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	requireContains(t, out, "Drop preview")
	requireContains(t, out, "b.txt")
	if got := env.backend.CallsFor(reconcile.CommandAddFile); len(got) != 0 {
		t.Fatalf("preview without --commit added files: %v", got)
	}

	out, _, err = runCLI(t, env, "preview", "--commit", a, b)
	if err != nil {
		t.Fatalf("preview --commit: %v", err)
	}
	requireContains(t, out, "Outbound queue")
	if got := env.backend.CallsFor(reconcile.CommandAddFile); len(got) != 2 {
		t.Fatalf("expected 2 adds, got %v", got)
	}

	// Everything is queued now, so nothing new is offered.
	out, _, err = runCLI(t, env, "preview", a)
	if err != nil {
		t.Fatalf("second preview: %v", err)
	}
	requireContains(t, out, "nothing new to add")
}

func TestWatchOnceJSONReflectsRetainedEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	env.hub.Publish(lifecycle.EventOutboundAdded, lifecycle.OutboundAddedPayload{Name: "a.txt", Path: "/src/a.txt", Size: 3})
	env.hub.Publish(lifecycle.EventOutboundProgress, lifecycle.OutboundProgressPayload{Path: "/src/a.txt", Progress: 40})
	env.hub.Publish(lifecycle.EventInboundAdded, lifecycle.InboundAddedPayload{Name: "b.txt", Size: 7})

	out, _, err := runCLI(t, env, "watch", "--once", "--json")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	var state queue.State
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode state: %v\n%s", err, out)
	}
	item, ok := state.Outbound.Get("a.txt")
	if !ok || item.Progress != 40 {
		t.Fatalf("outbound item = %+v, %v", item, ok)
	}
	if state.Inbound.Len() != 1 {
		t.Fatalf("inbound = %+v", state.Inbound)
	}

	out, _, err = runCLI(t, env, "watch", "--once")
	if err != nil {
		t.Fatalf("watch table: %v", err)
	}
	requireContains(t, out, "Outbound queue")
	requireContains(t, out, "Inbound queue")
	requireContains(t, out, "sending")
}

func TestHistoryCommands(t *testing.T) {
	env := newCLIConfig(t)
	store, err := history.Open(env.cfg.History.Path)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	ctx := context.Background()
	old := time.Now().Add(-90 * 24 * time.Hour)
	entries := []history.Entry{
		{Direction: "inbound", Key: "b.txt", Size: 1024, Outcome: history.OutcomeCompleted, Path: "/d/b.txt"},
		{Direction: "outbound", Key: "a.txt", Size: 5, Outcome: history.OutcomeFailed, Reason: "disk full"},
		{Direction: "inbound", Key: "ancient.txt", Size: 1, Outcome: history.OutcomeAborted, FinishedAt: old},
	}
	for _, entry := range entries {
		if _, err := store.RecordTransfer(ctx, entry); err != nil {
			t.Fatalf("RecordTransfer: %v", err)
		}
	}
	if err := store.RecordTicket(ctx, "ticket-9", 2); err != nil {
		t.Fatalf("RecordTicket: %v", err)
	}
	store.Close()

	out, _, err := runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "b.txt")
	requireContains(t, out, "disk full")

	out, _, err = runCLI(t, env, "history", "--direction", "outbound", "--json")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var listed []history.Entry
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(listed) != 1 || listed[0].Key != "a.txt" {
		t.Fatalf("filtered history = %+v", listed)
	}

	if _, _, err := runCLI(t, env, "history", "--direction", "sideways"); err == nil {
		t.Fatal("expected invalid direction to fail")
	}

	out, _, err = runCLI(t, env, "history", "tickets")
	if err != nil {
		t.Fatalf("history tickets: %v", err)
	}
	requireContains(t, out, "ticket-9")

	out, _, err = runCLI(t, env, "history", "prune", "--older-than", "720h")
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 1 history entries")
}

func TestNotifyTest(t *testing.T) {
	env := newCLIConfig(t)
	if _, _, err := runCLI(t, env, "notify", "test"); err == nil {
		t.Fatal("expected notify test to fail without a topic")
	}

	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
	}))
	defer srv.Close()

	env = newCLIConfig(t, testsupport.WithNtfyTopic(srv.URL+"/sendit"))
	out, _, err := runCLI(t, env, "notify", "test")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 || !strings.Contains(bodies[0], "Notification system test") {
		t.Fatalf("ntfy bodies = %q", bodies)
	}
}
