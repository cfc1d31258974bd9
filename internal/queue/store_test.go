package queue_test

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"sendit/internal/queue"
)

func TestInsertIsIdempotentUpsert(t *testing.T) {
	store := queue.NewStore()

	if !store.Insert(queue.Inbound, queue.Item{Key: "a.txt", Size: 10, Icon: "i1"}) {
		t.Fatal("expected first insert to create item")
	}
	store.PatchProgress(queue.Inbound, "a.txt", 40, 1.5)
	before := store.Snapshot(queue.Inbound)

	if store.Insert(queue.Inbound, queue.Item{Key: "a.txt", Size: 10, Icon: "i1"}) {
		t.Fatal("expected duplicate insert not to create a new item")
	}
	after := store.Snapshot(queue.Inbound)
	if !reflect.DeepEqual(before.Items, after.Items) {
		t.Fatalf("duplicate insert changed items: %+v -> %+v", before.Items, after.Items)
	}
	if after.Version != before.Version {
		t.Fatalf("no-op insert bumped version %d -> %d", before.Version, after.Version)
	}

	store.Insert(queue.Inbound, queue.Item{Key: "a.txt", Size: 12, Icon: "i2"})
	item, _ := store.Get(queue.Inbound, "a.txt")
	if item.Size != 12 || item.Icon != "i2" || item.Progress != 40 {
		t.Fatalf("expected metadata refresh with progress kept, got %+v", item)
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	store := queue.NewStore()
	for _, key := range []string{"c", "a", "b"} {
		store.Insert(queue.Outbound, queue.Item{Key: key})
	}
	store.Insert(queue.Outbound, queue.Item{Key: "a"})
	store.Remove(queue.Outbound, "c")
	store.Insert(queue.Outbound, queue.Item{Key: "c"})

	got := store.Snapshot(queue.Outbound).Keys()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestPatchProgressMonotonicAndCompletion(t *testing.T) {
	tests := []struct {
		name      string
		patches   [][2]float64
		wantProg  float64
		wantSpeed float64
		wantDone  bool
	}{
		{"single", [][2]float64{{30, 2}}, 30, 2, false},
		{"regression ignored", [][2]float64{{60, 2}, {40, 3}}, 60, 3, false},
		{"clamped high", [][2]float64{{150, 9}}, 100, 0, true},
		{"clamped low", [][2]float64{{-5, 1}}, 0, 1, false},
		{"nan progress", [][2]float64{{10, 1}, {math.NaN(), 1}}, 10, 1, false},
		{"negative speed", [][2]float64{{10, -4}}, 10, 0, false},
		{"completion zeroes speed", [][2]float64{{50, 5}, {100, 5}}, 100, 0, true},
		{"after completion", [][2]float64{{100, 0}, {20, 7}}, 100, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := queue.NewStore()
			store.Insert(queue.Inbound, queue.Item{Key: "k"})
			for _, p := range tt.patches {
				if !store.PatchProgress(queue.Inbound, "k", p[0], p[1]) {
					t.Fatal("expected patch to find key")
				}
			}
			item, _ := store.Get(queue.Inbound, "k")
			if item.Progress != tt.wantProg || item.Speed != tt.wantSpeed || item.Done != tt.wantDone {
				t.Fatalf("got progress=%v speed=%v done=%v", item.Progress, item.Speed, item.Done)
			}
			if item.Done != (item.Progress == 100) {
				t.Fatal("done must equal progress==100")
			}
		})
	}
}

func TestMutationsOnAbsentKeys(t *testing.T) {
	store := queue.NewStore()
	if store.PatchProgress(queue.Inbound, "ghost", 10, 0) {
		t.Fatal("expected PatchProgress on absent key to report false")
	}
	if store.SetPath(queue.Inbound, "ghost", "/x") {
		t.Fatal("expected SetPath on absent key to report false")
	}
	if store.Remove(queue.Inbound, "ghost") {
		t.Fatal("expected Remove on absent key to report false")
	}
	if store.Snapshot(queue.Inbound).Version != 0 {
		t.Fatal("no-op mutations must not bump the version")
	}
	if store.Insert("sideways", queue.Item{Key: "x"}) {
		t.Fatal("expected insert into unknown queue to fail")
	}
}

func TestQueuesAreIndependent(t *testing.T) {
	store := queue.NewStore()
	store.Insert(queue.Inbound, queue.Item{Key: "same.txt"})
	store.Insert(queue.Outbound, queue.Item{Key: "same.txt", Path: "/src/same.txt"})
	store.PatchProgress(queue.Inbound, "same.txt", 100, 0)
	store.Clear(queue.Outbound)

	if store.Snapshot(queue.Outbound).Len() != 0 {
		t.Fatal("expected outbound cleared")
	}
	item, ok := store.Get(queue.Inbound, "same.txt")
	if !ok || !item.Done {
		t.Fatalf("inbound should be unaffected, got %+v", item)
	}
}

func TestClearResetsProgressForRecreatedItems(t *testing.T) {
	store := queue.NewStore()
	store.Insert(queue.Inbound, queue.Item{Key: "a.txt"})
	store.PatchProgress(queue.Inbound, "a.txt", 80, 1)
	store.Clear(queue.Inbound)
	store.Insert(queue.Inbound, queue.Item{Key: "a.txt"})
	item, _ := store.Get(queue.Inbound, "a.txt")
	if item.Progress != 0 || item.Done {
		t.Fatalf("expected fresh item after clear, got %+v", item)
	}
}

func TestOutboundInsertDropsPreviewEntry(t *testing.T) {
	store := queue.NewStore()
	store.SetPreview([]queue.PreviewItem{
		{Key: "a.txt", Name: "a.txt", Path: "/p/a.txt"},
		{Key: "b.txt", Name: "b.txt", Path: "/p/b.txt"},
	})
	store.Insert(queue.Outbound, queue.Item{Key: "a.txt", Path: "/p/a.txt"})

	preview := store.Preview()
	if len(preview) != 1 || preview[0].Key != "b.txt" {
		t.Fatalf("expected only b.txt in preview, got %+v", preview)
	}
	store.Insert(queue.Inbound, queue.Item{Key: "b.txt"})
	if len(store.Preview()) != 1 {
		t.Fatal("inbound insert must not touch the preview")
	}
	store.ClearPreview()
	if len(store.Preview()) != 0 {
		t.Fatal("expected empty preview")
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	store := queue.NewStore()
	store.Insert(queue.Inbound, queue.Item{Key: "a"})
	snap := store.Snapshot(queue.Inbound)
	snap.Items[0].Progress = 99

	store.PatchProgress(queue.Inbound, "a", 10, 0)
	if snap.Items[0].Progress != 99 {
		t.Fatal("snapshot must not observe later mutations")
	}
	item, _ := store.Get(queue.Inbound, "a")
	if item.Progress != 10 {
		t.Fatalf("store must not observe snapshot edits, got %v", item.Progress)
	}
}

func TestWatchDeliversLatestState(t *testing.T) {
	store := queue.NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	updates := store.Watch(ctx)
	initial := <-updates
	if initial.Version != 0 {
		t.Fatalf("expected initial version 0, got %d", initial.Version)
	}

	store.Insert(queue.Inbound, queue.Item{Key: "a"})
	store.PatchProgress(queue.Inbound, "a", 50, 1)
	store.SetDownloading(true)

	select {
	case state := <-updates:
		if !state.Downloading || state.Inbound.Items[0].Progress != 50 {
			t.Fatalf("expected coalesced latest state, got %+v", state)
		}
		if state.Version != store.State().Version {
			t.Fatalf("expected version %d, got %d", store.State().Version, state.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			// A final pending state may still be drained before close.
			if _, ok := <-updates; ok {
				t.Fatal("expected channel to close after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel did not close")
	}
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/u/a.txt", "a.txt"},
		{"a.txt", "a.txt"},
		{"  /tmp/dir/  ", "dir"},
		{"", ""},
		{"/", ""},
		{"/x/cafe\u0301.txt", "caf\u00e9.txt"},
	}
	for _, tt := range tests {
		if got := queue.DeriveKey(tt.path); got != tt.want {
			t.Errorf("DeriveKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestItemHelpers(t *testing.T) {
	item := queue.Item{Size: 1000, Progress: 25, Speed: 0.5}
	if item.TransferredBytes() != 250 {
		t.Fatalf("TransferredBytes = %d", item.TransferredBytes())
	}
	if item.BytesPerSecond() != 500000 {
		t.Fatalf("BytesPerSecond = %v", item.BytesPerSecond())
	}
	snap := queue.Snapshot{Items: []queue.Item{{Key: "a", Done: true}, {Key: "b"}}}
	if snap.Active() != 1 || snap.AllDone() {
		t.Fatalf("unexpected Active/AllDone for %+v", snap)
	}
}
