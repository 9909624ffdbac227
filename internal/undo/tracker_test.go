package undo

import (
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"
)

func stacks(t *testing.T, tr *Tracker, wantUndo, wantRedo []string) {
	t.Helper()
	h := tr.History()
	if !reflect.DeepEqual(h.Undo, wantUndo) {
		t.Errorf("undo = %q, want %q", h.Undo, wantUndo)
	}
	if !reflect.DeepEqual(h.Redo, wantRedo) {
		t.Errorf("redo = %q, want %q", h.Redo, wantRedo)
	}
}

func waitDepth(t *testing.T, tr *Tracker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for tr.Depth() != want {
		if time.Now().After(deadline) {
			t.Fatalf("depth = %d, want %d", tr.Depth(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPushClearsRedo(t *testing.T) {
	tests := []struct {
		name string
		redo int
	}{
		{"empty redo", 0},
		{"one redo", 1},
		{"many redo", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			for i := 0; i < tt.redo; i++ {
				tr.Push("op")
			}
			for i := 0; i < tt.redo; i++ {
				tr.DidUndo()
			}
			if got := len(tr.History().Redo); got != tt.redo {
				t.Fatalf("setup: redo has %d labels, want %d", got, tt.redo)
			}

			tr.Push("new")
			if h := tr.History(); len(h.Redo) != 0 {
				t.Errorf("redo after push = %q, want empty", h.Redo)
			}
		})
	}
}

func TestDidUndoRedoOnEmptyAreNoops(t *testing.T) {
	tr := New()
	tr.DidUndo()
	stacks(t, tr, []string{}, []string{})
	tr.DidRedo()
	stacks(t, tr, []string{}, []string{})

	tr.Push("A")
	tr.DidRedo()
	stacks(t, tr, []string{"A"}, []string{})

	tr.DidUndo()
	tr.DidUndo()
	stacks(t, tr, []string{}, []string{"A"})
}

func TestUndoRedoRoundTrip(t *testing.T) {
	tr := New()
	tr.Push("A")
	tr.DidUndo()
	stacks(t, tr, []string{}, []string{"A"})
	tr.DidRedo()
	stacks(t, tr, []string{"A"}, []string{})
}

func TestExternalChangeAtDepthZeroClears(t *testing.T) {
	tr := New()
	tr.Push("A")
	tr.Push("B")
	tr.DidUndo()

	tr.OnExternalChange()
	stacks(t, tr, []string{}, []string{})
}

func TestExternalChangeDuringOperationIgnored(t *testing.T) {
	tr := New(WithGraceWindow(time.Hour))
	tr.Push("A")

	tr.BeginInternalOp()
	tr.OnExternalChange()
	stacks(t, tr, []string{"A"}, []string{})

	tr.EndInternalOp()
	tr.OnExternalChange()
	stacks(t, tr, []string{"A"}, []string{})
}

func TestGraceWindowExpires(t *testing.T) {
	tr := New(WithGraceWindow(20 * time.Millisecond))
	tr.Push("A")

	tr.BeginInternalOp()
	tr.EndInternalOp()
	if tr.Depth() != 1 {
		t.Fatalf("depth right after End = %d, want 1", tr.Depth())
	}
	waitDepth(t, tr, 0)

	tr.OnExternalChange()
	stacks(t, tr, []string{}, []string{})
}

func TestBeginSettlesPendingRelease(t *testing.T) {
	tr := New(WithGraceWindow(30 * time.Millisecond))

	tr.BeginInternalOp()
	tr.EndInternalOp()
	tr.BeginInternalOp()
	if got := tr.Depth(); got != 1 {
		t.Fatalf("depth after second Begin = %d, want 1", got)
	}
	tr.EndInternalOp()
	waitDepth(t, tr, 0)

	// Nothing is left behind to absorb later external changes.
	tr.Push("A")
	tr.OnExternalChange()
	stacks(t, tr, []string{}, []string{})
}

func TestNestedOperations(t *testing.T) {
	tr := New(WithGraceWindow(20 * time.Millisecond))

	tr.BeginInternalOp()
	tr.BeginInternalOp()
	tr.EndInternalOp()
	time.Sleep(60 * time.Millisecond)
	if got := tr.Depth(); got != 1 {
		t.Fatalf("outer op still open, depth = %d, want 1", got)
	}

	tr.EndInternalOp()
	waitDepth(t, tr, 0)
}

func TestUnbalancedEndIgnored(t *testing.T) {
	tr := New(WithGraceWindow(time.Millisecond))
	tr.EndInternalOp()
	time.Sleep(10 * time.Millisecond)
	if got := tr.Depth(); got != 0 {
		t.Fatalf("depth = %d, want 0", got)
	}
}

// Random interleavings with a grace window that never expires: once any
// operation has begun, no external change may touch the stacks.
func TestRandomSequencesNeverClearInsideOperation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		tr := New(WithGraceWindow(time.Hour))
		tr.Push("seed")
		open := 0
		began := false
		for step := 0; step < 30; step++ {
			before := tr.History()
			switch op := rng.Intn(4); {
			case op == 0:
				tr.BeginInternalOp()
				open++
				began = true
			case op == 1 && open > 0:
				tr.EndInternalOp()
				open--
			default:
				tr.OnExternalChange()
				after := tr.History()
				if began && !reflect.DeepEqual(before, after) {
					t.Fatalf("run %d step %d: external change inside operation altered stacks %v -> %v", run, step, before, after)
				}
				if !began && len(after.Undo)+len(after.Redo) != 0 {
					t.Fatalf("run %d step %d: external change at depth 0 left %v", run, step, after)
				}
			}
		}
	}
}

func TestOnChangeObservers(t *testing.T) {
	tr := New()
	var mu sync.Mutex
	var seen []History
	remove := tr.OnChange(func(h History) {
		mu.Lock()
		seen = append(seen, h)
		mu.Unlock()
	})

	tr.Push("A")
	tr.DidUndo()
	tr.Clear()
	tr.Clear() // already empty, no notification
	remove()
	tr.Push("B")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("got %d notifications, want 3", len(seen))
	}
	if !reflect.DeepEqual(seen[1].Redo, []string{"A"}) {
		t.Errorf("second snapshot redo = %q, want [A]", seen[1].Redo)
	}
}
