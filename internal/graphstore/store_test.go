package graphstore

import (
	"errors"
	"testing"

	"buildgraph/internal/key"
)

var errTest = errors.New("boom")

const testFamily key.Family = "Test"

func nk(name string) key.Key { return key.New(testFamily, name) }

func TestBeginBuild_AbsentToBuilding(t *testing.T) {
	s := New(KeepEdgesFull)
	if err := s.BeginBuild(nk("a")); err != nil {
		t.Fatalf("BeginBuild: %v", err)
	}
	snap, _ := s.Get(nk("a"))
	if snap.State != Building {
		t.Fatalf("State = %s, want Building", snap.State)
	}
}

func TestBeginBuild_AlreadyBuilding(t *testing.T) {
	s := New(KeepEdgesFull)
	if err := s.BeginBuild(nk("a")); err != nil {
		t.Fatalf("BeginBuild (1): %v", err)
	}
	if err := s.BeginBuild(nk("a")); err != ErrAlreadyBuilding {
		t.Fatalf("BeginBuild (2) = %v, want ErrAlreadyBuilding", err)
	}
}

func TestComplete_RewritesRDeps(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("dep"))
	s.Complete(nk("dep"), key.Value{}, nil, nil)

	s.BeginBuild(nk("a"))
	if err := s.Complete(nk("a"), key.Value{}, []key.Key{nk("dep")}, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	depSnap, _ := s.Get(nk("dep"))
	if len(depSnap.RDeps) != 1 || depSnap.RDeps[0] != nk("a") {
		t.Fatalf("RDeps = %v, want [a]", depSnap.RDeps)
	}
}

func TestComplete_DropsRemovedDeps(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("dep1"))
	s.Complete(nk("dep1"), key.Value{}, nil, nil)
	s.BeginBuild(nk("dep2"))
	s.Complete(nk("dep2"), key.Value{}, nil, nil)

	s.BeginBuild(nk("a"))
	s.Complete(nk("a"), key.Value{}, []key.Key{nk("dep1")}, nil)

	s.MarkDirty(nk("a"), Injected, nil)
	s.BeginBuild(nk("a"))
	s.Complete(nk("a"), key.Value{}, []key.Key{nk("dep2")}, nil)

	dep1Snap, _ := s.Get(nk("dep1"))
	if len(dep1Snap.RDeps) != 0 {
		t.Fatalf("dep1 RDeps = %v, want none after being dropped", dep1Snap.RDeps)
	}
	dep2Snap, _ := s.Get(nk("dep2"))
	if len(dep2Snap.RDeps) != 1 {
		t.Fatalf("dep2 RDeps = %v, want [a]", dep2Snap.RDeps)
	}
}

func TestMarkDirty_PropagatesTransitively(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("leaf"))
	s.Complete(nk("leaf"), key.Value{}, nil, nil)
	s.BeginBuild(nk("mid"))
	s.Complete(nk("mid"), key.Value{}, []key.Key{nk("leaf")}, nil)
	s.BeginBuild(nk("top"))
	s.Complete(nk("top"), key.Value{}, []key.Key{nk("mid")}, nil)

	var dirtied []key.Key
	s.MarkDirty(nk("leaf"), Injected, func(k key.Key, _ State) { dirtied = append(dirtied, k) })

	want := map[key.Key]bool{nk("leaf"): true, nk("mid"): true, nk("top"): true}
	if len(dirtied) != 3 {
		t.Fatalf("dirtied = %v, want 3 entries", dirtied)
	}
	for _, k := range dirtied {
		if !want[k] {
			t.Errorf("unexpected dirtied key %s", k)
		}
	}

	for _, k := range []key.Key{nk("leaf"), nk("mid"), nk("top")} {
		snap, _ := s.Get(k)
		if snap.State != Dirty {
			t.Errorf("%s.State = %s, want Dirty", k, snap.State)
		}
	}
}

func TestInjectDone_MarksRDepsDirtyUnconditionally(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("dep"))
	s.Complete(nk("dep"), key.Value{}, nil, nil)
	s.BeginBuild(nk("a"))
	s.Complete(nk("a"), key.Value{}, []key.Key{nk("dep")}, nil)

	var dirtied []key.Key
	s.InjectDone(nk("dep"), key.Value{}, func(k key.Key, _ State) { dirtied = append(dirtied, k) })

	if len(dirtied) != 1 || dirtied[0] != nk("a") {
		t.Fatalf("dirtied = %v, want [a]", dirtied)
	}
	depSnap, _ := s.Get(nk("dep"))
	if !depSnap.ViaInject {
		t.Fatalf("ViaInject = false, want true")
	}
}

func TestInvalidateErrors_OnlyTouchesErrorNodes(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("ok"))
	s.Complete(nk("ok"), key.Value{}, nil, nil)
	s.BeginBuild(nk("bad"))
	s.Fail(nk("bad"), errTest)

	s.InvalidateErrors(nil)

	okSnap, _ := s.Get(nk("ok"))
	if okSnap.State != Done {
		t.Fatalf("ok.State = %s, want Done", okSnap.State)
	}
	badSnap, _ := s.Get(nk("bad"))
	if badSnap.State != Dirty {
		t.Fatalf("bad.State = %s, want Dirty", badSnap.State)
	}
}

func TestDelete_RemovesRDepEdgeFromSurvivingDeps(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("dep"))
	s.Complete(nk("dep"), key.Value{}, nil, nil)
	s.BeginBuild(nk("a"))
	s.Complete(nk("a"), key.Value{}, []key.Key{nk("dep")}, nil)

	n := s.Delete(func(k key.Key, _ Snapshot) bool { return k == nk("a") })
	if n != 1 {
		t.Fatalf("Delete returned %d, want 1", n)
	}
	depSnap, _ := s.Get(nk("dep"))
	if len(depSnap.RDeps) != 0 {
		t.Fatalf("dep.RDeps = %v, want none", depSnap.RDeps)
	}
	if _, ok := s.Get(nk("a")); ok {
		t.Fatalf("a still present after Delete")
	}
}

func TestReviveClean_RequiresDirtyOrBuilding(t *testing.T) {
	s := New(KeepEdgesFull)
	s.BeginBuild(nk("a"))
	s.Complete(nk("a"), key.Value{}, nil, nil)
	if err := s.ReviveClean(nk("a")); err == nil {
		t.Fatalf("expected an error reviving a Done node")
	}

	s.MarkDirty(nk("a"), Injected, nil)
	if err := s.ReviveClean(nk("a")); err != nil {
		t.Fatalf("ReviveClean: %v", err)
	}
	snap, _ := s.Get(nk("a"))
	if snap.State != Done {
		t.Fatalf("State = %s, want Done", snap.State)
	}
}
