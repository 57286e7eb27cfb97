package peertable

import (
	"testing"
	"time"
)

func TestUpsertReportsNewlyCreated(t *testing.T) {
	tbl := New()
	now := time.Now()

	if created := tbl.Upsert("10.0.0.1", "alice", 9876, now); !created {
		t.Fatalf("first upsert should report newly created")
	}
	if created := tbl.Upsert("10.0.0.1", "alice", 9876, now.Add(time.Second)); created {
		t.Fatalf("second upsert of same IP should not report newly created")
	}
}

func TestAgeRemovesStalePeersOnly(t *testing.T) {
	tbl := New()
	base := time.Now()

	tbl.Upsert("10.0.0.1", "alice", 9876, base)
	tbl.Upsert("10.0.0.2", "bob", 9876, base.Add(9*time.Second))

	aged := tbl.Age(base.Add(10*time.Second), 5*time.Second)
	if len(aged) != 1 || aged[0].IP != "10.0.0.1" {
		t.Fatalf("expected only alice aged out, got %+v", aged)
	}
	if _, ok := tbl.Lookup("10.0.0.2"); !ok {
		t.Fatalf("bob should still be present")
	}
	if _, ok := tbl.Lookup("10.0.0.1"); ok {
		t.Fatalf("alice should have been removed")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	tbl := New()
	tbl.Upsert("10.0.0.1", "alice", 9876, time.Now())

	snap := tbl.Snapshot()
	delete(snap, "10.0.0.1")

	if tbl.Len() != 1 {
		t.Fatalf("mutating the snapshot must not affect the table")
	}
}

func TestRemoveIsUnconditional(t *testing.T) {
	tbl := New()
	tbl.Upsert("10.0.0.1", "alice", 9876, time.Now())
	tbl.Remove("10.0.0.1")
	if tbl.Len() != 0 {
		t.Fatalf("expected peer removed")
	}
	// Removing a peer that doesn't exist must not panic.
	tbl.Remove("10.0.0.9")
}

func TestDialAddressJoinsIPAndStreamPort(t *testing.T) {
	tbl := New()
	tbl.Upsert("10.0.0.1", "alice", 9876, time.Now())
	rec, ok := tbl.Lookup("10.0.0.1")
	if !ok {
		t.Fatalf("expected alice to be present")
	}
	if got := rec.DialAddress(); got != "10.0.0.1:9876" {
		t.Fatalf("unexpected dial address: %q", got)
	}
}
