package seq_test

import (
	"testing"

	"github.com/tactus-audio/tactus/seq"
)

func TestRefreshStatusStartsFullyDirty(t *testing.T) {
	r := seq.NewRefreshStatus()
	if !r.NeedsRefresh() || !r.NeedsFullRefresh() {
		t.Errorf("a fresh status should need a full refresh")
	}
}

func TestRefreshStatusCoalesces(t *testing.T) {
	var r seq.RefreshStatus
	r.Push(0, 10)
	r.Push(5, 20)
	if !r.NeedsRefresh() || r.NeedsFullRefresh() {
		t.Fatalf("two partial pushes should leave a partial dirty range")
	}
	from, to := r.Range()
	if from > 0 || to < 20 {
		t.Errorf("coalesced range [%d, %d) does not cover [0, 20)", from, to)
	}
}

func TestRefreshStatusEqualBoundsMeanEverything(t *testing.T) {
	var r seq.RefreshStatus
	r.Push(42, 42)
	if !r.NeedsFullRefresh() {
		t.Errorf("equal bounds should mean a full refresh")
	}
}

func TestRefreshStatusReversedBounds(t *testing.T) {
	var r seq.RefreshStatus
	r.Push(20, 10)
	from, to := r.Range()
	if from != 10 || to != 20 {
		t.Errorf("reversed bounds should be swapped, got [%d, %d)", from, to)
	}
}

func TestRefreshStatusFullAbsorbsPartial(t *testing.T) {
	var r seq.RefreshStatus
	r.PushAll()
	r.Push(5, 10)
	if !r.NeedsFullRefresh() {
		t.Errorf("a partial push must not downgrade a full refresh")
	}
}

func TestRefreshStatusClear(t *testing.T) {
	r := seq.NewRefreshStatus()
	r.Clear()
	if r.NeedsRefresh() {
		t.Errorf("cleared status should be clean")
	}
	r.Push(0, 10)
	if !r.NeedsRefresh() {
		t.Errorf("push after clear should dirty the status again")
	}
}
