package version

import "testing"

func TestInitialAndIsInitial(t *testing.T) {
	v := Version{Base: "b1", Sub: 42}
	if v.IsInitial() {
		t.Fatal("sub=42 should not be initial")
	}
	init := v.Initial()
	if !init.IsInitial() {
		t.Fatal("Initial() should have sub=0")
	}
	if init.Base != "b1" {
		t.Fatalf("Initial().Base = %q, want b1", init.Base)
	}
}

func TestSerialRoundTrip(t *testing.T) {
	v := Version{Base: "abc123", Sub: 7}
	got, err := ParseVersionSerial(v.Serial())
	if err != nil {
		t.Fatalf("ParseVersionSerial: %v", err)
	}
	if !got.Equal(v) {
		t.Fatalf("round trip = %+v, want %+v", got, v)
	}
}

func TestParseVersionSerialMalformed(t *testing.T) {
	if _, err := ParseVersionSerial("no-separator-here"); err == nil {
		t.Fatal("expected error for serial without unit separator")
	}
	if _, err := ParseVersionSerial("base" + unitSep + "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric sub")
	}
}

func TestRandomSubNeverZero(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if RandomSub() == 0 {
			t.Fatal("RandomSub returned 0")
		}
	}
}

func TestChainStateHasCurrent(t *testing.T) {
	var empty ChainState
	if empty.HasCurrent() {
		t.Fatal("zero-value ChainState should report no current")
	}
	cs := ChainState{Current: Version{Base: "b", Sub: 0}}
	if !cs.HasCurrent() {
		t.Fatal("ChainState with a base should report HasCurrent")
	}
}

func TestChainStateRemoveOutdated(t *testing.T) {
	target := Version{Base: "b", Sub: 5}
	cs := ChainState{Outdated: []Version{
		{Base: "b", Sub: 1},
		target,
		{Base: "b", Sub: 9},
	}}
	remaining, found := cs.RemoveOutdated(target)
	if !found {
		t.Fatal("expected target to be found")
	}
	if len(remaining) != 2 {
		t.Fatalf("len(remaining) = %d, want 2", len(remaining))
	}
	for _, v := range remaining {
		if v.Equal(target) {
			t.Fatal("target still present after removal")
		}
	}

	_, found = cs.RemoveOutdated(Version{Base: "b", Sub: 999})
	if found {
		t.Fatal("expected not-found for a version never in Outdated")
	}
}
