package diag

import "testing"

func TestCounterIncGet(t *testing.T) {
	var c Counter_t
	if c.Get() != 0 {
		t.Fatalf("fresh counter = %d, want 0", c.Get())
	}
	c.Inc()
	c.Inc()
	c.Inc()
	if c.Get() != 3 {
		t.Fatalf("after 3 Inc: %d, want 3", c.Get())
	}
}

func TestSnapshotReflectsCounters(t *testing.T) {
	c := &Counters{}
	c.Syscalls.Inc()
	c.Syscalls.Inc()
	c.PageFaults.Inc()

	p := c.Snapshot()
	if len(p.Sample) != 4 {
		t.Fatalf("expected 4 samples (syscalls/page_faults/ctx_switches/signals), got %d", len(p.Sample))
	}
	values := map[string]int64{}
	for _, s := range p.Sample {
		name := s.Location[0].Line[0].Function.Name
		values[name] = s.Value[0]
	}
	if values["syscalls"] != 2 {
		t.Fatalf("syscalls = %d, want 2", values["syscalls"])
	}
	if values["page_faults"] != 1 {
		t.Fatalf("page_faults = %d, want 1", values["page_faults"])
	}
	if values["context_switches"] != 0 || values["signals_delivered"] != 0 {
		t.Fatal("untouched counters should snapshot as 0")
	}
}

func TestSymbolForFindsNearestBelow(t *testing.T) {
	syms := []Symbol{
		{Name: "a_func", Value: 0x1000},
		{Name: "b_func", Value: 0x2000},
		{Name: "c_func", Value: 0x3000},
	}
	if got := symbolFor(syms, 0x2500); got != "b_func" {
		t.Fatalf("symbolFor(0x2500) = %q, want b_func", got)
	}
	if got := symbolFor(syms, 0x0500); got != "?" {
		t.Fatalf("symbolFor before first symbol = %q, want ?", got)
	}
	if got := symbolFor(nil, 0x1234); got != "?" {
		t.Fatalf("symbolFor with no symbols = %q, want ?", got)
	}
}
