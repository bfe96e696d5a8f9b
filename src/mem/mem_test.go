package mem

import "testing"

func freshPool(n int) *Physmem_t {
	p := &Physmem_t{}
	p.Init(0, n)
	return p
}

func TestPopPushConservation(t *testing.T) {
	p := freshPool(16)
	if p.Free() != 16 {
		t.Fatalf("expected 16 free, got %d", p.Free())
	}
	pa, ok := p.Pop()
	if !ok {
		t.Fatal("pop failed on fresh pool")
	}
	if p.Free() != 15 {
		t.Fatalf("expected 15 free after pop, got %d", p.Free())
	}
	p.Push(pa)
	if p.Free() != 16 {
		t.Fatalf("expected 16 free after push, got %d", p.Free())
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := freshPool(2)
	var got []Pa_t
	for i := 0; i < 2; i++ {
		pa, ok := p.Pop()
		if !ok {
			t.Fatal("unexpected exhaustion")
		}
		got = append(got, pa)
	}
	if _, ok := p.Pop(); ok {
		t.Fatal("expected exhaustion")
	}
	for _, pa := range got {
		p.Push(pa)
	}
}

func TestRefcounting(t *testing.T) {
	p := freshPool(4)
	pa, _ := p.Pop()
	p.Refup(pa)
	p.Refup(pa)
	if p.Refcnt(pa) != 2 {
		t.Fatalf("expected refcnt 2, got %d", p.Refcnt(pa))
	}
	if p.Refdown(pa) {
		t.Fatal("should not reach zero yet")
	}
	if !p.Refdown(pa) {
		t.Fatal("should reach zero now")
	}
	p.Push(pa)
}

func TestPushWhileReferencedPanics(t *testing.T) {
	p := freshPool(4)
	pa, _ := p.Pop()
	p.Refup(pa)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic pushing a referenced frame")
		}
	}()
	p.Push(pa)
}

func TestPdxPtx(t *testing.T) {
	va := uint32(0x08048123)
	if PageBase(va) != 0x08048000 {
		t.Fatalf("bad page base: %#x", PageBase(va))
	}
	pdx, ptx := Pdx(va), Ptx(va)
	if pdx != int(va>>22) {
		t.Fatalf("bad pdx %d", pdx)
	}
	if ptx < 0 || ptx >= NPTENTRY {
		t.Fatalf("bad ptx %d", ptx)
	}
}
