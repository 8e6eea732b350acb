package votes

import (
	"math/rand"
	"testing"
	"time"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

var t0 = time.Unix(1000, 0)

func TestLedger_AddReplacesPreviousVote(t *testing.T) {
	l := New(domain.DefaultUclampRange)
	for i := 0; i < 50; i++ {
		l.Add(domain.VoteCPULoadUp, domain.UclampRange{Min: i, Max: 1024},
			t0.Add(time.Duration(i)*time.Millisecond), time.Duration(i+1)*time.Millisecond)
	}
	all := l.Votes()
	if len(all) != 1 {
		t.Fatalf("ledger holds %d votes, want 1", len(all))
	}
	v := all[domain.VoteCPULoadUp]
	if v.Range.Min != 49 || v.Duration != 50*time.Millisecond || !v.Start.Equal(t0.Add(49*time.Millisecond)) {
		t.Errorf("vote = %+v, want the last submission", v)
	}
	if got := l.VoteTimeout(domain.VoteCPULoadUp); !got.Equal(t0.Add(99 * time.Millisecond)) {
		t.Errorf("VoteTimeout = %v", got)
	}
}

func TestLedger_UclampRangeFolding(t *testing.T) {
	l := New(domain.UclampRange{Min: 0, Max: 1024})

	if r, ok := l.UclampRange(t0); ok || r != (domain.UclampRange{Min: 0, Max: 1024}) {
		t.Errorf("empty ledger = %v, %v; want default", r, ok)
	}

	l.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 162, Max: 700}, t0, time.Second)
	l.Add(domain.VoteCPULoadUp, domain.UclampRange{Min: 480, Max: 600}, t0, 50*time.Millisecond)
	l.AddGpu(domain.VoteGPUCapacity, 9999, t0, time.Second)

	r, ok := l.UclampRange(t0.Add(10 * time.Millisecond))
	if !ok || r != (domain.UclampRange{Min: 480, Max: 700}) {
		t.Errorf("range = %v, %v; want [480,700]", r, ok)
	}

	// Load-up vote window ended; only the default vote remains.
	r, _ = l.UclampRange(t0.Add(50 * time.Millisecond))
	if r != (domain.UclampRange{Min: 162, Max: 700}) {
		t.Errorf("range after load-up expiry = %v, want [162,700]", r)
	}

	l.SetUseVote(domain.VoteCPUDefault, false)
	if _, ok := l.UclampRange(t0.Add(10 * time.Millisecond)); !ok {
		t.Error("load-up vote should still be live")
	}
	l.SetUseVote(domain.VoteCPULoadUp, false)
	if _, ok := l.UclampRange(t0.Add(10 * time.Millisecond)); ok {
		t.Error("no CPU vote should be live")
	}
}

func TestLedger_WindowBounds(t *testing.T) {
	l := New(domain.DefaultUclampRange)
	l.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 100, Max: 1024}, t0, 10*time.Millisecond)

	tests := []struct {
		at   time.Time
		live bool
	}{
		{t0.Add(-time.Nanosecond), false},
		{t0, true},
		{t0.Add(10*time.Millisecond - time.Nanosecond), true},
		{t0.Add(10 * time.Millisecond), false},
	}
	for _, tt := range tests {
		if _, ok := l.UclampRange(tt.at); ok != tt.live {
			t.Errorf("live at %v = %v, want %v", tt.at.Sub(t0), ok, tt.live)
		}
	}
}

func TestLedger_GpuCapacity(t *testing.T) {
	l := New(domain.DefaultUclampRange)
	if _, ok := l.GpuCapacity(t0); ok {
		t.Error("empty ledger should have no gpu capacity")
	}
	l.AddGpu(domain.VoteGPUCapacity, 1200, t0, time.Second)
	l.AddGpu(domain.VoteGPULoadUp, 3000, t0, 20*time.Millisecond)

	if c, _ := l.GpuCapacity(t0.Add(time.Millisecond)); c != 3000 {
		t.Errorf("capacity = %d, want 3000", c)
	}
	if c, _ := l.GpuCapacity(t0.Add(30 * time.Millisecond)); c != 1200 {
		t.Errorf("capacity after load-up expiry = %d, want 1200", c)
	}
}

func TestLedger_UpdateDurationKeepsStart(t *testing.T) {
	l := New(domain.DefaultUclampRange)
	l.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 1, Max: 2}, t0, time.Millisecond)
	l.UpdateDuration(domain.VoteCPUDefault, time.Second)
	v, ok := l.Get(domain.VoteCPUDefault)
	if !ok || !v.Start.Equal(t0) || v.Duration != time.Second || !v.Active {
		t.Errorf("vote = %+v", v)
	}

	// Unknown slots are ignored.
	l.UpdateDuration(domain.VoteCPULoadResume, time.Second)
	if _, ok := l.Get(domain.VoteCPULoadResume); ok {
		t.Error("UpdateDuration must not create votes")
	}
}

func TestLedger_DisableAll(t *testing.T) {
	l := New(domain.DefaultUclampRange)
	l.Add(domain.VoteCPUDefault, domain.UclampRange{Min: 1, Max: 2}, t0, time.Second)
	l.AddGpu(domain.VoteGPUCapacity, 10, t0, time.Second)
	l.DisableAll()
	if l.AnyLive(t0) {
		t.Error("DisableAll left a live vote")
	}
	if l.VoteIsActive(domain.VoteCPUDefault) || l.VoteIsActive(domain.VoteGPUCapacity) {
		t.Error("votes should be inactive")
	}
}

// Adding a live CPU vote never lowers the folded floor or ceiling.
func TestLedger_AggregationMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		l := New(domain.DefaultUclampRange)
		l.Add(domain.VoteCPUDefault, domain.UclampRange{Min: rng.Intn(1025), Max: rng.Intn(1025)}, t0, time.Second)
		for _, kind := range []domain.VoteKind{domain.VoteCPULoadUp, domain.VoteCPULoadReset, domain.VoteCPULoadResume} {
			before, _ := l.UclampRange(t0)
			l.Add(kind, domain.UclampRange{Min: rng.Intn(1025), Max: rng.Intn(1025)}, t0, time.Second)
			after, _ := l.UclampRange(t0)
			if after.Min < before.Min || after.Max < before.Max {
				t.Fatalf("round %d: %v -> %v after adding %s", round, before, after, kind)
			}
		}
	}
}
