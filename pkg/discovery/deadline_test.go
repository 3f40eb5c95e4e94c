package discovery

import (
	"testing"
	"time"
)

func direct(fn func()) error {
	fn()
	return nil
}

func TestDeadlineTimerFires(t *testing.T) {
	timer := NewDeadlineTimer(direct)

	fired := make(chan uint64, 1)
	gen := timer.Arm(20*time.Millisecond, func(g uint64) { fired <- g })
	if !timer.Active(gen) {
		t.Fatal("armed generation not active")
	}

	select {
	case g := <-fired:
		if g != gen {
			t.Errorf("fired with gen %d, want %d", g, gen)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestDeadlineTimerCancel(t *testing.T) {
	timer := NewDeadlineTimer(direct)

	fired := make(chan struct{}, 1)
	gen := timer.Arm(20*time.Millisecond, func(uint64) { fired <- struct{}{} })
	timer.Cancel()
	timer.Cancel()

	if timer.Active(gen) {
		t.Error("cancelled generation still active")
	}
	select {
	case <-fired:
		t.Error("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeadlineTimerRearmSupersedes(t *testing.T) {
	timer := NewDeadlineTimer(direct)

	fired := make(chan uint64, 2)
	first := timer.Arm(20*time.Millisecond, func(g uint64) { fired <- g })
	second := timer.Arm(80*time.Millisecond, func(g uint64) { fired <- g })

	if first == second {
		t.Fatal("re-arm reused the generation")
	}
	if timer.Active(first) {
		t.Error("superseded generation still active")
	}

	select {
	case g := <-fired:
		if g != second {
			t.Errorf("fired with gen %d, want %d", g, second)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case g := <-fired:
		t.Errorf("extra fire with gen %d", g)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeadlineTimerRoutesThroughDeliver(t *testing.T) {
	routed := make(chan func(), 1)
	timer := NewDeadlineTimer(func(fn func()) error {
		routed <- fn
		return nil
	})

	ran := false
	timer.Arm(10*time.Millisecond, func(uint64) { ran = true })

	select {
	case fn := <-routed:
		if ran {
			t.Fatal("callback ran before delivery")
		}
		fn()
		if !ran {
			t.Error("callback did not run")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing delivered")
	}
}

func TestStateAndEventStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StateIdle.String(), "IDLE"},
		{StatePublishing.String(), "PUBLISHING"},
		{StateResolving.String(), "RESOLVING"},
		{StateAddressLookup.String(), "ADDRESS_LOOKUP"},
		{State(42).String(), "UNKNOWN"},
		{EventPublished.String(), "PUBLISHED"},
		{EventNotPublished.String(), "NOT_PUBLISHED"},
		{EventResolved.String(), "RESOLVED"},
		{EventNotResolved.String(), "NOT_RESOLVED"},
		{EventTXTUpdated.String(), "TXT_UPDATED"},
		{EventType(42).String(), "UNKNOWN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTXTHelpers(t *testing.T) {
	b, err := EncodeTXTMap(map[string]string{"b": "2", "a": "1"})
	if err != nil {
		t.Fatalf("EncodeTXTMap: %v", err)
	}
	want := []byte{3, 'a', '=', '1', 3, 'b', '=', '2'}
	if string(b) != string(want) {
		t.Errorf("EncodeTXTMap = %v, want %v", b, want)
	}

	rec, err := DecodeTXT(b)
	if err != nil {
		t.Fatalf("DecodeTXT: %v", err)
	}
	again, err := EncodeTXT(rec)
	if err != nil {
		t.Fatalf("EncodeTXT: %v", err)
	}
	if string(again) != string(b) {
		t.Errorf("EncodeTXT(DecodeTXT(b)) = %v, want %v", again, b)
	}
}
