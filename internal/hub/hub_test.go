package hub

import "testing"

type testWriter struct {
	writes int
	fail   bool
}

func (w *testWriter) Write(message []byte) error {
	w.writes++
	if w.fail {
		return errTest
	}
	return nil
}

func (w *testWriter) Close() error { return nil }

var errTest = &testErr{}

type testErr struct{}

func (*testErr) Error() string { return "test" }

func TestHub_AccountScope(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	c1 := &Connection{AccountID: "a", Writer: w1}

	h.Register(c1)
	h.BroadcastAccount("a", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected 1 write, got %d", w1.writes)
	}

	// Machine-scoped traffic must not reach a user-scoped connection.
	h.BroadcastMachine("a", "m1", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected no machine-scoped write, got %d", w1.writes)
	}

	h.Unregister(c1)
	h.BroadcastAccount("a", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected no more writes, got %d", w1.writes)
	}
}

func TestHub_MachineScope(t *testing.T) {
	h := New()
	w1 := &testWriter{}
	c1 := &Connection{AccountID: "a", MachineID: "m1", Writer: w1}
	h.Register(c1)

	h.BroadcastMachine("a", "m1", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected 1 write, got %d", w1.writes)
	}

	h.BroadcastMachine("a", "m2", []byte("x"))
	h.BroadcastAccount("a", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected only machine-scoped writes, got %d", w1.writes)
	}
}

func TestHub_RemovesFailedConnections(t *testing.T) {
	h := New()
	w1 := &testWriter{fail: true}
	c1 := &Connection{AccountID: "a", Writer: w1}
	h.Register(c1)

	h.BroadcastAccount("a", []byte("x"))
	h.BroadcastAccount("a", []byte("x"))
	if w1.writes != 1 {
		t.Fatalf("expected only 1 write before removal, got %d", w1.writes)
	}
}
