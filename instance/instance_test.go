package instance

import "testing"

func TestTakeRelease(t *testing.T) {
	u, err := TakeUART(2)
	if err != nil {
		t.Fatal(err)
	}
	if u.Instance() != 2 {
		t.Errorf("instance = %d, want 2", u.Instance())
	}
	if u.Regs == nil {
		t.Fatal("nil register block")
	}
	if _, err := TakeUART(2); err != ErrTaken {
		t.Errorf("second take: got %v, want ErrTaken", err)
	}
	// A different instance of the same kind is unaffected.
	u3, err := TakeUART(3)
	if err != nil {
		t.Fatal(err)
	}
	u3.Release()
	u.Release()
	u, err = TakeUART(2)
	if err != nil {
		t.Fatalf("take after release: %v", err)
	}
	u.Release()
}

func TestTakeOutOfRange(t *testing.T) {
	if _, err := TakeUART(0); err == nil {
		t.Error("UART 0: expected error")
	}
	if _, err := TakeUART(9); err == nil {
		t.Error("UART 9: expected error")
	}
	if _, err := TakeGPT(3); err == nil {
		t.Error("GPT 3: expected error")
	}
}

func TestSingletons(t *testing.T) {
	d, err := TakeDMA()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TakeDMA(); err != ErrTaken {
		t.Errorf("got %v, want ErrTaken", err)
	}
	d.Release()
	d, err = TakeDMA()
	if err != nil {
		t.Fatal(err)
	}
	d.Release()
}

func TestReleaseUnclaimedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	UART{n: 5}.Release()
}
