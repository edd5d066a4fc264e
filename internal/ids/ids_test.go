package ids

import "testing"

func TestNewIsMonotonicAndValid(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if !Valid(next) {
			t.Fatalf("invalid ulid %q", next)
		}
		if next <= prev {
			t.Fatalf("ids not increasing: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	if Valid("not-a-ulid") {
		t.Fatal("expected garbage to be rejected")
	}
}
