package errcode

import (
	"errors"
	"testing"
)

func TestOf(t *testing.T) {
	cause := errors.New("nack")
	cases := []struct {
		err  error
		want Code
	}{
		{nil, OK},
		{BusStuck, BusStuck},
		{Wrap(Transport, "isl94208.read", cause), Transport},
		{cause, Error},
	}
	for _, c := range cases {
		if got := Of(c.err); got != c.want {
			t.Fatalf("Of(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("nack")
	err := Wrap(Transport, "isl94208.write", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its cause")
	}
	if got := err.Error(); got != "isl94208.write: transport: nack" {
		t.Fatalf("Error() = %q", got)
	}
	if Wrap(Transport, "op", nil) != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
}
