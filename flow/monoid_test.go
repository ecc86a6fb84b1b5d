package flow

import (
	"errors"
	"testing"
)

func TestNumeric(t *testing.T) {
	m := Numeric[int]()

	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := m.Sum(1, 2, 3); got != 6 {
		t.Errorf("Sum = %d, want 6", got)
	}
	if got := m.Sum(); got != 0 {
		t.Errorf("empty Sum = %d, want 0", got)
	}
	if !m.IsZero(0) || m.IsZero(1) {
		t.Error("IsZero wrong")
	}
}

func TestApproxFloat(t *testing.T) {
	m := ApproxFloat(1e-9)

	tests := []struct {
		name string
		a, b float64
		want bool
	}{
		{"equal", 1.5, 1.5, true},
		{"regrouped sum", (0.1 + 0.2) + 0.3, 0.1 + (0.2 + 0.3), true},
		{"large relative", 1e12, 1e12 + 1e-1, true},
		{"different", 1.0, 1.1, false},
		{"near zero", 0, 1e-10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMapUnion(t *testing.T) {
	m := MapUnion[string](Numeric[int]())

	a := map[string]int{"x": 1, "y": 2}
	b := map[string]int{"y": 3, "z": 4}

	got := m.Plus(a, b)
	want := map[string]int{"x": 1, "y": 5, "z": 4}
	if !m.Equal(got, want) {
		t.Errorf("Plus = %v, want %v", got, want)
	}

	if len(a) != 2 || a["y"] != 2 {
		t.Errorf("Plus mutated its input: %v", a)
	}

	t.Run("missing entries equal zero", func(t *testing.T) {
		if !m.Equal(map[string]int{"x": 0}, map[string]int{}) {
			t.Error("explicit zero entry should equal missing entry")
		}
		if m.Equal(map[string]int{"x": 1}, map[string]int{}) {
			t.Error("non-zero entry should not equal missing entry")
		}
	})

	t.Run("zero is identity", func(t *testing.T) {
		if !m.Equal(m.Plus(m.Zero, a), a) {
			t.Error("Plus(Zero, a) should equal a")
		}
	})
}

func TestMonoid_Validate(t *testing.T) {
	tests := []struct {
		name string
		m    Monoid[int]
	}{
		{"missing plus", Monoid[int]{Equiv: func(a, b int) bool { return a == b }}},
		{"missing equiv", Monoid[int]{Plus: func(a, b int) int { return a + b }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			var ferr *Error
			if !errors.As(err, &ferr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if ferr.Code != "INVALID_MONOID" {
				t.Errorf("Code = %q, want INVALID_MONOID", ferr.Code)
			}
		})
	}
}
