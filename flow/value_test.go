package flow

import "testing"

func TestOption(t *testing.T) {
	some := Some(7)
	if v, ok := some.Get(); !ok || v != 7 {
		t.Errorf("Some(7).Get() = %v, %v", v, ok)
	}
	if got := some.OrElse(0); got != 7 {
		t.Errorf("OrElse = %d, want 7", got)
	}

	none := None[int]()
	if _, ok := none.Get(); ok {
		t.Error("None should not be valid")
	}
	if got := none.OrElse(3); got != 3 {
		t.Errorf("OrElse = %d, want 3", got)
	}
	if none != (Option[int]{}) {
		t.Error("None should be the zero Option")
	}
}

func TestStringers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"pair", KV(1, "a").String(), "(1, a)"},
		{"some", Some("u").String(), "Some(u)"},
		{"none", None[string]().String(), "None"},
		{"joined", Joined[string, int]{Value: "u", Joined: None[int]()}.String(), "(u, None)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
