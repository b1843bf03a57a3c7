package channel

import "testing"

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"demo", false},
		{"demo-channel_1", false},
		{"", true},
		{"-leading-dash", true},
		{"has a space", true},
		{"system", true},
		{"ADMIN", true},
		{repeatChar("a", 64), false},
		{repeatChar("a", 65), true},
		{repeatChar("a", 1), false},
	}
	for _, c := range cases {
		err := Validate(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestValidateDeterministic(t *testing.T) {
	name := "same-name"
	first := Validate(name)
	second := Validate(name)
	if (first == nil) != (second == nil) {
		t.Errorf("Validate is not deterministic for %q", name)
	}
}

func repeatChar(s string, n int) string {
	out := make([]byte, 0, n)
	for len(out) < n {
		out = append(out, s...)
	}
	return string(out[:n])
}
