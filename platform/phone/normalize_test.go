package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"national mx number", "811 222 3344", "+528112223344"},
		{"already normalized", "+528112223344", "+528112223344"},
		{"with punctuation", "(81) 1222-3344", "+528112223344"},
		{"foreign number with prefix", "+14155552671", "+14155552671"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeE164(tt.input)
			if err != nil {
				t.Fatalf("NormalizeE164(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeE164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeE164_RejectsUnusableInput(t *testing.T) {
	// A failed parse must never leak the raw input back as an identity key.
	for _, input := range []string{"", "   ", "not a phone", "12"} {
		got, err := NormalizeE164(input)
		if err == nil {
			t.Errorf("NormalizeE164(%q) = %q, want error", input, got)
		}
		if got != "" {
			t.Errorf("NormalizeE164(%q) returned %q alongside the error", input, got)
		}
	}
}

func TestIsNormalized(t *testing.T) {
	if !IsNormalized("+528112223344") {
		t.Error("IsNormalized(+528112223344) = false, want true")
	}
	if IsNormalized("8112223344") {
		t.Error("IsNormalized(8112223344) = true, want false")
	}
}
