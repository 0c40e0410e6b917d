package offsets

import "testing"

const podNote = "Incision site has scant serous fluid on POD 5. No purulence."

func TestLocate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		claimed string
		span    Span
		want    Span
		wantOK  bool
	}{
		{"exact slice", podNote, "scant serous fluid", Span{18, 36}, Span{18, 36}, true},
		{"wrong offsets recovered", podNote, "scant serous fluid", Span{0, 0}, Span{18, 36}, true},
		{"out of range recovered", podNote, "No purulence", Span{40, 400}, Span{47, 59}, true},
		{"case-insensitive fallback", podNote, "SCANT SEROUS FLUID", Span{0, 5}, Span{18, 36}, true},
		{"earliest of several", "fever, then fever again", "fever", Span{3, 1}, Span{0, 5}, true},
		{"absent", podNote, "purulent discharge", Span{0, 0}, Span{}, false},
		{"empty claim", podNote, "", Span{0, 0}, Span{}, false},
		{"negative start", podNote, "POD 5", Span{-1, 4}, Span{40, 45}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Locate(tt.text, tt.claimed, tt.span)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Locate(%q) = (%v, %v), want (%v, %v)", tt.claimed, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLocate_CodePointOffsets(t *testing.T) {
	text := "Temp 38.5°C, pt dénies chills"
	got, ok := Locate(text, "dénies chills", Span{0, 0})
	if !ok {
		t.Fatal("Locate failed on non-ASCII text")
	}
	if got != (Span{16, 29}) {
		t.Errorf("Locate = %v, want [16 29]", got)
	}
}

func TestLocate_RoundTrip(t *testing.T) {
	texts := []string{podNote, "Pt dénies fever. Denies chills. DENIES rigors."}
	claims := []string{"scant", "fluid on POD", "denies chills", "rigors", "Pt", "."}
	for _, text := range texts {
		for _, c := range claims {
			span, ok := Locate(text, c, Span{0, 0})
			if !ok {
				continue
			}
			got, _ := Slice(text, span)
			if got != c && !equalFold(got, c) {
				t.Errorf("Slice(Locate(%q)) = %q", c, got)
			}
		}
	}
}

func TestSlice_OutOfRange(t *testing.T) {
	if _, ok := Slice("abc", Span{2, 5}); ok {
		t.Error("Slice should reject end past text")
	}
	if s, ok := Slice("abc", Span{1, 3}); !ok || s != "bc" {
		t.Errorf("Slice = (%q, %v), want (bc, true)", s, ok)
	}
}

func TestSpanAccessors(t *testing.T) {
	s := Span{4, 9}
	if s.Start() != 4 || s.End() != 9 || s.Len() != 5 {
		t.Errorf("accessors = %d %d %d", s.Start(), s.End(), s.Len())
	}
	if RuneLen("dénies") != 6 {
		t.Errorf("RuneLen = %d, want 6", RuneLen("dénies"))
	}
}

func equalFold(a, b string) bool {
	return string(foldRunes([]rune(a))) == string(foldRunes([]rune(b)))
}
