package textclean

import (
	"reflect"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SURESH SHARMA", "Suresh Sharma"},
		{"  anil   sharma 1234 ", "Anil Sharma"},
		{": Ramesh Kumar,", "Ramesh Kumar"},
		{"a. k. sharma", "A. K. Sharma"},
		{"1234 5678", ""},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("Government of India\r\n\n  To \nAnil Sharma\n\n")
	want := []string{"Government of India", "To", "Anil Sharma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines() = %#v, want %#v", got, want)
	}
	if got := SplitLines(""); len(got) != 0 {
		t.Errorf("SplitLines(\"\") = %#v, want empty", got)
	}
}

func TestLatinWordsAndCount(t *testing.T) {
	if got := LatinWords("S/O: Suresh_Sharma 42"); got != "S O Suresh Sharma" {
		t.Errorf("LatinWords() = %q", got)
	}
	if got := AlphaWordCount("Anil Sharma"); got != 2 {
		t.Errorf("AlphaWordCount() = %d, want 2", got)
	}
	if got := AlphaWordCount("12/04/1988"); got != 0 {
		t.Errorf("AlphaWordCount() = %d, want 0", got)
	}
}

func TestCleanLine(t *testing.T) {
	if got := CleanLine("DOB: 12/04/1988"); got != "DOB:" {
		t.Errorf("CleanLine() = %q, want %q", got, "DOB:")
	}
	if got := CleanLine("  Suresh Sharma!! "); got != "Suresh Sharma" {
		t.Errorf("CleanLine() = %q", got)
	}
}

func TestHasMaskedRun(t *testing.T) {
	if !HasMaskedRun("XXXX XXXX 4821") {
		t.Error("expected masked run")
	}
	if HasMaskedRun("Alex Xu") {
		t.Error("single x is not a masked run")
	}
}
