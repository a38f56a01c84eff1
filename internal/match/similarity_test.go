package match

import "testing"

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "react", "Senior React Developer"} {
		if got := Similarity(s, s); got != 100 {
			t.Errorf("Similarity(%q, %q) = %d, want 100", s, s, got)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"react", "redux"},
		{"developer", "develop"},
		{"", "abc"},
		{"kitten", "sitting"},
	}
	for _, p := range pairs {
		ab, ba := Similarity(p[0], p[1]), Similarity(p[1], p[0])
		if ab != ba {
			t.Errorf("Similarity(%q,%q)=%d != Similarity(%q,%q)=%d", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestSimilarity_Values(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 57}, // 3 edits over 7 -> 57.1 rounded
		{"abc", "", 0},
		{"golang", "goleng", 83}, // 1 edit over 6 -> 83.3 rounded
		{"abcd", "abce", 75},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity_Range(t *testing.T) {
	samples := []string{"", "a", "zz", "requirement", "completely unrelated text block"}
	for _, a := range samples {
		for _, b := range samples {
			got := Similarity(a, b)
			if got < 0 || got > 100 {
				t.Errorf("Similarity(%q, %q) = %d, out of [0,100]", a, b, got)
			}
		}
	}
}
