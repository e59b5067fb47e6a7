// Copyright 2024-2026 Aiku AI

package trigger

import (
	"math"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"", "abc", 0},
		{"abc", "", 0},
		{"hi", "hi", 1},
		{"Hi", "hI", 1},
		{"hii", "hi", 2.0 / 3.0},
		{"kitten", "sitting", 4.0 / 7.0},
		{"abc", "xyz", 0},
		{"café", "cafe", 0.75},
		{"ÉTÉ", "été", 1},
	}
	for _, tt := range tests {
		got := Levenshtein(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Levenshtein(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshteinSymmetricAndBounded(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"good morning", "good mornin"},
		{"hello there", "hell there"},
		{"a", "ab"},
		{"日本語", "日本"},
	}
	for _, p := range pairs {
		ab, ba := Levenshtein(p[0], p[1]), Levenshtein(p[1], p[0])
		if ab != ba {
			t.Errorf("not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Errorf("score out of range for %q/%q: %v", p[0], p[1], ab)
		}
	}
}

func TestDefaultRegistryUsesLevenshtein(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Similar("good morning", 0.9).Reply("morning!")

	if got := reg.Match("Good Mornin"); len(got) != 1 {
		t.Errorf("expected case-insensitive fuzzy match, got %d", len(got))
	}
	if got := reg.Match("good night"); len(got) != 0 {
		t.Errorf("expected no match for distant input, got %d", len(got))
	}
}

func FuzzLevenshtein(f *testing.F) {
	f.Add("hi", "hii")
	f.Add("", "")
	f.Add("ÉTÉ", "ete")
	f.Add(string([]byte{0xff}), "x")

	f.Fuzz(func(t *testing.T, a, b string) {
		score := Levenshtein(a, b)
		if score < 0 || score > 1 || math.IsNaN(score) {
			t.Errorf("Levenshtein(%q, %q) = %v out of [0,1]", a, b, score)
		}
		if Levenshtein(a, a) != 1 {
			t.Errorf("Levenshtein(%q, %q) should be 1", a, a)
		}
	})
}
