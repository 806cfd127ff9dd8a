package utils

import "testing"

func TestRandomStringGeneratorIsSeeded(t *testing.T) {
	a := CreateRandomstringGenerator(42)
	b := CreateRandomstringGenerator(42)
	for i := 0; i < 10; i++ {
		sa, sb := a.GetRandomString(6), b.GetRandomString(6)
		if len(sa) != 6 || sa != sb {
			t.Fatalf("same seed diverged: %q vs %q", sa, sb)
		}
	}
}

func TestContains(t *testing.T) {
	hosts := []string{"https://a.example", "https://b.example"}
	if !Contains("https://b.example", hosts) || Contains("https://c.example", hosts) || Contains("", nil) {
		t.Fatalf("Contains gave wrong answer")
	}
}
