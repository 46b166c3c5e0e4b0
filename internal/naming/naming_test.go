package naming

import "testing"

func TestLineName_RoundTrip(t *testing.T) {
	name := LineName(7)
	if name != "Line 7" {
		t.Fatalf("expected Line 7, got %q", name)
	}
	n, ok := ParseLineNumber(name)
	if !ok || n != 7 {
		t.Fatalf("expected 7, got %d ok=%v", n, ok)
	}
	if _, ok := ParseLineNumber("Feeder 2"); ok {
		t.Fatalf("expected custom name not to parse")
	}
	if _, ok := ParseLineNumber("Line 0"); ok {
		t.Fatalf("expected zero not to parse")
	}
}

func TestNormalizeName(t *testing.T) {
	got, ok := NormalizeName("  Main\t feeder \n north ")
	if !ok {
		t.Fatalf("expected ok")
	}
	if got != "Main feeder north" {
		t.Fatalf("expected collapsed whitespace, got %q", got)
	}
	if _, ok := NormalizeName(" \t\n"); ok {
		t.Fatalf("expected blank name to be rejected")
	}
	if got, _ := NormalizeName("a\x00b"); got != "ab" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
}

func TestValidWorkspaceID(t *testing.T) {
	if !ValidWorkspaceID("browser-01_a") {
		t.Fatalf("expected valid id")
	}
	for _, bad := range []string{"", "a/b", "has space", "dots.not.allowed"} {
		if ValidWorkspaceID(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestNormalizeColor(t *testing.T) {
	if c, ok := NormalizeColor(" #FF0000 "); !ok || c != "#ff0000" {
		t.Fatalf("expected #ff0000, got %q ok=%v", c, ok)
	}
	if _, ok := NormalizeColor("red"); ok {
		t.Fatalf("expected named color to be rejected")
	}
}
