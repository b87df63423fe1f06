package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	if !strings.HasPrefix(got, Version+" (") {
		t.Errorf("String() = %q, want prefix %q", got, Version+" (")
	}
}

func TestAttr(t *testing.T) {
	a := Attr()
	if a.Key != "build" {
		t.Errorf("Attr().Key = %q, want %q", a.Key, "build")
	}
	if n := len(a.Value.Group()); n != 3 {
		t.Errorf("Attr() group has %d attrs, want 3", n)
	}
}
