package todo

import "testing"

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusPending, true},
		{StatusCompleted, StatusActive, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusPending, StatusPending, false},
		{StatusActive, StatusActive, false},
		{StatusCompleted, StatusCompleted, false},
		{Status("archived"), StatusActive, false},
		{StatusActive, Status(""), false},
	}
	for _, c := range cases {
		if got := IsValidTransition(c.from, c.to); got != c.want {
			t.Fatalf("IsValidTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "active", "completed"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
