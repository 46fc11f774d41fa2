package orderkey

import (
	"errors"
	"sort"
	"testing"

	"pgregory.net/rapid"
)

func TestBetweenKnownKeys(t *testing.T) {
	cases := []struct {
		lower, upper, want string
	}{
		{"", "", "a0"},
		{"", "a0", "Zz"},
		{"", "Zz", "Zy"},
		{"a0", "", "a1"},
		{"a1", "", "a2"},
		{"a0", "a1", "a0V"},
		{"a1", "a2", "a1V"},
		{"a0V", "a1", "a0l"},
		{"Zz", "a0", "ZzV"},
		{"Zz", "a1", "a0"},
		{"", "Y00", "Xzzz"},
		{"bzz", "", "c000"},
		{"a0", "a0V", "a0G"},
		{"a0", "a0G", "a08"},
		{"b125", "b129", "b127"},
		{"a0", "a1V", "a1"},
		{"Zz", "a01", "a0"},
		{"", "a0V", "a0"},
		{"", "b999", "b99"},
	}
	for _, c := range cases {
		got, err := Between(c.lower, c.upper)
		if err != nil {
			t.Fatalf("Between(%q, %q): %v", c.lower, c.upper, err)
		}
		if got != c.want {
			t.Fatalf("Between(%q, %q) = %q, want %q", c.lower, c.upper, got, c.want)
		}
	}
}

func TestBetweenErrors(t *testing.T) {
	cases := []struct {
		lower, upper string
		want         error
	}{
		{"a0", "a0", ErrInvalidRange},
		{"a1", "a0", ErrInvalidRange},
		{"0", "", ErrInvalidKey},
		{"a00", "", ErrInvalidKey},
		{"", "a0!", ErrInvalidKey},
		{"b1", "", ErrInvalidKey},
		{"A00000000000000000000000000", "", ErrInvalidKey},
	}
	for _, c := range cases {
		_, err := Between(c.lower, c.upper)
		if !errors.Is(err, c.want) {
			t.Fatalf("Between(%q, %q) err = %v, want %v", c.lower, c.upper, err, c.want)
		}
	}
}

func TestRepeatedInsertsBetweenSameNeighbors(t *testing.T) {
	lower, upper := "a0", "a1"
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		k, err := Between(lower, upper)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !(lower < k && k < upper) {
			t.Fatalf("iteration %d: %q not in (%q, %q)", i, k, lower, upper)
		}
		if seen[k] {
			t.Fatalf("iteration %d: key %q reused", i, k)
		}
		seen[k] = true
		upper = k
	}
}

func TestAppendKeepsKeysShort(t *testing.T) {
	k := ""
	for i := 0; i < 1000; i++ {
		next, err := Between(k, "")
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if k != "" && next <= k {
			t.Fatalf("append %d: %q <= %q", i, next, k)
		}
		k = next
	}
	if len(k) > 3 {
		t.Fatalf("1000 appends produced a %d-byte key %q", len(k), k)
	}
}

func TestNKeysBetween(t *testing.T) {
	keys, err := NKeysBetween("", "", 5)
	if err != nil {
		t.Fatalf("n keys: %v", err)
	}
	want := []string{"a0", "a1", "a2", "a3", "a4"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}

	for _, bounds := range [][2]string{{"a0", "a1"}, {"", "a0"}, {"a0", ""}} {
		keys, err := NKeysBetween(bounds[0], bounds[1], 20)
		if err != nil {
			t.Fatalf("n keys %v: %v", bounds, err)
		}
		if len(keys) != 20 {
			t.Fatalf("want 20 keys, got %d", len(keys))
		}
		if !sort.StringsAreSorted(keys) {
			t.Fatalf("keys not sorted: %v", keys)
		}
		for i := 1; i < len(keys); i++ {
			if keys[i-1] == keys[i] {
				t.Fatalf("duplicate key %q", keys[i])
			}
		}
		if bounds[0] != "" && keys[0] <= bounds[0] {
			t.Fatalf("first key %q not above %q", keys[0], bounds[0])
		}
		if bounds[1] != "" && keys[len(keys)-1] >= bounds[1] {
			t.Fatalf("last key %q not below %q", keys[len(keys)-1], bounds[1])
		}
	}
}

// Inserting at random positions of a growing list always yields a key that
// sits strictly between its neighbors and leaves the list sorted and unique.
func TestBetweenProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keys := []string{}
		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			pos := rapid.IntRange(0, len(keys)).Draw(t, "pos")
			lower, upper := "", ""
			if pos > 0 {
				lower = keys[pos-1]
			}
			if pos < len(keys) {
				upper = keys[pos]
			}
			k, err := Between(lower, upper)
			if err != nil {
				t.Fatalf("Between(%q, %q): %v", lower, upper, err)
			}
			if lower != "" && !(lower < k) {
				t.Fatalf("%q not above %q", k, lower)
			}
			if upper != "" && !(k < upper) {
				t.Fatalf("%q not below %q", k, upper)
			}
			if err := Validate(k); err != nil {
				t.Fatalf("generated invalid key %q: %v", k, err)
			}
			keys = append(keys, "")
			copy(keys[pos+1:], keys[pos:])
			keys[pos] = k
		}
		for i := 1; i < len(keys); i++ {
			if keys[i-1] >= keys[i] {
				t.Fatalf("list out of order at %d: %q >= %q", i, keys[i-1], keys[i])
			}
		}
	})
}
