package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/listsync" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected ./data fallback, got %s", got)
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	got := DefaultDataDir()
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("want absolute or ./ path, got %s", got)
	}
	if base := strings.ToLower(filepath.Base(got)); base != "listsync" && base != ".listsync" && base != "data" {
		t.Fatalf("unexpected data dir %s", got)
	}
	if DefaultDataDir() != got {
		t.Fatalf("not stable across calls")
	}
}

func TestIsDir(t *testing.T) {
	cases := map[string]bool{
		".":                      true,
		"/non/existent/listsync": false,
		os.Args[0]:               false,
	}
	for path, want := range cases {
		if got := isDir(path); got != want {
			t.Errorf("isDir(%s) = %v, want %v", path, got, want)
		}
	}
}
