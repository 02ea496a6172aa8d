package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestIsDirAndPathExists(t *testing.T) {
	d := t.TempDir()
	f := filepath.Join(d, "w.safetensors")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !IsDir(d) || IsDir(f) {
		t.Fatalf("IsDir mismatch")
	}
	if !PathExists(f) {
		t.Fatalf("expected %s to exist", f)
	}
	if PathExists(filepath.Join(d, "missing")) || IsDir(filepath.Join(d, "missing")) {
		t.Fatalf("missing path reported as present")
	}
}

func TestResolveUnder(t *testing.T) {
	base := t.TempDir()
	if got, _ := ResolveUnder(base, "style.safetensors"); got != filepath.Join(base, "style.safetensors") {
		t.Fatalf("relative: got %q", got)
	}
	abs := filepath.Join(base, "abs.safetensors")
	if got, _ := ResolveUnder("/elsewhere", abs); got != abs {
		t.Fatalf("absolute: got %q", got)
	}
	if got, _ := ResolveUnder("", "x"); got != "x" {
		t.Fatalf("empty base: got %q", got)
	}
}
