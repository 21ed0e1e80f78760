package offsetstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingIsZero(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	v, err := s.Load("no-such-log")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v != 0 {
		t.Errorf("v = %d, want 0", v)
	}
}

func TestStoreThenLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store("argon2024", 300); err != nil {
		t.Fatalf("Store: %v", err)
	}
	v, err := s.Load("argon2024")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v != 300 {
		t.Errorf("v = %d, want 300", v)
	}
}

func TestStoreOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store("log", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.Store("log", 612); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "log.offset.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("tmp file should not survive a successful Store, stat err = %v", err)
	}

	v, err := s.Load("log")
	if err != nil {
		t.Fatal(err)
	}
	if v != 612 {
		t.Errorf("v = %d, want 612", v)
	}
}

func TestLoadCorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.offset"), []byte("not-a-number"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Load("bad")
	if !errors.Is(err, ErrOffsetCorrupt) {
		t.Fatalf("err = %v, want ErrOffsetCorrupt", err)
	}
}
