package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalPathResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	fromLink, err := CanonicalPath(link)
	if err != nil {
		t.Fatalf("canonicalize link: %v", err)
	}
	fromTarget, err := CanonicalPath(target)
	if err != nil {
		t.Fatalf("canonicalize target: %v", err)
	}
	if fromLink != fromTarget {
		t.Fatalf("expected %q and %q to canonicalize equally", fromLink, fromTarget)
	}
}

func TestCanonicalPathRejectsEmpty(t *testing.T) {
	if _, err := CanonicalPath(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCanonicalPathRejectsMissing(t *testing.T) {
	if _, err := CanonicalPath(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestWithin(t *testing.T) {
	cases := []struct {
		name   string
		parent string
		child  string
		want   bool
	}{
		{"same path", "/watch/root", "/watch/root", true},
		{"direct child", "/watch/root", "/watch/root/file", true},
		{"nested child", "/watch/root", "/watch/root/a/b/c", true},
		{"sibling", "/watch/root", "/watch/other", false},
		{"prefix but not dir", "/watch/root", "/watch/rootish/file", false},
		{"parent of parent", "/watch/root", "/watch", false},
		{"unclean child", "/watch/root", "/watch/root/a/../b", true},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := Within(testCase.parent, testCase.child); got != testCase.want {
				t.Fatalf("Within(%q, %q) = %t, want %t", testCase.parent, testCase.child, got, testCase.want)
			}
		})
	}
}
