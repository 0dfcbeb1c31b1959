package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCopyDirMergeDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()

	srcdir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcdir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(srcdir, "a"), []byte("from-src"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(srcdir, "b"), []byte("from-src-b"), 0o644); err != nil {
		t.Fatal(err)
	}

	dstdir := filepath.Join(dir, "dst")
	if err := os.MkdirAll(dstdir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dstdir, "a"), []byte("already-there"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyDirMerge(srcdir, dstdir); err != nil {
		t.Fatal(err)
	}

	got, err := ioutil.ReadFile(filepath.Join(dstdir, "a"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "already-there" {
		t.Fatalf("CopyDirMerge must not overwrite existing files, got %q", got)
	}

	got, err = ioutil.ReadFile(filepath.Join(dstdir, "b"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "from-src-b" {
		t.Fatalf("CopyDirMerge must still copy files absent from dst, got %q", got)
	}
}

func TestCopyDirMergeRepeatable(t *testing.T) {
	dir := t.TempDir()

	srcdir := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(srcdir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(srcdir, "nested", "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dstdir := filepath.Join(dir, "dst")
	if err := CopyDirMerge(srcdir, dstdir); err != nil {
		t.Fatal(err)
	}
	// Calling it again against the same destination must be a no-op, not an error.
	if err := CopyDirMerge(srcdir, dstdir); err != nil {
		t.Fatal(err)
	}
}

func TestCopyDirMergeFailSrcIsNotDir(t *testing.T) {
	dir := t.TempDir()

	srcdir := filepath.Join(dir, "src")
	if _, err := os.Create(srcdir); err != nil {
		t.Fatal(err)
	}

	dstdir := filepath.Join(dir, "dst")
	if err := CopyDirMerge(srcdir, dstdir); err != errSrcNotDir {
		t.Fatalf("expected %v, got %v", errSrcNotDir, err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()

	srcPath := filepath.Join(dir, "srcfile")
	want := "hello world"
	if err := ioutil.WriteFile(srcPath, []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}

	destf := filepath.Join(dir, "destf")
	if err := copyFile(srcPath, destf); err != nil {
		t.Fatal(err)
	}

	got, err := ioutil.ReadFile(destf)
	if err != nil {
		t.Fatal(err)
	}
	if want != string(got) {
		t.Fatalf("expected: %s, got: %s", want, string(got))
	}
}

func TestCopyFileSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on windows")
	}

	dir := t.TempDir()

	srcPath := filepath.Join(dir, "src")
	symlinkPath := filepath.Join(dir, "symlink")
	dstPath := filepath.Join(dir, "dst")

	if err := ioutil.WriteFile(srcPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(srcPath, symlinkPath); err != nil {
		t.Fatalf("could not create symlink: %s", err)
	}

	if err := copyFile(symlinkPath, dstPath); err != nil {
		t.Fatalf("failed to copy symlink: %s", err)
	}

	resolvedPath, err := os.Readlink(dstPath)
	if err != nil {
		t.Fatalf("could not resolve symlink: %s", err)
	}
	if resolvedPath != srcPath {
		t.Fatalf("resolved path is incorrect. expected %s, got %s", srcPath, resolvedPath)
	}
}

func TestIsEmptyDirOrNotExist(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope")
	if ok, err := IsEmptyDirOrNotExist(missing); err != nil || !ok {
		t.Fatalf("missing dir should be treated as empty, got ok=%v err=%v", ok, err)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	if ok, err := IsEmptyDirOrNotExist(empty); err != nil || !ok {
		t.Fatalf("expected empty dir true, got ok=%v err=%v", ok, err)
	}

	nonEmpty := filepath.Join(dir, "nonempty")
	if err := os.MkdirAll(nonEmpty, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(nonEmpty, "f"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := IsEmptyDirOrNotExist(nonEmpty); err != nil || ok {
		t.Fatalf("expected non-empty dir false, got ok=%v err=%v", ok, err)
	}
}

func TestIsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on windows")
	}

	dir := t.TempDir()

	dirPath := filepath.Join(dir, "directory")
	if err := os.MkdirAll(dirPath, 0o777); err != nil {
		t.Fatal(err)
	}

	filePath := filepath.Join(dir, "file")
	if err := ioutil.WriteFile(filePath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	dirSymlink := filepath.Join(dir, "dirSymlink")
	fileSymlink := filepath.Join(dir, "fileSymlink")
	if err := os.Symlink(dirPath, dirSymlink); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filePath, fileSymlink); err != nil {
		t.Fatal(err)
	}

	tests := map[string]bool{
		dirPath:     false,
		filePath:    false,
		dirSymlink:  true,
		fileSymlink: true,
	}

	for path, want := range tests {
		got, err := IsSymlink(path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
			continue
		}
		if got != want {
			t.Errorf("expected %t for %s, got %t", want, path, got)
		}
	}
}

func TestSymlinkTargetEquals(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs elevated privileges on windows")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")

	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if ok, err := SymlinkTargetEquals(link, target); err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	if ok, err := SymlinkTargetEquals(link, "/something/else"); err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
	if ok, err := SymlinkTargetEquals(filepath.Join(dir, "nope"), target); err != nil || ok {
		t.Fatalf("missing path should report false,nil, got ok=%v err=%v", ok, err)
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()

	if err := RemoveIfExists(filepath.Join(dir, "nope")); err != nil {
		t.Fatalf("removing a missing path must not error, got %v", err)
	}

	f := filepath.Join(dir, "f")
	if err := ioutil.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveIfExists(f); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed", f)
	}
}
