package utils

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func writeTestZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, body := range entries {
		e, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUnzip(t *testing.T) {
	src := writeTestZip(t, map[string]string{
		"ghidra_10.1_PUBLIC/ghidraRun":                "#!/bin/bash\n",
		"ghidra_10.1_PUBLIC/support/launch.properties": "useScreenMenuBar=false\n",
	})

	dest := t.TempDir()
	names, err := Unzip(src, dest)
	if err != nil {
		t.Fatalf("Unzip() error = %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Unzip() extracted %d entries, want 2", len(names))
	}

	data, err := os.ReadFile(filepath.Join(dest, "ghidra_10.1_PUBLIC", "support", "launch.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "useScreenMenuBar=false\n" {
		t.Errorf("Unzip() launch.properties = %q", string(data))
	}
}

func TestUnzipRejectsEscapingPaths(t *testing.T) {
	src := writeTestZip(t, map[string]string{
		"../evil": "nope",
	})

	if _, err := Unzip(src, t.TempDir()); err == nil {
		t.Error("Unzip() accepted a path escaping the destination")
	}
}

func TestUnTarGz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	if err := tw.WriteHeader(&tar.Header{Name: "jdk/bin/", Typeflag: tar.TypeDir, Mode: 0755}); err != nil {
		t.Fatal(err)
	}
	body := []byte("#!/bin/sh\n")
	if err := tw.WriteHeader(&tar.Header{Name: "jdk/bin/java", Typeflag: tar.TypeReg, Mode: 0755, Size: int64(len(body))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := tw.WriteHeader(&tar.Header{Name: "jdk/bin/java-link", Typeflag: tar.TypeSymlink, Linkname: "java", Mode: 0777}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	if err := UnTarGz(path, dest); err != nil {
		t.Fatalf("UnTarGz() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dest, "jdk", "bin", "java"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("UnTarGz() java mode = %v, want 0755", info.Mode().Perm())
	}

	target, err := os.Readlink(filepath.Join(dest, "jdk", "bin", "java-link"))
	if err != nil {
		t.Fatalf("UnTarGz() did not preserve symlink: %v", err)
	}
	if target != "java" {
		t.Errorf("UnTarGz() symlink target = %q, want %q", target, "java")
	}
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "file"), []byte("data"), 0640); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("sub/file", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "copy")
	if err := CopyDir(src, dst); err != nil {
		t.Fatalf("CopyDir() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "sub", "file"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "data" {
		t.Errorf("CopyDir() file = %q, want %q", string(data), "data")
	}

	target, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("CopyDir() did not preserve symlink: %v", err)
	}
	if target != "sub/file" {
		t.Errorf("CopyDir() symlink target = %q, want %q", target, "sub/file")
	}
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ghidra_10.1_PUBLIC"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := Glob(dir, "ghidra_*_PUBLIC")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if filepath.Base(got) != "ghidra_10.1_PUBLIC" {
		t.Errorf("Glob() = %v", got)
	}

	if _, err := Glob(dir, "graalvm-*"); err == nil {
		t.Error("Glob() found a match where none exists")
	}
}
