package packager

import (
	"archive/zip"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/packdmg/ghidra-dmg/internal/darkmode"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

// captureImager copies the staging tree aside instead of invoking hdiutil so
// tests can inspect what would have gone into the image
type captureImager struct {
	dir     string
	volname string
}

func (c *captureImager) Create(srcFolder, dest, volname string) error {
	c.volname = volname
	if err := utils.CopyDir(srcFolder, c.dir); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte("dmg"), 0644)
}

func genericJarBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	e, err := w.Create("ghidra/Existing.class")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write([]byte("cafebabe")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeReleaseZip builds a minimal ghidra_10.1_PUBLIC release archive
func fakeReleaseZip(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ghidra_10.1_PUBLIC_20211221.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	entries := map[string][]byte{
		"ghidra_10.1_PUBLIC/ghidraRun":                             []byte("#!/usr/bin/env bash\n"),
		"ghidra_10.1_PUBLIC/support/launch.properties":             []byte("VMARGS_MACOS=-Dapple.laf.useScreenMenuBar=false\n"),
		"ghidra_10.1_PUBLIC/Ghidra/application.properties":         []byte("application.version=10.1\n"),
		"ghidra_10.1_PUBLIC/Ghidra/Framework/Generic/lib/Generic.jar": genericJarBytes(t),
	}
	for name, body := range entries {
		e, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write(body); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, sourceZip string) *Config {
	t.Helper()
	return &Config{
		Output:     t.TempDir(),
		SourcePath: sourceZip,
		CacheDir:   t.TempDir(),
	}
}

func buildWithCapture(t *testing.T, conf *Config) (*captureImager, error) {
	t.Helper()

	imager := &captureImager{dir: filepath.Join(t.TempDir(), "staging")}
	p := New(conf)
	p.SetImager(imager)
	return imager, p.Build(context.Background())
}

func TestBuildFromLocalZip(t *testing.T) {
	src := fakeReleaseZip(t)
	before, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	conf := testConfig(t, src)
	imager, err := buildWithCapture(t, conf)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if imager.volname != "Ghidra" {
		t.Errorf("Build() volume name = %q, want Ghidra", imager.volname)
	}

	artifact := filepath.Join(conf.Output, "Ghidra.dmg")
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("Build() did not produce %s: %v", artifact, err)
	}

	// the input archive must never be modified
	after, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("Build() modified the source archive")
	}

	contents := filepath.Join(imager.dir, "Ghidra.app", "Contents")
	for _, file := range []string{
		filepath.Join(contents, "Info.plist"),
		filepath.Join(contents, "MacOS", "ghidra"),
		filepath.Join(contents, "Resources", "Ghidra.icns"),
	} {
		if _, err := os.Stat(file); err != nil {
			t.Errorf("Build() bundle is missing %s: %v", file, err)
		}
	}

	if target, err := os.Readlink(filepath.Join(imager.dir, "Applications")); err != nil || target != "/Applications" {
		t.Errorf("Build() Applications symlink = %q, %v", target, err)
	}

	plist, err := os.ReadFile(filepath.Join(contents, "Info.plist"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(plist), "10.1") {
		t.Error("Build() Info.plist does not carry the release version")
	}

	props, err := os.ReadFile(filepath.Join(contents, "Resources", "ghidra_10.1_PUBLIC", "support", "launch.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(props), "useScreenMenuBar=true") {
		t.Error("Build() did not enable the screen menu bar")
	}
}

// treeContents maps every regular file and symlink under root to its bytes
// or link target, keyed by relative path
func treeContents(t *testing.T, root string) map[string]string {
	t.Helper()

	contents := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			contents[rel] = "-> " + target
		case d.Type().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			contents[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return contents
}

func TestBuildIsIdempotent(t *testing.T) {
	src := fakeReleaseZip(t)

	trees := make([]map[string]string, 2)
	for i := range trees {
		conf := testConfig(t, src)
		imager, err := buildWithCapture(t, conf)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		trees[i] = treeContents(t, imager.dir)
	}

	if len(trees[0]) == 0 {
		t.Fatal("Build() produced an empty staging tree")
	}
	if !reflect.DeepEqual(trees[0], trees[1]) {
		for rel, content := range trees[0] {
			other, ok := trees[1][rel]
			if !ok {
				t.Errorf("second build is missing %s", rel)
			} else if content != other {
				t.Errorf("%s differs between two builds with identical inputs", rel)
			}
		}
		for rel := range trees[1] {
			if _, ok := trees[0][rel]; !ok {
				t.Errorf("first build is missing %s", rel)
			}
		}
	}
}

func TestBuildFromLocalDir(t *testing.T) {
	// unpack the fixture so the source is an install dir instead of a zip
	unpacked := t.TempDir()
	if _, err := utils.Unzip(fakeReleaseZip(t), unpacked); err != nil {
		t.Fatal(err)
	}

	conf := testConfig(t, filepath.Join(unpacked, "ghidra_10.1_PUBLIC"))
	imager, err := buildWithCapture(t, conf)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	releaseDir := filepath.Join(imager.dir, "Ghidra.app", "Contents", "Resources", "ghidra_10.1_PUBLIC")
	if _, err := os.Stat(filepath.Join(releaseDir, "ghidraRun")); err != nil {
		t.Errorf("Build() did not copy the release into the bundle: %v", err)
	}
}

func TestBuildDarkMode(t *testing.T) {
	conf := testConfig(t, fakeReleaseZip(t))
	conf.DarkMode = true

	// seed the cache so the build never goes to the network
	if err := os.WriteFile(filepath.Join(conf.CacheDir, darkmode.JarName()), []byte("jar"), 0644); err != nil {
		t.Fatal(err)
	}

	imager, err := buildWithCapture(t, conf)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	releaseDir := filepath.Join(imager.dir, "Ghidra.app", "Contents", "Resources", "ghidra_10.1_PUBLIC")
	if _, err := os.Stat(filepath.Join(releaseDir, "Ghidra", "patch", darkmode.JarName())); err != nil {
		t.Errorf("Build() did not install the theme jar: %v", err)
	}

	props, err := os.ReadFile(filepath.Join(releaseDir, "support", "launch.properties"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(props), "swing.defaultlaf") {
		t.Error("Build() did not set the default LAF")
	}
}

func TestBuildInstallsPrebuiltExtension(t *testing.T) {
	extZip := filepath.Join(t.TempDir(), "sample.zip")
	f, err := os.Create(extZip)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	e, err := w.Create("sample/extension.properties")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write([]byte("name=sample\n")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	conf := testConfig(t, fakeReleaseZip(t))
	conf.Extensions = []string{extZip}

	imager, err := buildWithCapture(t, conf)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	installed := filepath.Join(imager.dir, "Ghidra.app", "Contents", "Resources",
		"ghidra_10.1_PUBLIC", "Ghidra", "Extensions", "sample", "extension.properties")
	if _, err := os.Stat(installed); err != nil {
		t.Errorf("Build() did not install the extension: %v", err)
	}
}

func TestBuildFailureLeavesNoArtifact(t *testing.T) {
	conf := testConfig(t, fakeReleaseZip(t))
	conf.Extensions = []string{filepath.Join(t.TempDir(), "missing-extension")}

	if _, err := buildWithCapture(t, conf); err == nil {
		t.Fatal("Build() succeeded despite a broken extension source")
	}

	if _, err := os.Stat(filepath.Join(conf.Output, "Ghidra.dmg")); !os.IsNotExist(err) {
		t.Errorf("Build() left an artifact behind after failing: %v", err)
	}
}

func TestBuildBadSourcePath(t *testing.T) {
	conf := testConfig(t, filepath.Join(t.TempDir(), "nope.zip"))
	if _, err := buildWithCapture(t, conf); err == nil {
		t.Error("Build() accepted a nonexistent source path")
	}
}
