package extension

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestName(t *testing.T) {
	type args struct {
		source string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "git URL",
			args: args{source: "https://github.com/jpleasu/ghidraal.git"},
			want: "ghidraal",
		},
		{
			name: "git URL with trailing slash",
			args: args{source: "https://github.com/cmu-sei/kaiju/"},
			want: "kaiju",
		},
		{
			name: "prebuilt zip",
			args: args{source: "/tmp/ret-sync.zip"},
			want: "ret-sync",
		},
		{
			name: "source dir",
			args: args{source: "/home/dev/my-extension"},
			want: "my-extension",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.args.source); got != tt.want {
				t.Errorf("Name() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsURL(t *testing.T) {
	type args struct {
		source string
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{name: "https", args: args{source: "https://github.com/jpleasu/ghidraal.git"}, want: true},
		{name: "http", args: args{source: "http://example.com/ext.git"}, want: true},
		{name: "local zip", args: args{source: "/tmp/ext.zip"}, want: false},
		{name: "local dir", args: args{source: "ext"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsURL(tt.args.source); got != tt.want {
				t.Errorf("IsURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstallPrebuiltZip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.zip")
	f, err := os.Create(src)
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

	releaseDir := t.TempDir()
	if err := Install(context.Background(), InstallOptions{
		Source:     src,
		ReleaseDir: releaseDir,
		CacheDir:   t.TempDir(),
	}); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	installed := filepath.Join(ExtensionsDir(releaseDir), "sample", "extension.properties")
	if _, err := os.Stat(installed); err != nil {
		t.Errorf("Install() did not unpack the extension: %v", err)
	}
}

func TestInstallBadSource(t *testing.T) {
	err := Install(context.Background(), InstallOptions{
		Source:     filepath.Join(t.TempDir(), "does-not-exist"),
		ReleaseDir: t.TempDir(),
		CacheDir:   t.TempDir(),
	})
	if err == nil {
		t.Error("Install() accepted a nonexistent source")
	}
}
