package packager

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	version "github.com/hashicorp/go-version"
)

// RuntimeKind selects which runtime, if any, gets bundled into the app
type RuntimeKind int

const (
	// RuntimeNone bundles no runtime; the launcher falls back to the system JDK
	RuntimeNone RuntimeKind = iota
	// RuntimeJDK bundles a user supplied JDK
	RuntimeJDK
	// RuntimeGraal bundles the Graal VM plus the Ghidraal scripting extension
	RuntimeGraal
)

// Runtime is a tagged variant so a request can never carry both a JDK path
// and the Graal flag
type Runtime struct {
	Kind RuntimeKind
	JDK  string // set only for RuntimeJDK
}

// NewRuntime builds the runtime variant from the raw flag values
func NewRuntime(jdkPath string, graal bool) (Runtime, error) {
	switch {
	case jdkPath != "" && graal:
		return Runtime{}, fmt.Errorf("--jdk and --graal are mutually exclusive")
	case jdkPath != "":
		return Runtime{Kind: RuntimeJDK, JDK: jdkPath}, nil
	case graal:
		return Runtime{Kind: RuntimeGraal}, nil
	default:
		return Runtime{Kind: RuntimeNone}, nil
	}
}

// Config is the immutable build request. It is parsed once at startup and
// passed through the pipeline unchanged.
type Config struct {
	// Output is the requested location of the disk image. A directory gets
	// Ghidra.dmg written inside it.
	Output string
	// Extensions are installed in the order given; duplicates are not
	// deduplicated (avoiding a double install is the caller's job)
	Extensions []string
	// DarkMode applies the dark look-and-feel patch
	DarkMode bool
	// SourcePath optionally points at a local Ghidra release zip or install,
	// bypassing the download
	SourcePath string
	// Runtime selects the bundled runtime
	Runtime Runtime

	Proxy       string
	Insecure    bool
	CacheDir    string
	GithubToken string
	Gradle      string
}

// Validate checks the request before any I/O happens
func (c *Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("an output path for the disk image is required (--out)")
	}
	if c.Runtime.Kind == RuntimeJDK && c.Runtime.JDK == "" {
		return fmt.Errorf("a JDK path is required when bundling a JDK")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("a cache directory is required")
	}
	return nil
}

// ArtifactPath resolves the Output field to the final .dmg path
func (c *Config) ArtifactPath() string {
	out := c.Output
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, "Ghidra.dmg")
	}
	if filepath.Ext(out) != ".dmg" {
		out += ".dmg"
	}
	return out
}

// release archives and install dirs are named ghidra_<version>_PUBLIC[_date]
var releaseNameRE = regexp.MustCompile(`ghidra_([0-9][^_]*)_PUBLIC`)

// ReleaseVersion extracts and validates the Ghidra version embedded in a
// release archive or directory name
func ReleaseVersion(name string) (string, error) {
	m := releaseNameRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", fmt.Errorf("cannot determine ghidra version from %q", name)
	}
	if _, err := version.NewVersion(m[1]); err != nil {
		return "", fmt.Errorf("invalid ghidra version %q: %v", m[1], err)
	}
	return m[1], nil
}
