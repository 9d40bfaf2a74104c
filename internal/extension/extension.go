// Package extension fetches, builds and installs Ghidra extensions into a
// release tree.
package extension

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	git "github.com/go-git/go-git/v5"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

// InstallOptions describe a single extension installation
type InstallOptions struct {
	// Source is a git clone URL, a path to a pre-built extension zip, or a
	// path to an extension source tree
	Source string
	// ReleaseDir is the Ghidra release the extension is built against
	ReleaseDir string
	// CacheDir holds clones so repeated builds don't re-fetch
	CacheDir string
	// Gradle is the gradle binary used for source builds
	Gradle string
	// JavaHome optionally overrides the JDK used for the build
	JavaHome string
}

// Name derives the extension name from its source (URL or filesystem path)
func Name(source string) string {
	base := filepath.Base(strings.TrimSuffix(source, "/"))
	base = strings.TrimSuffix(base, ".git")
	base = strings.TrimSuffix(base, ".zip")
	return base
}

// IsURL reports whether the source is a remote repository
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// ExtensionsDir returns the install target inside a release tree
func ExtensionsDir(releaseDir string) string {
	return filepath.Join(releaseDir, "Ghidra", "Extensions")
}

// Install resolves the source, builds it with gradle when it is a source
// tree, and copies the distribution zip into the release's Extensions dir.
// Pre-built zips are extracted directly.
func Install(ctx context.Context, opt InstallOptions) error {
	extDir := ExtensionsDir(opt.ReleaseDir)
	if err := os.MkdirAll(extDir, 0755); err != nil {
		return err
	}

	name := Name(opt.Source)
	utils.Indent(log.WithField("extension", name).Info, 2)("Installing extension")

	var srcTree string
	switch {
	case IsURL(opt.Source):
		clone := filepath.Join(opt.CacheDir, name)
		if _, err := os.Stat(clone); os.IsNotExist(err) {
			utils.Indent(log.Debug, 3)(fmt.Sprintf("cloning %s", opt.Source))
			if _, err := git.PlainCloneContext(ctx, clone, false, &git.CloneOptions{
				URL:   opt.Source,
				Depth: 1,
			}); err != nil {
				return fmt.Errorf("failed to clone extension %s: %v", opt.Source, err)
			}
		} else {
			utils.Indent(log.Debug, 3)(fmt.Sprintf("using cached clone %s", clone))
		}
		srcTree = clone
	case strings.HasSuffix(opt.Source, ".zip"):
		// pre-built extension, unpack straight into the release
		if _, err := utils.Unzip(opt.Source, extDir); err != nil {
			return fmt.Errorf("failed to extract extension %s: %v", opt.Source, err)
		}
		return nil
	default:
		info, err := os.Stat(opt.Source)
		if err != nil {
			return fmt.Errorf("extension source %s: %v", opt.Source, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("extension source %s is neither a URL, a zip, nor a directory", opt.Source)
		}
		srcTree = opt.Source
	}

	dist, err := build(ctx, srcTree, opt)
	if err != nil {
		return fmt.Errorf("failed to build extension %s: %v", name, err)
	}

	if err := utils.Cp(dist, filepath.Join(extDir, filepath.Base(dist))); err != nil {
		return fmt.Errorf("failed to install extension %s: %v", name, err)
	}

	utils.Indent(log.WithField("extension", name).Info, 2)("Extension installed")
	return nil
}

// build runs gradle in the extension source tree and returns the produced
// distribution zip
func build(ctx context.Context, srcTree string, opt InstallOptions) (string, error) {
	gradle := opt.Gradle
	if gradle == "" {
		gradle = "gradle"
	}
	if _, err := exec.LookPath(gradle); err != nil {
		return "", fmt.Errorf("gradle not found (required to build extensions from source): %v", err)
	}

	cmd := exec.CommandContext(ctx, gradle)
	cmd.Dir = srcTree
	cmd.Env = append(os.Environ(), "GHIDRA_INSTALL_DIR="+opt.ReleaseDir)
	if opt.JavaHome != "" {
		cmd.Env = append(cmd.Env,
			"JAVA_HOME="+opt.JavaHome,
			"PATH="+filepath.Join(opt.JavaHome, "bin")+string(os.PathListSeparator)+os.Getenv("PATH"),
		)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gradle failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	dist, err := utils.Glob(filepath.Join(srcTree, "dist"), "*.zip")
	if err != nil {
		return "", fmt.Errorf("no distribution zip produced: %v", err)
	}
	return dist, nil
}
