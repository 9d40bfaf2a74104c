package packager

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/packdmg/ghidra-dmg/internal/bundle"
	"github.com/packdmg/ghidra-dmg/internal/download"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

const ghidraalRepo = "https://github.com/jpleasu/ghidraal.git"

// language components installed into the VM before it is bundled
var graalComponents = []string{"llvm-toolchain", "native-image", "nodejs", "python", "ruby", "R", "wasm"}

// bundleGraal downloads the latest Graal VM CE for macOS, primes the cached
// copy with its language components, installs it into Resources/graal and
// points Resources/jdk at its home so the launcher picks it up. Returns the
// bundled JAVA_HOME.
func (p *Packager) bundleGraal(ctx context.Context, b *bundle.Bundle) (string, error) {
	release, err := download.GetLatestRelease(download.GraalReleaseAPI, p.conf.Proxy, p.conf.Insecure, p.conf.GithubToken)
	if err != nil {
		return "", fmt.Errorf("failed to query graalvm releases: %v", err)
	}
	asset, err := release.Asset("graalvm-ce-java11", "darwin", "tar.gz")
	if err != nil {
		return "", err
	}

	tarball := filepath.Join(p.conf.CacheDir, asset.Name)
	if _, err := os.Stat(tarball); os.IsNotExist(err) {
		log.WithFields(log.Fields{
			"version": release.Tag,
			"size":    humanize.Bytes(uint64(asset.Size)),
		}).Info("Getting Graal VM")
		if err := p.fetch(asset.DownloadURL, tarball); err != nil {
			return "", fmt.Errorf("failed to download %s: %v", asset.DownloadURL, err)
		}
	} else {
		utils.Indent(log.Info, 2)(fmt.Sprintf("using cached %s", tarball))
	}

	extractDir := filepath.Join(p.conf.CacheDir, "graal")
	if _, err := os.Stat(extractDir); os.IsNotExist(err) {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Extracting %s", tarball))
		if err := utils.UnTarGz(tarball, extractDir); err != nil {
			return "", fmt.Errorf("failed to extract graal vm: %v", err)
		}
	}
	graalDir, err := utils.Glob(extractDir, "graalvm-*")
	if err != nil {
		return "", fmt.Errorf("graal tarball layout not recognized: %v", err)
	}

	// prime the cached copy so the bundled VM ships with its languages
	cachedHome := filepath.Join(graalDir, "Contents", "Home")
	utils.Indent(log.Info, 2)("Installing Graal VM components")
	if err := gu(ctx, cachedHome, append([]string{"install"}, graalComponents...)...); err != nil {
		return "", err
	}

	utils.Indent(log.Info, 2)("Copying Graal VM into bundle")
	dest := filepath.Join(b.Resources, "graal", filepath.Base(graalDir))
	if err := utils.CopyDir(graalDir, dest); err != nil {
		return "", fmt.Errorf("failed to copy graal vm into bundle: %v", err)
	}

	javaHome := filepath.Join(dest, "Contents", "Home")

	// Resources/jdk must not already exist; the launcher resolves the VM
	// through this link
	rel, err := filepath.Rel(b.Resources, javaHome)
	if err != nil {
		return "", err
	}
	if err := os.Symlink(rel, filepath.Join(b.Resources, "jdk")); err != nil {
		return "", fmt.Errorf("failed to link jdk to graal home: %v", err)
	}

	// sanity check the bundled copy
	if err := gu(ctx, javaHome, "list"); err != nil {
		return "", fmt.Errorf("bundled graal vm is not usable: %v", err)
	}

	return javaHome, nil
}

// gu runs the Graal component updater of the given VM home
func gu(ctx context.Context, home string, args ...string) error {
	bin := filepath.Join(home, "bin", "gu")
	cmd := exec.CommandContext(ctx, bin, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s failed: %v: %s", bin, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	for line := range strings.SplitSeq(strings.TrimSpace(string(out)), "\n") {
		utils.Indent(log.Debug, 3)(line)
	}
	return nil
}
