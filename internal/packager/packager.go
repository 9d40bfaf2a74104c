// Package packager turns a build request into a distributable Ghidra disk
// image. The pipeline is strictly sequential: resolve the base release,
// assemble the app bundle in an ephemeral staging tree, apply the requested
// modifications, compress, clean up.
package packager

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/packdmg/ghidra-dmg/internal/bundle"
	"github.com/packdmg/ghidra-dmg/internal/darkmode"
	"github.com/packdmg/ghidra-dmg/internal/dmg"
	"github.com/packdmg/ghidra-dmg/internal/download"
	"github.com/packdmg/ghidra-dmg/internal/extension"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

const volumeName = "Ghidra"

// Packager builds one Artifact from one immutable Config
type Packager struct {
	conf   *Config
	imager dmg.Imager
}

// New creates a Packager that images with hdiutil
func New(conf *Config) *Packager {
	return &Packager{conf: conf, imager: dmg.HDIUtil{}}
}

// SetImager swaps the disk image backend
func (p *Packager) SetImager(i dmg.Imager) {
	p.imager = i
}

// Build runs the pipeline. On any failure the staging tree is removed and
// nothing is left at the output path.
func (p *Packager) Build(ctx context.Context) error {
	if err := p.conf.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(p.conf.CacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %v", err)
	}
	log.Debugf("downloads will be cached to %s", p.conf.CacheDir)

	staging, err := os.MkdirTemp("", "ghidra-dmg-")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %v", err)
	}
	defer os.RemoveAll(staging)

	b, err := bundle.Create(staging)
	if err != nil {
		return err
	}

	releaseDir, ver, err := p.resolveBase(ctx, b)
	if err != nil {
		return err
	}
	log.WithField("version", ver).Info("Using Ghidra release")

	log.Info("Assembling app bundle")
	if err := b.WriteInfoPlist(ver); err != nil {
		return fmt.Errorf("failed to write Info.plist: %v", err)
	}
	if err := b.WriteLauncher(); err != nil {
		return fmt.Errorf("failed to write launcher: %v", err)
	}
	if err := b.WriteIcns(); err != nil {
		return fmt.Errorf("failed to write app icon: %v", err)
	}
	if err := b.PatchDockIcon(releaseDir); err != nil {
		return fmt.Errorf("failed to patch dock icon: %v", err)
	}
	if err := bundle.EnableScreenMenuBar(releaseDir); err != nil {
		return err
	}

	if p.conf.DarkMode {
		log.Info("Applying dark mode")
		if err := darkmode.Apply(releaseDir, p.conf.CacheDir, p.fetch); err != nil {
			return fmt.Errorf("failed to apply dark mode: %v", err)
		}
	}

	extensions := append([]string{}, p.conf.Extensions...)
	var javaHome string

	switch p.conf.Runtime.Kind {
	case RuntimeJDK:
		log.Info("Bundling JDK")
		if err := p.bundleJDK(b); err != nil {
			return fmt.Errorf("failed to bundle JDK: %v", err)
		}
	case RuntimeGraal:
		log.Info("Bundling Graal VM")
		javaHome, err = p.bundleGraal(ctx, b)
		if err != nil {
			return fmt.Errorf("failed to bundle Graal VM: %v", err)
		}
		// ship the scripting extension alongside the VM, as if the user had
		// asked for it on the command line
		extensions = append(extensions, ghidraalRepo)
	}

	// an extension failure aborts the whole build; shipping an installer
	// with only some of the requested extensions would be worse
	for _, src := range extensions {
		if err := extension.Install(ctx, extension.InstallOptions{
			Source:     src,
			ReleaseDir: releaseDir,
			CacheDir:   p.conf.CacheDir,
			Gradle:     p.conf.Gradle,
			JavaHome:   javaHome,
		}); err != nil {
			return err
		}
	}

	return p.writeArtifact(staging)
}

// fetch downloads url into dest with the configured proxy/TLS settings
func (p *Packager) fetch(url, dest string) error {
	dl := download.NewDownload(p.conf.Proxy, p.conf.Insecure, false, false)
	dl.URL = url
	dl.DestName = dest
	return dl.Do()
}

// resolveBase puts a Ghidra release under Resources and returns its path and
// version. A local source path wins over downloading.
func (p *Packager) resolveBase(ctx context.Context, b *bundle.Bundle) (string, string, error) {
	if p.conf.SourcePath != "" {
		return p.resolveLocal(b)
	}
	return p.resolveLatest(ctx, b)
}

func (p *Packager) resolveLocal(b *bundle.Bundle) (string, string, error) {
	info, err := os.Stat(p.conf.SourcePath)
	if err != nil {
		return "", "", fmt.Errorf("cannot use source path %s: %v", p.conf.SourcePath, err)
	}

	if info.IsDir() {
		ver, err := releaseDirVersion(p.conf.SourcePath)
		if err != nil {
			return "", "", err
		}
		releaseDir := b.ReleaseDir(ver)
		utils.Indent(log.Info, 2)(fmt.Sprintf("Copying %s", p.conf.SourcePath))
		if err := utils.CopyDir(p.conf.SourcePath, releaseDir); err != nil {
			return "", "", fmt.Errorf("failed to copy release: %v", err)
		}
		return releaseDir, ver, nil
	}

	utils.Indent(log.Info, 2)(fmt.Sprintf("Extracting %s", p.conf.SourcePath))
	if _, err := utils.Unzip(p.conf.SourcePath, b.Resources); err != nil {
		return "", "", fmt.Errorf("failed to extract release: %v", err)
	}
	releaseDir, err := b.FindReleaseDir()
	if err != nil {
		return "", "", fmt.Errorf("archive %s does not contain a ghidra release: %v", p.conf.SourcePath, err)
	}
	ver, err := releaseDirVersion(releaseDir)
	if err != nil {
		return "", "", err
	}
	return releaseDir, ver, nil
}

func (p *Packager) resolveLatest(ctx context.Context, b *bundle.Bundle) (string, string, error) {
	log.Info("No source path provided, looking up the latest release")

	release, err := download.GetLatestRelease(download.GhidraReleaseAPI, p.conf.Proxy, p.conf.Insecure, p.conf.GithubToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to query ghidra releases: %v", err)
	}
	asset, err := release.Asset()
	if err != nil {
		return "", "", err
	}

	ver, err := ReleaseVersion(asset.Name)
	if err != nil {
		return "", "", err
	}

	archive := filepath.Join(p.conf.CacheDir, asset.Name)
	if _, err := os.Stat(archive); os.IsNotExist(err) {
		log.WithFields(log.Fields{
			"version": ver,
			"size":    humanize.Bytes(uint64(asset.Size)),
		}).Info("Getting Ghidra")
		if err := p.fetch(asset.DownloadURL, archive); err != nil {
			return "", "", fmt.Errorf("failed to download %s: %v", asset.DownloadURL, err)
		}
	} else {
		utils.Indent(log.Info, 2)(fmt.Sprintf("using cached %s", archive))
	}

	cachedRelease := filepath.Join(p.conf.CacheDir, fmt.Sprintf("ghidra_%s_PUBLIC", ver))
	if _, err := os.Stat(cachedRelease); os.IsNotExist(err) {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Extracting %s", archive))
		if _, err := utils.Unzip(archive, p.conf.CacheDir); err != nil {
			return "", "", fmt.Errorf("failed to extract release: %v", err)
		}
	}

	releaseDir := b.ReleaseDir(ver)
	if err := utils.CopyDir(cachedRelease, releaseDir); err != nil {
		return "", "", fmt.Errorf("failed to copy release into bundle: %v", err)
	}
	return releaseDir, ver, nil
}

// releaseDirVersion determines the version of an unpacked release, first
// from the directory name, then from Ghidra/application.properties
func releaseDirVersion(dir string) (string, error) {
	if ver, err := ReleaseVersion(dir); err == nil {
		return ver, nil
	}

	props, err := os.Open(filepath.Join(dir, "Ghidra", "application.properties"))
	if err != nil {
		return "", fmt.Errorf("cannot determine ghidra version of %s: %v", dir, err)
	}
	defer props.Close()

	scanner := bufio.NewScanner(props)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "application.version="); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("cannot determine ghidra version of %s", dir)
}

// bundleJDK installs the user supplied JDK into Resources/jdk
func (p *Packager) bundleJDK(b *bundle.Bundle) error {
	info, err := os.Stat(p.conf.Runtime.JDK)
	if err != nil {
		return err
	}

	jdkDir := filepath.Join(b.Resources, "jdk")
	switch {
	case info.IsDir():
		utils.Indent(log.Info, 2)(fmt.Sprintf("Copying %s", p.conf.Runtime.JDK))
		return utils.CopyDir(p.conf.Runtime.JDK, jdkDir)
	case strings.HasSuffix(p.conf.Runtime.JDK, ".zip"):
		utils.Indent(log.Info, 2)(fmt.Sprintf("Extracting %s", p.conf.Runtime.JDK))
		_, err := utils.Unzip(p.conf.Runtime.JDK, jdkDir)
		return err
	case strings.HasSuffix(p.conf.Runtime.JDK, ".tar.gz"):
		utils.Indent(log.Info, 2)(fmt.Sprintf("Extracting %s", p.conf.Runtime.JDK))
		return utils.UnTarGz(p.conf.Runtime.JDK, jdkDir)
	default:
		return fmt.Errorf("JDK path %s is neither a directory, a zip, nor a tarball", p.conf.Runtime.JDK)
	}
}

// writeArtifact compresses the staging tree into the disk image. The image
// is written next to its final location and renamed into place so an
// interrupted run never leaves a partial artifact behind.
func (p *Packager) writeArtifact(staging string) error {
	artifact := p.conf.ArtifactPath()
	if err := os.MkdirAll(filepath.Dir(artifact), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %v", err)
	}

	log.Info("Building dmg")
	tmp := filepath.Join(filepath.Dir(artifact), "."+filepath.Base(artifact))
	if err := p.imager.Create(staging, tmp, volumeName); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to create disk image: %v", err)
	}
	if err := os.Rename(tmp, artifact); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move disk image into place: %v", err)
	}

	if info, err := os.Stat(artifact); err == nil {
		log.WithFields(log.Fields{
			"dmg":  artifact,
			"size": humanize.Bytes(uint64(info.Size())),
		}).Info("Created disk image")
	}
	return nil
}
