// Package bundle assembles the Ghidra.app skeleton inside the staging tree
// and applies the cosmetic patches the installer ships with.
package bundle

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-plist"
	"github.com/disintegration/imaging"
	"github.com/jackmordaunt/icns/v3"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

//go:embed assets
var assets embed.FS

// DockIconSizes are the icon resolutions appended to Generic.jar so the
// dock shows the same icon as the bundle
var DockIconSizes = []int{16, 32, 40, 48, 64, 128, 256}

const genericJar = "Ghidra/Framework/Generic/lib/Generic.jar"

/*
Expected layout:

	Ghidra.app/
	└── Contents
	    ├── Info.plist
	    ├── MacOS
	    │   └── ghidra
	    └── Resources
	        ├── Ghidra.icns
	        └── ghidra_x.x.x_PUBLIC
*/

// Bundle is a Ghidra.app under construction
type Bundle struct {
	Root      string // staging dir holding Ghidra.app and the Applications symlink
	Contents  string
	MacOS     string
	Resources string
}

// Create lays down the app bundle skeleton inside the staging dir
func Create(staging string) (*Bundle, error) {
	b := &Bundle{
		Root:      staging,
		Contents:  filepath.Join(staging, "Ghidra.app", "Contents"),
		MacOS:     filepath.Join(staging, "Ghidra.app", "Contents", "MacOS"),
		Resources: filepath.Join(staging, "Ghidra.app", "Contents", "Resources"),
	}

	for _, dir := range []string{b.Contents, b.MacOS, b.Resources} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create bundle skeleton: %v", err)
		}
	}

	// drag-to-install shortcut shown when the image is mounted
	appLink := filepath.Join(staging, "Applications")
	if _, err := os.Lstat(appLink); os.IsNotExist(err) {
		if err := os.Symlink("/Applications", appLink); err != nil {
			return nil, fmt.Errorf("failed to create Applications symlink: %v", err)
		}
	}

	return b, nil
}

// ReleaseDir returns the path the Ghidra release lives at inside the bundle
func (b *Bundle) ReleaseDir(version string) string {
	return filepath.Join(b.Resources, fmt.Sprintf("ghidra_%s_PUBLIC", version))
}

// FindReleaseDir locates an already installed release inside the bundle
func (b *Bundle) FindReleaseDir() (string, error) {
	return utils.Glob(b.Resources, "ghidra_*_PUBLIC")
}

// WriteInfoPlist writes Contents/Info.plist with the bundle version set to
// the Ghidra release version
func (b *Bundle) WriteInfoPlist(version string) error {
	data, err := assets.ReadFile("assets/Info.plist")
	if err != nil {
		return err
	}

	info := make(map[string]any)
	if err := plist.NewDecoder(bytes.NewReader(data)).Decode(&info); err != nil {
		return fmt.Errorf("failed to decode Info.plist template: %v", err)
	}

	info["CFBundleVersion"] = version
	info["CFBundleShortVersionString"] = version

	out, err := plist.Marshal(info, plist.XMLFormat)
	if err != nil {
		return fmt.Errorf("failed to marshal Info.plist: %v", err)
	}

	return os.WriteFile(filepath.Join(b.Contents, "Info.plist"), out, 0644)
}

// WriteLauncher installs the launcher script into Contents/MacOS/ghidra
func (b *Bundle) WriteLauncher() error {
	data, err := assets.ReadFile("assets/ghidra")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.MacOS, "ghidra"), data, 0755)
}

func loadIcon() (image.Image, error) {
	data, err := assets.ReadFile("assets/GhidraIcon.png")
	if err != nil {
		return nil, err
	}
	return png.Decode(bytes.NewReader(data))
}

// WriteIcns renders the app icon into Resources/Ghidra.icns
func (b *Bundle) WriteIcns() error {
	icon, err := loadIcon()
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(b.Resources, "Ghidra.icns"))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := icns.Encode(f, icon); err != nil {
		return fmt.Errorf("failed to encode Ghidra.icns: %v", err)
	}
	return nil
}

// PatchDockIcon resizes the icon to each dock resolution, drops the PNGs
// into the release's images dir and appends them to Generic.jar so the
// running application shows the same icon on the dock
func (b *Bundle) PatchDockIcon(releaseDir string) error {
	icon, err := loadIcon()
	if err != nil {
		return err
	}

	imagesDir := filepath.Join(releaseDir, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return err
	}

	adds := make(map[string]string, len(DockIconSizes))
	for _, res := range DockIconSizes {
		name := fmt.Sprintf("GhidraIcon%d.png", res)
		resized := imaging.Resize(icon, res, res, imaging.Lanczos)
		if err := imaging.Save(resized, filepath.Join(imagesDir, name)); err != nil {
			return fmt.Errorf("failed to write %s: %v", name, err)
		}
		// jar entry paths always use forward slashes
		adds["images/"+name] = filepath.Join(imagesDir, name)
	}

	jar := filepath.Join(releaseDir, filepath.FromSlash(genericJar))
	utils.Indent(log.Debug, 2)(fmt.Sprintf("appending %d icons to %s", len(adds), genericJar))

	return UpdateJar(jar, adds)
}

// EnableScreenMenuBar patches launch.properties so Ghidra uses the native
// macOS menu bar
func EnableScreenMenuBar(releaseDir string) error {
	props := filepath.Join(releaseDir, "support", "launch.properties")

	data, err := os.ReadFile(props)
	if err != nil {
		return fmt.Errorf("failed to read launch.properties: %v", err)
	}

	patched := strings.ReplaceAll(string(data), "useScreenMenuBar=false", "useScreenMenuBar=true")
	if patched == string(data) {
		log.Debug("launch.properties already uses the screen menu bar")
		return nil
	}

	return os.WriteFile(props, []byte(patched), 0644)
}
