// Package dmg creates compressed macOS disk images with hdiutil.
package dmg

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/apex/log"
)

// Imager writes a disk image of srcFolder to dest
type Imager interface {
	Create(srcFolder, dest, volname string) error
}

// HDIUtil builds UDZO disk images by shelling out to hdiutil
type HDIUtil struct{}

// Available reports whether hdiutil can be found on PATH
func (HDIUtil) Available() error {
	if _, err := exec.LookPath("hdiutil"); err != nil {
		return fmt.Errorf("hdiutil not found (disk images can only be created on macOS): %v", err)
	}
	return nil
}

// Create writes a compressed HFS+ image of srcFolder to dest
func (h HDIUtil) Create(srcFolder, dest, volname string) error {
	if err := h.Available(); err != nil {
		return err
	}

	args := []string{
		"create",
		"-volname", volname,
		"-fs", "HFS+",
		"-srcfolder", srcFolder,
		"-ov",
		"-format", "UDZO",
		dest,
	}
	log.Debugf("hdiutil %s", strings.Join(args, " "))

	out, err := exec.Command("hdiutil", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("hdiutil create failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
