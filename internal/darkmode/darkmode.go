// Package darkmode patches a Ghidra release to start with a dark
// look-and-feel. The FlatLaf jar is dropped into the release's patch
// directory (which Ghidra prepends to its classpath) and the Swing default
// LAF is forced through launch.properties.
package darkmode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/packdmg/ghidra-dmg/internal/utils"
)

const (
	flatlafVersion = "3.4.1"
	flatlafJarURL  = "https://repo1.maven.org/maven2/com/formdev/flatlaf/%[1]s/flatlaf-%[1]s.jar"
	darkLaf        = "com.formdev.flatlaf.FlatDarkLaf"
)

// Fetcher downloads url into dest
type Fetcher func(url, dest string) error

// JarName is the file name of the look-and-feel jar installed into the release
func JarName() string {
	return fmt.Sprintf("flatlaf-%s.jar", flatlafVersion)
}

// Apply installs the dark theme into the release tree. Only the patch
// directory and launch.properties are touched.
func Apply(releaseDir, cacheDir string, fetch Fetcher) error {
	cached := filepath.Join(cacheDir, JarName())
	if _, err := os.Stat(cached); os.IsNotExist(err) {
		url := fmt.Sprintf(flatlafJarURL, flatlafVersion)
		utils.Indent(log.Info, 2)(fmt.Sprintf("Fetching %s", url))
		if err := fetch(url, cached); err != nil {
			return fmt.Errorf("failed to fetch %s: %v", url, err)
		}
	} else {
		utils.Indent(log.Debug, 2)(fmt.Sprintf("using cached %s", cached))
	}

	patchDir := filepath.Join(releaseDir, "Ghidra", "patch")
	if err := os.MkdirAll(patchDir, 0755); err != nil {
		return err
	}
	if err := utils.Cp(cached, filepath.Join(patchDir, JarName())); err != nil {
		return fmt.Errorf("failed to install %s: %v", JarName(), err)
	}

	return setDefaultLaf(releaseDir)
}

func setDefaultLaf(releaseDir string) error {
	props := filepath.Join(releaseDir, "support", "launch.properties")

	data, err := os.ReadFile(props)
	if err != nil {
		return fmt.Errorf("failed to read launch.properties: %v", err)
	}

	if strings.Contains(string(data), darkLaf) {
		log.Debug("dark look-and-feel already configured")
		return nil
	}

	f, err := os.OpenFile(props, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "\nVMARGS=-Dswing.defaultlaf=%s\n", darkLaf)
	return err
}
