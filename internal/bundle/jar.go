package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// UpdateJar adds the given files (jar entry name -> source path) to an
// existing jar. Zip archives cannot be appended to in place, so the jar is
// rewritten next to the original and swapped in atomically. New entries are
// appended in name order so identical inputs produce identical jars.
func UpdateJar(jar string, adds map[string]string) error {
	r, err := zip.OpenReader(jar)
	if err != nil {
		return fmt.Errorf("failed to open jar %s: %v", jar, err)
	}
	defer r.Close()

	// same directory as the jar so the final rename stays on one filesystem
	tmp, err := os.CreateTemp(filepath.Dir(jar), ".jar-update-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := zip.NewWriter(tmp)

	for _, f := range r.File {
		if _, replaced := adds[f.Name]; replaced {
			continue
		}
		if err := w.Copy(f); err != nil {
			w.Close()
			tmp.Close()
			return fmt.Errorf("failed to copy jar entry %s: %v", f.Name, err)
		}
	}

	names := make([]string, 0, len(adds))
	for name := range adds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in, err := os.Open(adds[name])
		if err != nil {
			w.Close()
			tmp.Close()
			return err
		}
		entry, err := w.Create(name)
		if err != nil {
			in.Close()
			w.Close()
			tmp.Close()
			return fmt.Errorf("failed to create jar entry %s: %v", name, err)
		}
		if _, err := io.Copy(entry, in); err != nil {
			in.Close()
			w.Close()
			tmp.Close()
			return err
		}
		in.Close()
	}

	if err := w.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// r must be released before the rename on platforms that lock open files
	r.Close()

	info, err := os.Stat(jar)
	if err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode()); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), jar)
}
