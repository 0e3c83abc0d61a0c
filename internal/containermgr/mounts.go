package containermgr

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/mount"
)

// resolveMounts turns the caller's ContainerMount list into Docker SDK mount
// specs. Zip sources are extracted into a fresh temp directory first and
// bound as a directory; files and directories bind directly.
func resolveMounts(mounts []ContainerMount) ([]mount.Mount, error) {
	out := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		source := m.Source
		readOnly := m.ReadOnly
		switch m.Kind {
		case MountFile:
			readOnly = true
		case MountDirectory:
			// bind as given
		case MountZip:
			extracted, err := extractZip(m.Source)
			if err != nil {
				return nil, fmt.Errorf("extract zip mount %s: %w", m.Source, err)
			}
			source = extracted
			readOnly = false
		default:
			return nil, fmt.Errorf("unknown mount kind %q", m.Kind)
		}
		out = append(out, mount.Mount{
			Type:     mount.TypeBind,
			Source:   source,
			Target:   m.Target,
			ReadOnly: readOnly,
		})
	}
	return out, nil
}

func extractZip(zipPath string) (string, error) {
	dir, err := os.MkdirTemp("", "it-zipmount-*")
	if err != nil {
		return "", err
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		clean := filepath.Clean(f.Name)
		if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			os.RemoveAll(dir)
			return "", fmt.Errorf("zip entry escapes target directory: %s", f.Name)
		}
		target := filepath.Join(dir, clean)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				os.RemoveAll(dir)
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		if err := copyZipEntry(f, target); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func copyZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
