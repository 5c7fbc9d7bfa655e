// Package comppack implements the compatibility-pack side install:
// unzipping a user-supplied .ppk archive into ux0:rePatch/<titleid>
// and maintaining the base/patch version sidecar files the UI reads
// back to badge installed titles.
package comppack

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/AuthurNero/pkgj/internal/stage"
)

func sidecarName(patch bool) string {
	if patch {
		return "patch_comppack_version"
	}
	return "base_comppack_version"
}

// Install extracts zipData into destDir, replacing whatever is there
// first unless patch is true (a patch pack layers on top of an
// existing base install), then records version in the matching
// sidecar.
func Install(fs stage.Filesystem, zipData []byte, destDir string, patch bool, version string) error {
	if !patch {
		if err := fs.RemoveAll(destDir); err != nil {
			return fmt.Errorf("comppack: clearing %s: %w", destDir, err)
		}
	}
	if err := fs.MkdirAll(destDir); err != nil {
		return fmt.Errorf("comppack: creating %s: %w", destDir, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("comppack: reading archive: %w", err)
	}

	for _, f := range zr.File {
		target := path.Join(destDir, f.Name)

		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(target); err != nil {
				return fmt.Errorf("comppack: creating directory %s: %w", target, err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("comppack: opening %s in archive: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("comppack: reading %s from archive: %w", f.Name, err)
		}
		if err := fs.WriteFile(target, data); err != nil {
			return fmt.Errorf("comppack: writing %s: %w", target, err)
		}
	}

	return WriteVersion(fs, destDir, patch, version)
}

// WriteVersion writes only the version sidecar, for callers updating
// a recorded version without re-extracting the archive.
func WriteVersion(fs stage.Filesystem, destDir string, patch bool, version string) error {
	p := path.Join(destDir, sidecarName(patch))
	if err := fs.WriteFile(p, []byte(version)); err != nil {
		return fmt.Errorf("comppack: writing %s: %w", p, err)
	}
	return nil
}

// Versions is the (present, base, patch) triple the UI badges
// installed titles with.
type Versions struct {
	Present bool
	Base    string
	Patch   string
}

// ReadVersions reports whether destDir exists and what base/patch
// sidecar versions it carries. A missing sidecar reads back as an
// empty version string, not an error.
func ReadVersions(fs stage.Filesystem, destDir string) Versions {
	v := Versions{Present: fs.Exists(destDir)}
	if data, err := fs.ReadFile(path.Join(destDir, sidecarName(false))); err == nil {
		v.Base = string(data)
	}
	if data, err := fs.ReadFile(path.Join(destDir, sidecarName(true))); err == nil {
		v.Patch = string(data)
	}
	return v
}
