package install

import (
	"context"
	"fmt"
	"path"

	"github.com/AuthurNero/pkgj/internal/install/comppack"
	"github.com/AuthurNero/pkgj/internal/stage"
)

// Target is implemented by each install destination variant. A staged
// package resolves to exactly one Target before Install is called on
// it; Route picks the variant from the caller-supplied Kind and
// rejects kinds that do not fit the package's content type.
type Target interface {
	Install(ctx context.Context, fs stage.Filesystem) error
}

// AppTarget installs a fresh Vita application or add-on package by
// handing the staged directory to the host promoter. Both
// application-class and add-on-class content route through this
// target unchanged; the promoter, not this module, decides whether
// the result lands under ux0:app or ux0:addcont.
type AppTarget struct {
	StagedPath string
	Promoter   Promoter
}

func (t AppTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	if err := t.Promoter.Promote(ctx, t.StagedPath); err != nil {
		return preconditionErr(fmt.Sprintf("promoting %s: %v", t.StagedPath, err))
	}
	return nil
}

// PatchVersionUpdater is the subset of shelldb.DB a PatchTarget needs,
// broken out so tests can supply a fake instead of a real database.
type PatchVersionUpdater interface {
	UpdatePatchVersion(titleID, version string) error
}

// PatchTarget installs an update to a title that is already present:
// any previous patch directory for the title is deleted outright, the
// staged content takes its place under ux0:patch, and the shell's app.db is updated with
// the version string read back out of the new param.sfo.
type PatchTarget struct {
	ContentID  ContentID
	StagedPath string
	PatchRoot  string
	DB         PatchVersionUpdater
}

func (t PatchTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	titleID := t.ContentID.TitleID()
	if titleID == "" {
		return preconditionErr("invalid content id " + string(t.ContentID))
	}
	dest := path.Join(t.PatchRoot, titleID)

	if err := fs.RemoveAll(dest); err != nil {
		return ioErr("deleting previous patch at "+dest, err)
	}
	if err := fs.MkdirAll(t.PatchRoot); err != nil {
		return ioErr("creating "+t.PatchRoot, err)
	}
	if err := fs.Rename(t.StagedPath, dest); err != nil {
		return ioErr(fmt.Sprintf("renaming %s to %s", t.StagedPath, dest), err)
	}

	sfoData, err := fs.ReadFile(path.Join(dest, "sce_sys", "param.sfo"))
	if err != nil {
		return ioErr("reading param.sfo", err)
	}
	entries, err := ParseSFO(sfoData)
	if err != nil {
		return preconditionErr("parsing param.sfo: " + err.Error())
	}
	version := entries["APP_VER"]
	if version == "" {
		return preconditionErr("param.sfo has no APP_VER entry")
	}
	if len(version) != 5 {
		return preconditionErr(fmt.Sprintf("APP_VER %q has unexpected length %d, want 5", version, len(version)))
	}

	if err := t.DB.UpdatePatchVersion(titleID, version); err != nil {
		return dbErr("updating shell database", err)
	}
	return nil
}

// PSMTarget installs a PlayStation Mobile title by moving its staged
// directory under the PSM runtime's title tree.
type PSMTarget struct {
	ContentID  ContentID
	StagedPath string
	PSMRoot    string
}

func (t PSMTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	titleID := t.ContentID.TitleID()
	if titleID == "" {
		return preconditionErr("invalid content id " + string(t.ContentID))
	}
	if err := fs.MkdirAll(t.PSMRoot); err != nil {
		return ioErr("creating "+t.PSMRoot, err)
	}
	dest := path.Join(t.PSMRoot, titleID)
	if err := fs.Rename(t.StagedPath, dest); err != nil {
		return ioErr(fmt.Sprintf("renaming %s to %s", t.StagedPath, dest), err)
	}
	return nil
}

// PSPGameTarget installs a PSP or PSX disc game by moving its staged
// directory into the PSP emulator's game tree.
type PSPGameTarget struct {
	ContentID  ContentID
	StagedPath string
	// Partition is the device mount point the PSP emulator's game
	// tree lives under, e.g. "ux0:" or "uma0:".
	Partition string
}

func pspGameRoot(partition string) string {
	return path.Join(partition, "pspemu", "PSP", "GAME")
}

func pspISORoot(partition string) string {
	return path.Join(partition, "pspemu", "ISO")
}

func (t PSPGameTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	titleID := t.ContentID.TitleID()
	if titleID == "" {
		return preconditionErr("invalid content id " + string(t.ContentID))
	}
	gameRoot := pspGameRoot(t.Partition)
	if err := fs.MkdirAll(gameRoot); err != nil {
		return ioErr("creating "+gameRoot, err)
	}
	dest := path.Join(gameRoot, titleID)
	if err := fs.Rename(t.StagedPath, dest); err != nil {
		return ioErr(fmt.Sprintf("renaming %s to %s", t.StagedPath, dest), err)
	}
	return nil
}

// PSPGameAsISOTarget installs a PSX disc image. pkgpipe stages it as
// EBOOT.PBP; this target renames EBOOT.PBP into the emulator's ISO
// tree, moves CONTENT.DAT and PSP-KEY.EDAT into a matching GAME
// directory when they are present in the staged directory, and then
// removes the staged directory together with anything still left in
// it.
type PSPGameAsISOTarget struct {
	ContentID  ContentID
	StagedPath string
	Partition  string
}

func (t PSPGameAsISOTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	titleID := t.ContentID.TitleID()
	if titleID == "" {
		return preconditionErr("invalid content id " + string(t.ContentID))
	}

	isoRoot := pspISORoot(t.Partition)
	if err := fs.MkdirAll(isoRoot); err != nil {
		return ioErr("creating "+isoRoot, err)
	}

	eboot := path.Join(t.StagedPath, "EBOOT.PBP")
	isoDest := path.Join(isoRoot, titleID+".iso")
	if err := fs.Rename(eboot, isoDest); err != nil {
		return ioErr(fmt.Sprintf("renaming %s to %s", eboot, isoDest), err)
	}

	content := path.Join(t.StagedPath, "CONTENT.DAT")
	pspKey := path.Join(t.StagedPath, "PSP-KEY.EDAT")
	hasContent := fs.Exists(content)
	hasPSPKey := fs.Exists(pspKey)

	if hasContent || hasPSPKey {
		dest := path.Join(pspGameRoot(t.Partition), titleID)
		if err := fs.MkdirAll(dest); err != nil {
			return ioErr("creating "+dest, err)
		}
		if hasContent {
			if err := fs.Rename(content, path.Join(dest, "CONTENT.DAT")); err != nil {
				return ioErr("moving CONTENT.DAT", err)
			}
		}
		if hasPSPKey {
			if err := fs.Rename(pspKey, path.Join(dest, "PSP-KEY.EDAT")); err != nil {
				return ioErr("moving PSP-KEY.EDAT", err)
			}
		}
	}

	if err := fs.RemoveAll(t.StagedPath); err != nil {
		return ioErr("removing staged directory "+t.StagedPath, err)
	}
	return nil
}

// CompPackTarget installs a compatibility pack: a user-supplied .ppk
// archive unzipped into the title's rePatch directory, replacing
// whatever is there unless Patch is set, in which case it layers on
// top of an existing base install.
type CompPackTarget struct {
	DestDir string
	ZipData []byte
	Patch   bool
	Version string
}

func (t CompPackTarget) Install(ctx context.Context, fs stage.Filesystem) error {
	if err := comppack.Install(fs, t.ZipData, t.DestDir, t.Patch, t.Version); err != nil {
		return archiveErr("installing compatibility pack", err)
	}
	return nil
}

// IsAddonInstalled reports whether the add-on content this content id
// names already exists under addonRoot. Add-on packages are installed
// through AppTarget's promoter call like applications are; this is
// the pre-download existence check the dispatcher runs instead of a
// direct filesystem placement.
func IsAddonInstalled(fs stage.Filesystem, addonRoot string, contentID ContentID) bool {
	if !contentID.valid() {
		return false
	}
	return fs.Exists(path.Join(addonRoot, contentID.TitleID(), contentID.Entitlement()))
}

// IsPSMInstalled reports whether a PSM title is already present under
// psmRoot.
func IsPSMInstalled(fs stage.Filesystem, psmRoot string, contentID ContentID) bool {
	if !contentID.valid() {
		return false
	}
	return fs.Exists(path.Join(psmRoot, contentID.TitleID()))
}

// IsPSPInstalled reports whether a PSP disc game is already present
// under partition, as either a GAME directory or an ISO.
func IsPSPInstalled(fs stage.Filesystem, partition string, contentID ContentID) bool {
	if !contentID.valid() {
		return false
	}
	titleID := contentID.TitleID()
	if fs.Exists(path.Join(pspGameRoot(partition), titleID)) {
		return true
	}
	return fs.Exists(path.Join(pspISORoot(partition), titleID+".iso"))
}

// IsPSXInstalled reports whether a PSX disc game is already present
// under partition. Unlike IsPSPInstalled it checks only the GAME
// directory: a PSX title installed as an ISO is addressed by its
// CONTENT.DAT/PSP-KEY.EDAT sidecars living there, not by the ISO path
// alone.
func IsPSXInstalled(fs stage.Filesystem, partition string, contentID ContentID) bool {
	if !contentID.valid() {
		return false
	}
	return fs.Exists(path.Join(pspGameRoot(partition), contentID.TitleID()))
}

// ListInstalledTitles returns the title ids found directly under
// appRoot, for the library listing the UI builds on startup.
func ListInstalledTitles(fs stage.Filesystem, appRoot string) ([]string, error) {
	names, err := fs.ListDir(appRoot)
	if err != nil {
		return nil, ioErr("listing "+appRoot, err)
	}
	return names, nil
}
