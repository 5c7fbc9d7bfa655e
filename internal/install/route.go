package install

import (
	"fmt"
	"path"

	"github.com/AuthurNero/pkgj/internal/pkgpipe"
)

// Kind selects which Target a staged package resolves to. The
// dispatcher never infers this from the PKG's own content type alone;
// the caller already knows it from whatever catalog listing the
// package came from, and tells the dispatcher which install path to
// take.
type Kind string

const (
	KindApp      Kind = "app"
	KindPatch    Kind = "patch"
	KindAddon    Kind = "addon"
	KindPSM      Kind = "psm"
	KindPSPGame  Kind = "pspgame"
	KindPSPISO   Kind = "pspgame-iso"
	KindCompPack Kind = "comppack"
)

// Destinations bundles the device mount points every Target variant
// resolves its final path against.
type Destinations struct {
	Ux0Root      string
	PSPPartition string
}

// Route builds the Target a staged package of the given kind and
// content type should install through, rejecting combinations that
// can never legitimately occur (e.g. asking for a patch install of
// add-on content).
func Route(kind Kind, contentID ContentID, stagedPath string, contentType pkgpipe.ContentType, dest Destinations, promoter Promoter, db PatchVersionUpdater) (Target, error) {
	switch kind {
	case KindApp:
		if contentType != pkgpipe.ContentTypeVitaGame && contentType != pkgpipe.ContentTypeVitaAddon {
			return nil, preconditionErr(fmt.Sprintf("content type %d cannot be installed as an application", contentType))
		}
		return AppTarget{StagedPath: stagedPath, Promoter: promoter}, nil

	case KindPatch:
		if contentType != pkgpipe.ContentTypeVitaGame {
			return nil, preconditionErr(fmt.Sprintf("content type %d cannot be installed as a patch", contentType))
		}
		return PatchTarget{
			ContentID:  contentID,
			StagedPath: stagedPath,
			PatchRoot:  path.Join(dest.Ux0Root, "patch"),
			DB:         db,
		}, nil

	case KindAddon:
		if contentType != pkgpipe.ContentTypeVitaAddon {
			return nil, preconditionErr(fmt.Sprintf("content type %d is not add-on content", contentType))
		}
		return AppTarget{StagedPath: stagedPath, Promoter: promoter}, nil

	case KindPSM:
		return PSMTarget{
			ContentID:  contentID,
			StagedPath: stagedPath,
			PSMRoot:    path.Join(dest.Ux0Root, "psm"),
		}, nil

	case KindPSPGame:
		if contentType != pkgpipe.ContentTypePSXGame {
			return nil, preconditionErr(fmt.Sprintf("content type %d is not a handheld disc game", contentType))
		}
		return PSPGameTarget{ContentID: contentID, StagedPath: stagedPath, Partition: dest.PSPPartition}, nil

	case KindPSPISO:
		if contentType != pkgpipe.ContentTypePSXGame {
			return nil, preconditionErr(fmt.Sprintf("content type %d is not a handheld ISO", contentType))
		}
		return PSPGameAsISOTarget{ContentID: contentID, StagedPath: stagedPath, Partition: dest.PSPPartition}, nil

	case KindCompPack:
		return nil, preconditionErr("comppack installs are not staged through pkgpipe; use RouteCompPack")

	default:
		return nil, preconditionErr("unknown install kind " + string(kind))
	}
}

// RouteCompPack builds the Target for a compatibility-pack install.
// Unlike the other Kind variants, a comp pack's source is a
// user-supplied local archive rather than a pkgpipe download, so it
// takes its payload directly instead of a staged directory path.
func RouteCompPack(contentID ContentID, zipData []byte, patch bool, version string, dest Destinations) (Target, error) {
	titleID := contentID.TitleID()
	if titleID == "" {
		return nil, preconditionErr("invalid content id " + string(contentID))
	}
	return CompPackTarget{
		DestDir: path.Join(dest.Ux0Root, "rePatch", titleID),
		ZipData: zipData,
		Patch:   patch,
		Version: version,
	}, nil
}
