package install

import (
	"testing"

	"github.com/AuthurNero/pkgj/internal/pkgpipe"
)

func TestRouteAppAcceptsGameAndAddon(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	for _, ct := range []pkgpipe.ContentType{pkgpipe.ContentTypeVitaGame, pkgpipe.ContentTypeVitaAddon} {
		target, err := Route(KindApp, testContentID, "/staging/x", ct, dest, &fakePromoter{}, &fakeDB{})
		if err != nil {
			t.Fatalf("Route(app, %v): %v", ct, err)
		}
		if _, ok := target.(AppTarget); !ok {
			t.Fatalf("Route(app, %v) = %T, want AppTarget", ct, target)
		}
	}
}

func TestRouteRejectsMismatchedKindAndContentType(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	_, err := Route(KindPatch, testContentID, "/staging/x", pkgpipe.ContentTypeVitaAddon, dest, &fakePromoter{}, &fakeDB{})
	if err == nil {
		t.Fatalf("expected an error routing add-on content through a patch install")
	}
	if ierr, ok := err.(*InstallError); !ok || ierr.Category != CategoryPrecondition {
		t.Fatalf("err = %v, want a precondition InstallError", err)
	}
}

func TestRoutePatchBuildsCorrectDestinations(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	target, err := Route(KindPatch, testContentID, "/staging/x", pkgpipe.ContentTypeVitaGame, dest, &fakePromoter{}, &fakeDB{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	patch, ok := target.(PatchTarget)
	if !ok {
		t.Fatalf("Route(patch, ...) = %T, want PatchTarget", target)
	}
	if patch.PatchRoot != "/ux0/patch" {
		t.Errorf("PatchRoot = %q, want /ux0/patch", patch.PatchRoot)
	}
}

func TestRoutePSPGameAndISORequireContentType6(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	if _, err := Route(KindPSPGame, testContentID, "/staging/x", pkgpipe.ContentTypeVitaGame, dest, &fakePromoter{}, &fakeDB{}); err == nil {
		t.Fatalf("expected an error routing a Vita game through the PSP game target")
	}
	target, err := Route(KindPSPGame, testContentID, "/staging/x", pkgpipe.ContentTypePSXGame, dest, &fakePromoter{}, &fakeDB{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if _, ok := target.(PSPGameTarget); !ok {
		t.Fatalf("Route(pspgame, ...) = %T, want PSPGameTarget", target)
	}

	if _, err := Route(KindPSPISO, testContentID, "/staging/x", pkgpipe.ContentTypeVitaGame, dest, &fakePromoter{}, &fakeDB{}); err == nil {
		t.Fatalf("expected an error routing a Vita game through the PSP ISO target")
	}
	target, err = Route(KindPSPISO, testContentID, "/staging/x", pkgpipe.ContentTypePSXGame, dest, &fakePromoter{}, &fakeDB{})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if _, ok := target.(PSPGameAsISOTarget); !ok {
		t.Fatalf("Route(pspgame-iso, ...) = %T, want PSPGameAsISOTarget", target)
	}
}

func TestRouteViaKindCompPackIsRejected(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	_, err := Route(KindCompPack, testContentID, "/staging/x", pkgpipe.ContentTypeVitaGame, dest, &fakePromoter{}, &fakeDB{})
	if err == nil {
		t.Fatalf("expected an error; comppack installs should go through RouteCompPack")
	}
}

func TestRouteCompPackBuildsDestDir(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	target, err := RouteCompPack(testContentID, []byte("zip"), true, "01.03", dest)
	if err != nil {
		t.Fatalf("RouteCompPack: %v", err)
	}
	pack, ok := target.(CompPackTarget)
	if !ok {
		t.Fatalf("RouteCompPack(...) = %T, want CompPackTarget", target)
	}
	if pack.DestDir != "/ux0/rePatch/PCSB00001" {
		t.Errorf("DestDir = %q, want /ux0/rePatch/PCSB00001", pack.DestDir)
	}
	if !pack.Patch || pack.Version != "01.03" {
		t.Errorf("RouteCompPack did not thread through Patch/Version, got %+v", pack)
	}
}

func TestRouteCompPackRejectsInvalidContentID(t *testing.T) {
	dest := Destinations{Ux0Root: "/ux0", PSPPartition: "ux0:"}
	if _, err := RouteCompPack(ContentID("short"), []byte("zip"), false, "01.00", dest); err == nil {
		t.Fatalf("expected an error for an invalid content id")
	}
}
