package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AuthurNero/pkgj/internal/config"
	"github.com/AuthurNero/pkgj/internal/fetch"
	"github.com/AuthurNero/pkgj/internal/install"
	"github.com/AuthurNero/pkgj/internal/install/shelldb"
	"github.com/AuthurNero/pkgj/internal/pkglog"
	"github.com/AuthurNero/pkgj/internal/pkgpipe"
	"github.com/AuthurNero/pkgj/internal/rif"
	"github.com/AuthurNero/pkgj/internal/stage"
)

var (
	installURLFlag       string
	installContentIDFlag string
	installZRIFFlag      string
	installRIFFileFlag   string
	installKindFlag      string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download a package and install it to its final destination",
	Run:   runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installURLFlag, "url", "", "URL to download the package from (required)")
	installCmd.Flags().StringVar(&installContentIDFlag, "content-id", "", "36-character content id (required)")
	installCmd.Flags().StringVar(&installZRIFFlag, "rif", "", "License in zRIF format")
	installCmd.Flags().StringVar(&installRIFFileFlag, "rif-file", "", "Path to a raw .rif license file")
	installCmd.Flags().StringVar(&installKindFlag, "kind", string(install.KindApp),
		"Install destination: app, patch, addon, psm, pspgame, pspgame-iso")
}

func runInstall(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if installURLFlag == "" || installContentIDFlag == "" {
		fmt.Println("--url and --content-id are required")
		os.Exit(1)
	}

	rifBytes, err := resolveRIF()
	if err != nil {
		fmt.Println("error resolving license:", err)
		os.Exit(1)
	}

	fs := stage.NewOSFilesystem()
	pipeline := pkgpipe.New(pkgpipe.Options{
		FS: fs,
		NewStream: func() fetch.Stream {
			return fetch.NewHTTPStream(fetch.Options{
				Timeout:         cfg.HTTP.Timeout,
				RetryAttempts:   cfg.HTTP.RetryAttempts,
				RetryBackoff:    cfg.HTTP.RetryBackoff,
				RetryMaxBackoff: cfg.HTTP.RetryMaxBackoff,
			})
		},
		TempRoot:       cfg.TempRoot,
		HeadBufferSize: cfg.Download.HeadBufferSize,
		ProgressEvery:  cfg.Download.ProgressInterval,
		OnProgress: func(p pkgpipe.Progress) {
			pkglog.Log.WithFields(map[string]interface{}{
				"phase": p.Phase,
				"item":  p.ItemName,
				"bytes": p.DownloadOffset,
				"total": p.TotalSize,
			}).Info("download progress")
		},
		Logger: pkglog.Log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, resumeState, runErr := pipeline.Run(ctx, installContentIDFlag, installURLFlag, rifBytes, nil, nil)
	if resumeState != nil {
		if saveErr := saveResumeState(cfg.TempRoot, resumeState); saveErr != nil {
			fmt.Println("download stopped, but failed to save resume state:", saveErr)
			os.Exit(1)
		}
		if runErr == pkgpipe.ErrCancelled {
			fmt.Printf("download cancelled; run `pkgj resume --content-id %s` to continue\n", installContentIDFlag)
		} else {
			fmt.Printf("download interrupted (%v); run `pkgj resume --content-id %s` to continue\n", runErr, installContentIDFlag)
		}
		return
	}
	if runErr != nil {
		fmt.Println("download failed:", runErr)
		os.Exit(1)
	}

	clearResumeState(cfg.TempRoot, installContentIDFlag)
	if err := dispatch(ctx, cfg, fs, result); err != nil {
		fmt.Println("install failed:", err)
		os.Exit(1)
	}
	fmt.Printf("installed %s\n", installContentIDFlag)
}

func resolveRIF() ([]byte, error) {
	if installZRIFFlag != "" && installRIFFileFlag != "" {
		return nil, fmt.Errorf("use either --rif or --rif-file, not both")
	}
	if installZRIFFlag != "" {
		return rif.Decode(installZRIFFlag)
	}
	if installRIFFileFlag != "" {
		return os.ReadFile(installRIFFileFlag)
	}
	return nil, nil
}

// dispatch routes a completed download to its final install
// destination, opening the shell database only when the install kind
// actually needs it.
func dispatch(ctx context.Context, cfg *config.Config, fs stage.Filesystem, result *pkgpipe.Result) error {
	dest := install.Destinations{Ux0Root: cfg.Ux0Root, PSPPartition: cfg.PSPPartition}
	kind := install.Kind(installKindFlag)

	var db install.PatchVersionUpdater
	if kind == install.KindPatch {
		handle, err := shelldb.Open(cfg.ShellDBPath, false)
		if err != nil {
			return fmt.Errorf("opening shell database: %w", err)
		}
		defer handle.Close()
		db = handle
	}

	promoter := &install.LoggingPromoter{Logger: pkglog.Log}

	target, err := install.Route(kind, install.ContentID(result.ContentID), result.Root, result.ContentType, dest, promoter, db)
	if err != nil {
		return err
	}
	return target.Install(ctx, fs)
}
