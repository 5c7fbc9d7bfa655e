package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AuthurNero/pkgj/internal/fetch"
	"github.com/AuthurNero/pkgj/internal/install"
	"github.com/AuthurNero/pkgj/internal/pkglog"
	"github.com/AuthurNero/pkgj/internal/pkgpipe"
	"github.com/AuthurNero/pkgj/internal/stage"
)

var resumeContentIDFlag string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue a previously cancelled or interrupted download",
	Run:   runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeContentIDFlag, "content-id", "", "Content id of the download to resume (required)")
	resumeCmd.Flags().StringVar(&installKindFlag, "kind", string(install.KindApp),
		"Install destination once the download completes: app, patch, addon, psm, pspgame, pspgame-iso")
}

func runResume(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if resumeContentIDFlag == "" {
		fmt.Println("--content-id is required")
		os.Exit(1)
	}

	state, err := loadResumeState(cfg.TempRoot, resumeContentIDFlag)
	if err != nil {
		fmt.Println("no saved resume state for", resumeContentIDFlag, "-", err)
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
			}).Info("resume progress")
		},
		Logger: pkglog.Log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, resumeState, runErr := pipeline.Run(ctx, state.ContentID, state.URL, state.RIF, state.Digest, state)
	if resumeState != nil {
		if saveErr := saveResumeState(cfg.TempRoot, resumeState); saveErr != nil {
			fmt.Println("download stopped again, but failed to save resume state:", saveErr)
			os.Exit(1)
		}
		fmt.Printf("download stopped again (%v); run `pkgj resume --content-id %s` to continue\n", runErr, resumeContentIDFlag)
		return
	}
	if runErr != nil {
		fmt.Println("resume failed:", runErr)
		os.Exit(1)
	}

	clearResumeState(cfg.TempRoot, resumeContentIDFlag)
	if err := dispatch(ctx, cfg, fs, result); err != nil {
		fmt.Println("install failed:", err)
		os.Exit(1)
	}
	fmt.Printf("installed %s\n", resumeContentIDFlag)
}
