package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AuthurNero/pkgj/internal/install"
	"github.com/AuthurNero/pkgj/internal/stage"
)

var (
	compPackContentIDFlag string
	compPackFileFlag      string
	compPackVersionFlag   string
	compPackPatchFlag     bool
)

var compPackCmd = &cobra.Command{
	Use:   "comppack",
	Short: "Install a compatibility pack from a local .ppk archive",
	Run:   runCompPack,
}

func init() {
	compPackCmd.Flags().StringVar(&compPackContentIDFlag, "content-id", "", "36-character content id of the title the pack applies to (required)")
	compPackCmd.Flags().StringVar(&compPackFileFlag, "file", "", "Path to the .ppk archive (required)")
	compPackCmd.Flags().StringVar(&compPackVersionFlag, "version", "", "Compatibility pack version string to record (required)")
	compPackCmd.Flags().BoolVar(&compPackPatchFlag, "patch", false, "Layer onto an existing base pack instead of replacing it")
}

func runCompPack(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if compPackContentIDFlag == "" || compPackFileFlag == "" || compPackVersionFlag == "" {
		fmt.Println("--content-id, --file, and --version are required")
		os.Exit(1)
	}

	zipData, err := os.ReadFile(compPackFileFlag)
	if err != nil {
		fmt.Println("error reading pack archive:", err)
		os.Exit(1)
	}

	dest := install.Destinations{Ux0Root: cfg.Ux0Root, PSPPartition: cfg.PSPPartition}
	target, err := install.RouteCompPack(install.ContentID(compPackContentIDFlag), zipData, compPackPatchFlag, compPackVersionFlag, dest)
	if err != nil {
		fmt.Println("error routing compatibility pack:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fs := stage.NewOSFilesystem()
	if err := target.Install(ctx, fs); err != nil {
		fmt.Println("comppack install failed:", err)
		os.Exit(1)
	}
	fmt.Printf("installed compatibility pack for %s\n", compPackContentIDFlag)
}
