// Command pkgj downloads, decrypts, and installs PS Vita/PSP/PSX
// packages, and decodes/encodes the zRIF licenses that accompany
// them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AuthurNero/pkgj/internal/config"
	"github.com/AuthurNero/pkgj/internal/pkglog"
)

var configPathFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pkgj",
		Short: "Download, decrypt, and install PS Vita/PSP/PSX packages",
	}
	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", ".", "Path to the directory containing config.yaml")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(rifCmd)
	rootCmd.AddCommand(compPackCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and wires up the global logger,
// exiting the process if either step fails.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPathFlag)
	if err != nil {
		fmt.Println("error loading config:", err)
		os.Exit(1)
	}
	if err := pkglog.Init(cfg); err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}
	return cfg
}
