package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AuthurNero/pkgj/internal/rif"
)

var rifOutputFlag string

var rifCmd = &cobra.Command{
	Use:   "rif",
	Short: "Decode or encode zRIF license strings",
}

var rifDecodeCmd = &cobra.Command{
	Use:   "decode <zrif>",
	Short: "Decode a zRIF string into a raw .rif license file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		license, err := rif.Decode(args[0])
		if err != nil {
			fmt.Println("error decoding license:", err)
			os.Exit(1)
		}
		if rifOutputFlag != "" {
			if err := os.WriteFile(rifOutputFlag, license, 0644); err != nil {
				fmt.Println("error writing license:", err)
				os.Exit(1)
			}
			return
		}
		os.Stdout.Write(license)
	},
}

var rifEncodeCmd = &cobra.Command{
	Use:   "encode <file>",
	Short: "Encode a raw .rif license file into a zRIF string",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		license, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Println("error reading license:", err)
			os.Exit(1)
		}
		zrif, err := rif.Encode(license)
		if err != nil {
			fmt.Println("error encoding license:", err)
			os.Exit(1)
		}
		fmt.Println(zrif)
	},
}

func init() {
	rifDecodeCmd.Flags().StringVarP(&rifOutputFlag, "output", "o", "", "File to write the decoded license to (default: stdout)")
	rifCmd.AddCommand(rifDecodeCmd)
	rifCmd.AddCommand(rifEncodeCmd)
}
