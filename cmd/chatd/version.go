package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"chatd/internal/inference"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			goVersion := "unknown"
			if bi, ok := debug.ReadBuildInfo(); ok {
				goVersion = bi.GoVersion
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "chatd %s (%s, in-process llama: %t)\n", version, goVersion, inference.LlamaBuilt())
			return err
		},
	}
}
