package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// this is set by goreleaser
var version = "DEV"

func main() {
	root := &cobra.Command{
		Use:           "route-cache",
		Short:         "Caching reverse proxy with per-route cache settings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newPurgeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
