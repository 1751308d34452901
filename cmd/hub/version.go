package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/tphub/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the hub package version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "1"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "hub %s\n", version.Version)
			return err
		},
	}
}
