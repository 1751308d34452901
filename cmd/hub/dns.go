package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanizio/tphub/internal/dnsutil"
)

func newResolveDNSCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:         "resolve-dns <name>",
		Short:       "Print the public A records of a DNS name",
		Args:        requireArgs(1, "<name>"),
		Annotations: map[string]string{skipBootstrap: "1"},
		RunE: func(cmd *cobra.Command, args []string) error {
			r := dnsutil.New(dnsutil.WithBaseURL(server), dnsutil.WithTimeout(timeout))
			addrs, err := r.ResolveA(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, ip := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), ip)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", dnsutil.DefaultBaseURL, "DNS-over-HTTPS JSON API base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}
