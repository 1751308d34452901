package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yanizio/tphub/internal/builder"
	"github.com/yanizio/tphub/internal/metrics"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		mode  string
		force bool
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render the traefik and portainer stacks into build/stacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := builder.ParseMode(mode)
			if err != nil {
				return err
			}
			b := builder.New(a.dirs, builder.WithMode(m), builder.WithForce(force))
			if err := a.build(cmd.Context(), b, cmd.OutOrStdout()); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return a.watchAndBuild(cmd.Context(), builder.New(a.dirs, builder.WithMode(m)), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", builder.ModeLink.String(), "how compose files reach build/: link or copy")
	cmd.Flags().BoolVar(&force, "force", false, "rebuild stacks even when settings are unchanged")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and rebuild whenever config.yml changes")
	return cmd
}

func (a *app) build(ctx context.Context, b *builder.Builder, out io.Writer) error {
	s, err := a.mgr.Current(ctx)
	if err != nil {
		return err
	}
	results, buildErr := b.BuildHub(ctx, s)
	for _, r := range results {
		rel, relErr := filepath.Rel(a.dirs.Root, r.Dir)
		if relErr != nil {
			rel = r.Dir
		}
		state := "built"
		if r.Skipped {
			state = "up to date"
		}
		fmt.Fprintf(out, "%s: %s (%s)\n", r.Stack, state, rel)
	}
	if err := metrics.WriteTextfile(a.dirs.MetricsFile()); err != nil {
		a.log.Warnw("metrics textfile not written", "file", a.dirs.MetricsFile(), "err", err)
	}
	return buildErr
}

// watchAndBuild rebuilds after every change to config.yml until ctx is done.
// Build failures are logged and the watch continues.
func (a *app) watchAndBuild(ctx context.Context, b *builder.Builder, out io.Writer) error {
	changed := make(chan struct{}, 1)
	a.store.OnSave(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err := a.store.Watch(ctx); err != nil {
		return err
	}
	a.log.Infow("watching config", "file", a.store.Path())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := a.build(ctx, b, out); err != nil {
				a.log.Errorw("rebuild failed", "err", err)
			}
		}
	}
}
