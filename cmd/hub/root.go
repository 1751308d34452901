package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/tphub/internal/config"
	"github.com/yanizio/tphub/internal/configyml"
	"github.com/yanizio/tphub/internal/logger"
	"github.com/yanizio/tphub/internal/projdir"
	"github.com/yanizio/tphub/internal/vault"
)

// skipBootstrap marks commands that run without a project.
const skipBootstrap = "skip-bootstrap"

// app is the per-invocation state shared by subcommands.
type app struct {
	projectDir string
	logLevel   string

	dirs  projdir.Dirs
	log   *zap.SugaredLogger
	store *configyml.Store
	mgr   *config.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "hub",
		Short:         "Provision and configure a Traefik + Portainer hub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipBootstrap] != "" {
				return nil
			}
			return a.bootstrap()
		},
	}
	root.PersistentFlags().StringVar(&a.projectDir, "project-dir", "", "hub project root (default: $"+projdir.EnvRoot+" or nearest parent with config.yml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newConfigCmd(a),
		newBuildCmd(a),
		newResolveDNSCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) bootstrap() error {
	level, err := logger.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}

	if a.projectDir != "" {
		a.dirs, err = projdir.At(a.projectDir)
	} else {
		a.dirs, err = projdir.Find()
	}
	if err != nil {
		return err
	}

	if a.log, err = logger.New(a.dirs.LogDir(), level, logger.IsTTY(os.Stderr)); err != nil {
		return err
	}

	var opts []config.ManagerOption
	secrets, err := vault.FromEnv()
	if err != nil {
		return err
	}
	if secrets != nil {
		opts = append(opts, config.WithResolverOptions(config.WithSecrets(secrets)))
	}

	a.store = configyml.New(a.dirs.ConfigFile(),
		configyml.WithTemplate(config.GenerateYAML),
		configyml.WithFileLock(),
	)
	a.mgr = config.NewProjectManager(a.store, a.dirs.DotenvFile(), opts...)
	a.store.OnSave(a.mgr.Invalidate)

	a.log.Debugw("hub project", "root", a.dirs.Root, "config", a.store.Path())
	return nil
}

// requireArgs is cobra.ExactArgs with the hub's error wording.
func requireArgs(n int, names string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New("expected arguments: " + names)
		}
		return nil
	}
}
