package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/tphub/internal/config"
	"github.com/yanizio/tphub/internal/logger"
	"github.com/yanizio/tphub/internal/passwd"
)

const (
	secretBytes       = 32
	dashboardUser     = "admin"
	defaultStableName = "ddns"
	redacted          = "<redacted>"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the hub configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigGetCmd(a),
		newConfigSetCmd(a),
		newConfigInitCmd(a),
		newSetPortainerSecretCmd(a),
		newSetTraefikPasswordCmd(a),
		newConfigSchemaCmd(),
		newConfigTemplateCmd(),
	)
	return cmd
}

/*──────────────────────────── show / get / set ─────────────────────────────*/

func newConfigShowCmd(a *app) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.mgr.Current(cmd.Context())
			if err != nil {
				return err
			}
			raw, err := json.Marshal(s)
			if err != nil {
				return err
			}
			var out map[string]any
			if err := json.Unmarshal(raw, &out); err != nil {
				return err
			}
			if !reveal {
				for _, f := range config.Schema() {
					if f.Secret {
						out[f.Name] = redacted
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secret settings instead of "+redacted)
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <dotted.path>",
		Short: "Print a raw config.yml property as JSON",
		Args:  requireArgs(1, "<dotted.path>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.store.Property(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	var asString bool
	cmd := &cobra.Command{
		Use:   "set <dotted.path> <value>",
		Short: "Set a config.yml property (value is parsed as YAML)",
		Args:  requireArgs(2, "<dotted.path> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any = args[1]
			if !asString {
				if err := yaml.Unmarshal([]byte(args[1]), &v); err != nil {
					return fmt.Errorf("parse value: %w", err)
				}
			}
			if err := a.store.SetProperty(args[0], v); err != nil {
				return err
			}
			a.log.Infow("config property set", "path", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&asString, "string", false, "store the value as a string without YAML parsing")
	return cmd
}

/*──────────────────────────── init ─────────────────────────────────────────*/

type initAnswers struct {
	Email          string
	ParentDomain   string
	StableDNSName  string
	TraefikPass    string
	PortainerAgent string
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		ans   initAnswers
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config.yml with the required settings filled in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.store.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite the required settings)", a.store.Path())
			}
			if ans.Email == "" || ans.ParentDomain == "" || ans.TraefikPass == "" {
				if !logger.IsTTY(os.Stdin) {
					return errors.New("--email, --parent-domain, and --traefik-password are required when stdin is not a terminal")
				}
				if err := promptInit(&ans); err != nil {
					return err
				}
			}
			return a.writeInit(cmd, ans)
		},
	}
	f := cmd.Flags()
	f.StringVar(&ans.Email, "email", "", "Let's Encrypt owner email")
	f.StringVar(&ans.ParentDomain, "parent-domain", "", "parent DNS domain of the hub")
	f.StringVar(&ans.StableDNSName, "stable-dns-name", defaultStableName, "stable public DNS name (relative to the parent domain)")
	f.StringVar(&ans.TraefikPass, "traefik-password", "", "Traefik dashboard password for user "+dashboardUser)
	f.StringVar(&ans.PortainerAgent, "portainer-secret", "", "Portainer agent secret (default: random)")
	f.BoolVar(&force, "force", false, "overwrite the required settings of an existing config.yml")
	return cmd
}

func promptInit(ans *initAnswers) error {
	notEmpty := func(s string) error {
		if s == "" {
			return errors.New("a value is required")
		}
		return nil
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Let's Encrypt owner email").
			Value(&ans.Email).
			Validate(notEmpty),
		huh.NewInput().
			Title("Parent DNS domain").
			Description("Hub services get names under this domain, e.g. traefik.<domain>.").
			Value(&ans.ParentDomain).
			Validate(notEmpty),
		huh.NewInput().
			Title("Stable public DNS name").
			Value(&ans.StableDNSName),
		huh.NewInput().
			Title("Traefik dashboard password for " + dashboardUser).
			EchoMode(huh.EchoModePassword).
			Value(&ans.TraefikPass).
			Validate(notEmpty),
	)).Run()
}

func (a *app) writeInit(cmd *cobra.Command, ans initAnswers) error {
	secret := ans.PortainerAgent
	if secret == "" {
		var err error
		if secret, err = randomSecret(); err != nil {
			return err
		}
	}
	entry, err := passwd.Hash(dashboardUser, ans.TraefikPass)
	if err != nil {
		return err
	}
	stable := ans.StableDNSName
	if stable == "" {
		stable = defaultStableName
	}

	update := map[string]any{config.HubSection: map[string]any{
		"letsencrypt_owner_email":    ans.Email,
		"parent_dns_domain":          ans.ParentDomain,
		"stable_public_dns_name":     stable,
		"portainer_agent_secret":     secret,
		"traefik_dashboard_htpasswd": entry,
	}}
	if err := a.store.MergeProperties(update); err != nil {
		return err
	}
	if _, err := a.mgr.Current(cmd.Context()); err != nil {
		return fmt.Errorf("config.yml written but does not resolve: %w", err)
	}
	a.log.Infow("config initialized", "file", a.store.Path())
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.store.Path())
	return nil
}

/*──────────────────────────── secrets ──────────────────────────────────────*/

func newSetPortainerSecretCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-portainer-secret [secret]",
		Short: "Set portainer_agent_secret (default: a random value)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				var err error
				if secret, err = randomSecret(); err != nil {
					return err
				}
			}
			if err := a.store.SetProperty(config.HubSection+".portainer_agent_secret", secret); err != nil {
				return err
			}
			a.log.Infow("portainer agent secret updated")
			return nil
		},
	}
}

func newSetTraefikPasswordCmd(a *app) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "set-traefik-password",
		Short: "Hash a Traefik dashboard password and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				if !logger.IsTTY(os.Stdin) {
					return errors.New("--password is required when stdin is not a terminal")
				}
				err := huh.NewInput().
					Title("Traefik dashboard password for " + user).
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Run()
				if err != nil {
					return err
				}
			}
			entry, err := passwd.Hash(user, password)
			if err != nil {
				return err
			}
			if err := a.store.SetProperty(config.HubSection+".traefik_dashboard_htpasswd", entry); err != nil {
				return err
			}
			a.log.Infow("traefik dashboard password updated", "user", user)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", dashboardUser, "dashboard user name")
	cmd.Flags().StringVar(&password, "password", "", "dashboard password (prompted when empty)")
	return cmd
}

/*──────────────────────────── schema / template ────────────────────────────*/

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "schema",
		Short:       "Print the JSON Schema of the hub section",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "1"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
}

func newConfigTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "template",
		Short:       "Print the commented config.yml template",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipBootstrap: "1"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := config.GenerateYAML()
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

func randomSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// writeJSON prints v indented; maps come out with sorted keys.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
