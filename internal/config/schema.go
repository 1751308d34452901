// internal/config/schema.go
//
// Ordered field table for hub settings.
//
// Context
// -------
// Every setting is a `Field` with a resolve function.  `Resolver` walks
// `Schema()` in declaration order, handing each function the raw value
// from the highest-priority source (nil when no source defines it) plus
// a read-only view of the fields already resolved.  Defaults that derive
// from other settings therefore only ever look backwards.
//
// Notes
// -----
//   - The order below is part of the contract.  Moving a field ahead of a
//     field it reads breaks its default.
//   - Resolved shapes: strings stay strings, the resolver allow-list is a
//     sorted `[]string`, environment tables are `map[string]string`.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"dario.cat/mergo"
	"github.com/Masterminds/semver/v3"

	"github.com/yanizio/tphub/internal/merge"
	"github.com/yanizio/tphub/internal/version"
)

// ResolveFunc turns a raw source value into the field's resolved value.
type ResolveFunc func(raw any, prior Values) (any, error)

// Field describes one setting.
type Field struct {
	Name        string
	Description string
	Default     string // literal default, documentation only
	DefaultFrom string // name of the setting this one defaults to
	Explicit    bool   // write Default as the value in generated YAML
	Secret      bool   // may hold a vault: reference; redacted in errors
	Resolve     ResolveFunc
}

// Values is a read-only view of settings resolved so far.
type Values struct{ m map[string]any }

// Get returns the resolved value of name.
func (v Values) Get(name string) (any, bool) {
	x, ok := v.m[name]
	return x, ok
}

// String returns a resolved string setting, or "".
func (v Values) String(name string) string {
	s, _ := v.m[name].(string)
	return s
}

// Strings returns a resolved list setting.
func (v Values) Strings(name string) []string {
	s, _ := v.m[name].([]string)
	return s
}

// StringMap returns a copy of a resolved environment table.
func (v Values) StringMap(name string) map[string]string {
	src, _ := v.m[name].(map[string]string)
	out := make(map[string]string, len(src))
	maps.Copy(out, src)
	return out
}

// DefaultCertResolvers is the allow-list used when none is configured.
var DefaultCertResolvers = []string{"prod", "staging"}

var schema = []Field{
	{
		Name:        "hub_package_version",
		Description: "The version of the hub package this config.yml was written for.",
		Default:     version.Version,
		Explicit:    true,
		Resolve:     resolveVersion,
	},
	{
		Name: "allowed_cert_resolvers",
		Description: "Comma-separated list of certificate resolver names that may be used.  " +
			"Resolvers named here must be configured in the Traefik stack.",
		Default: strings.Join(DefaultCertResolvers, ","),
		Resolve: resolveAllowedCertResolvers,
	},
	{
		Name: "parent_dns_domain",
		Description: "The registered public DNS domain under which shared app subdomains are created, " +
			"for example \"example.com\".  Required.",
		Resolve: requiredDNSName("parent_dns_domain"),
	},
	{
		Name: "admin_parent_dns_domain",
		Description: "The public DNS domain under which administrative subdomains (traefik, portainer) " +
			"are created.",
		DefaultFrom: "parent_dns_domain",
		Resolve:     defaultedDNSName("admin_parent_dns_domain", "parent_dns_domain"),
	},
	{
		Name:        "letsencrypt_owner_email",
		Description: "The email address to use for Let's Encrypt registration.  Required.",
		Resolve:     requiredEmail("letsencrypt_owner_email"),
	},
	{
		Name:        "letsencrypt_owner_email_prod",
		Description: "The email address to use for the production Let's Encrypt resolver.",
		DefaultFrom: "letsencrypt_owner_email",
		Resolve:     defaultedEmail("letsencrypt_owner_email_prod", "letsencrypt_owner_email"),
	},
	{
		Name:        "letsencrypt_owner_email_staging",
		Description: "The email address to use for the staging Let's Encrypt resolver.",
		DefaultFrom: "letsencrypt_owner_email",
		Resolve:     defaultedEmail("letsencrypt_owner_email_staging", "letsencrypt_owner_email"),
	},
	{
		Name:        "default_cert_resolver",
		Description: "The certificate resolver used by apps that do not name one.",
		Default:     "staging",
		Resolve:     certResolver("default_cert_resolver", "staging", ""),
	},
	{
		Name:        "admin_cert_resolver",
		Description: "The certificate resolver used for administrative endpoints.",
		Default:     "prod",
		Resolve:     certResolver("admin_cert_resolver", "prod", ""),
	},
	{
		Name:        "traefik_dashboard_cert_resolver",
		Description: "The certificate resolver used for the Traefik dashboard.",
		DefaultFrom: "admin_cert_resolver",
		Resolve:     certResolver("traefik_dashboard_cert_resolver", "", "admin_cert_resolver"),
	},
	{
		Name:        "portainer_cert_resolver",
		Description: "The certificate resolver used for the Portainer web UI.",
		DefaultFrom: "admin_cert_resolver",
		Resolve:     certResolver("portainer_cert_resolver", "", "admin_cert_resolver"),
	},
	{
		Name: "portainer_agent_secret",
		Description: "A secret shared between Portainer and its agents.  At least 16 characters.  " +
			"Use 'hub config set-portainer-secret' to generate one.",
		Secret:  true,
		Resolve: resolvePortainerSecret,
	},
	{
		Name: "traefik_dashboard_htpasswd",
		Description: "The username and bcrypt password hash for the Traefik dashboard, as \"user:hash\".  " +
			"Use 'hub config set-traefik-password' to set it.",
		Secret:  true,
		Resolve: resolveHtpasswd,
	},
	{
		Name: "stable_public_dns_name",
		Description: "A stable DNS name that resolves to the router's public IP address.  A bare label " +
			"is placed under admin_parent_dns_domain.",
		Default: "ddns",
		Resolve: subdomain("stable_public_dns_name", "ddns", "admin_parent_dns_domain"),
	},
	{
		Name:        "traefik_dashboard_dns_name",
		Description: "The DNS name of the Traefik dashboard.  A bare label is placed under admin_parent_dns_domain.",
		Default:     "traefik",
		Resolve:     subdomain("traefik_dashboard_dns_name", "traefik", "admin_parent_dns_domain"),
	},
	{
		Name:        "portainer_dns_name",
		Description: "The DNS name of the Portainer web UI.  A bare label is placed under admin_parent_dns_domain.",
		Default:     "portainer",
		Resolve:     subdomain("portainer_dns_name", "portainer", "admin_parent_dns_domain"),
	},
	{
		Name: "shared_app_dns_name",
		Description: "The DNS name shared by path-routed apps.  A bare label is placed under " +
			"parent_dns_domain.",
		Default: "hub",
		Resolve: subdomain("shared_app_dns_name", "hub", "parent_dns_domain"),
	},
	{
		Name:        "shared_app_cert_resolver",
		Description: "The certificate resolver used for the shared app DNS name.",
		DefaultFrom: "default_cert_resolver",
		Resolve:     certResolver("shared_app_cert_resolver", "", "default_cert_resolver"),
	},
	{
		Name:        "base_stack_env",
		Description: "Environment variables passed to every stack.",
		Resolve:     envTable("base_stack_env", ""),
	},
	{
		Name:        "traefik_stack_env",
		Description: "Environment variables for the Traefik stack, on top of base_stack_env.",
		Resolve:     envTable("traefik_stack_env", "base_stack_env"),
	},
	{
		Name:        "portainer_stack_env",
		Description: "Environment variables for the Portainer stack, on top of base_stack_env.",
		Resolve:     envTable("portainer_stack_env", "base_stack_env"),
	},
	{
		Name:        "base_app_stack_env",
		Description: "Environment variables for app stacks, on top of base_stack_env.",
		Resolve:     envTable("base_app_stack_env", "base_stack_env"),
	},
	{
		Name:        "portainer_runtime_env",
		Description: "Environment variables Portainer passes to stacks it deploys, on top of base_app_stack_env.",
		Resolve:     envTable("portainer_runtime_env", "base_app_stack_env"),
	},
}

// Schema returns the ordered field table.
func Schema() []Field { return slices.Clone(schema) }

// FieldNames returns setting names in declaration order.
func FieldNames() []string {
	out := make([]string, len(schema))
	for i, f := range schema {
		out[i] = f.Name
	}
	return out
}

// secretFields mirrors Field.Secret for error construction.
var secretFields = map[string]bool{
	"portainer_agent_secret":     true,
	"traefik_dashboard_htpasswd": true,
}

/*──────────────────────────── resolve funcs ───────────────────────────────*/

func invalid(field string, raw any, reason, remedy string) error {
	return &ConfigurationError{Field: field, Value: raw, Secret: secretFields[field], Reason: reason, Remedy: remedy}
}

func asString(field string, raw any, remedy string) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", invalid(field, raw, fmt.Sprintf("must be a string, not %T", raw), remedy)
	}
	return s, nil
}

func resolveVersion(raw any, _ Values) (any, error) {
	if raw == nil {
		return version.Version, nil
	}
	s, err := asString("hub_package_version", raw, RemedyEditConfig)
	if err != nil {
		return nil, err
	}
	if _, err := semver.NewVersion(s); err != nil {
		return nil, invalid("hub_package_version", raw, "is not a semantic version", RemedyEditConfig)
	}
	return s, nil
}

func resolveAllowedCertResolvers(raw any, _ Values) (any, error) {
	const name = "allowed_cert_resolvers"
	var items []string
	switch x := raw.(type) {
	case nil:
		return slices.Clone(DefaultCertResolvers), nil
	case string:
		if x != "" {
			items = strings.Split(x, ",")
		}
	default:
		seq, ok := x.([]any)
		if !ok {
			if merge.KindOf(x) != merge.KindSequence {
				return nil, invalid(name, raw, "must be a comma-separated string or a list", RemedyEditConfig)
			}
			seq, _ = merge.ShallowMakeMutable(x).([]any)
		}
		for _, it := range seq {
			s, ok := it.(string)
			if !ok {
				return nil, invalid(name, raw, fmt.Sprintf("contains non-string entry %v", it), RemedyEditConfig)
			}
			items = append(items, s)
		}
	}

	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s == "" || strings.Contains(s, ".") {
			return nil, invalid(name, raw, fmt.Sprintf("contains invalid resolver name %q", s), RemedyEditConfig)
		}
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func requiredDNSName(name string) ResolveFunc {
	return func(raw any, _ Values) (any, error) {
		if raw == nil {
			return nil, invalid(name, nil, "is required", RemedyEditConfig)
		}
		return checkDNSName(name, raw)
	}
}

func defaultedDNSName(name, from string) ResolveFunc {
	return func(raw any, prior Values) (any, error) {
		if raw == nil {
			return prior.String(from), nil
		}
		return checkDNSName(name, raw)
	}
}

func checkDNSName(name string, raw any) (any, error) {
	s, err := asString(name, raw, RemedyEditConfig)
	if err != nil {
		return nil, err
	}
	if !isDNSName(s) {
		return nil, invalid(name, raw, "is not a valid DNS name", RemedyEditConfig)
	}
	return s, nil
}

func requiredEmail(name string) ResolveFunc {
	return func(raw any, _ Values) (any, error) {
		if raw == nil {
			return nil, invalid(name, nil, "is required", RemedyEditConfig)
		}
		return checkEmail(name, raw)
	}
}

func defaultedEmail(name, from string) ResolveFunc {
	return func(raw any, prior Values) (any, error) {
		if raw == nil {
			return prior.String(from), nil
		}
		return checkEmail(name, raw)
	}
}

func checkEmail(name string, raw any) (any, error) {
	s, err := asString(name, raw, RemedyEditConfig)
	if err != nil {
		return nil, err
	}
	if !isEmail(s) {
		return nil, invalid(name, raw, "is not a valid email address", RemedyEditConfig)
	}
	return s, nil
}

// certResolver defaults to literal def, or to the resolved value of from
// when def is empty.  The result must be in allowed_cert_resolvers.
func certResolver(name, def, from string) ResolveFunc {
	return func(raw any, prior Values) (any, error) {
		var s string
		if raw == nil {
			s = def
			if s == "" {
				s = prior.String(from)
			}
		} else {
			var err error
			if s, err = asString(name, raw, RemedyEditConfig); err != nil {
				return nil, err
			}
		}
		allowed := prior.Strings("allowed_cert_resolvers")
		if !slices.Contains(allowed, s) {
			shown := raw
			if shown == nil {
				shown = s
			}
			return nil, invalid(name, shown,
				fmt.Sprintf("is not one of the allowed cert resolvers %v", allowed), RemedyEditConfig)
		}
		return s, nil
	}
}

func resolvePortainerSecret(raw any, _ Values) (any, error) {
	const name = "portainer_agent_secret"
	if raw == nil {
		return nil, invalid(name, nil, "is required", RemedyPortainerSecret)
	}
	s, err := asString(name, raw, RemedyPortainerSecret)
	if err != nil {
		return nil, err
	}
	if len(s) < 16 {
		return nil, invalid(name, raw, "must be at least 16 characters", RemedyPortainerSecret)
	}
	return s, nil
}

func resolveHtpasswd(raw any, _ Values) (any, error) {
	const name = "traefik_dashboard_htpasswd"
	if raw == nil {
		return nil, invalid(name, nil, "is required", RemedyTraefikPassword)
	}
	s, err := asString(name, raw, RemedyTraefikPassword)
	if err != nil {
		return nil, err
	}
	user, hash, ok := strings.Cut(s, ":")
	if !ok || user == "" {
		return nil, invalid(name, raw, "must be of the form \"user:hash\"", RemedyTraefikPassword)
	}
	if len(hash) < 20 || !strings.HasPrefix(hash, "$2") {
		return nil, invalid(name, raw, "does not carry a bcrypt password hash", RemedyTraefikPassword)
	}
	return s, nil
}

// subdomain defaults to label def.  A value without a dot is a label and
// is placed under the resolved value of parent.
func subdomain(name, def, parent string) ResolveFunc {
	return func(raw any, prior Values) (any, error) {
		s := def
		if raw != nil {
			var err error
			if s, err = asString(name, raw, RemedyEditConfig); err != nil {
				return nil, err
			}
		}
		if !strings.Contains(s, ".") {
			s = s + "." + prior.String(parent)
		}
		if !isDNSName(s) {
			shown := raw
			if shown == nil {
				shown = s
			}
			return nil, invalid(name, shown, "is not a valid DNS name", RemedyEditConfig)
		}
		return s, nil
	}
}

// envTable overlays the raw table on the resolved table named base.  A
// string value is parsed as a JSON object, which is how the table arrives
// from a single environment variable.
func envTable(name, base string) ResolveFunc {
	return func(raw any, prior Values) (any, error) {
		own := map[string]string{}
		switch x := raw.(type) {
		case nil:
		case string:
			var parsed map[string]any
			if err := json.Unmarshal([]byte(x), &parsed); err != nil {
				return nil, invalid(name, raw, "must be a mapping or a JSON object", RemedyEditConfig)
			}
			if err := flattenEnv(name, raw, parsed, own); err != nil {
				return nil, err
			}
		default:
			m, ok := merge.ShallowMakeMutable(x).(map[string]any)
			if !ok {
				return nil, invalid(name, raw, "must be a mapping", RemedyEditConfig)
			}
			if err := flattenEnv(name, raw, m, own); err != nil {
				return nil, err
			}
		}
		if base == "" {
			return own, nil
		}
		out := prior.StringMap(base)
		if err := mergo.Merge(&out, own, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("overlay %s on %s: %w", name, base, err)
		}
		return out, nil
	}
}

func flattenEnv(name string, raw any, in map[string]any, out map[string]string) error {
	for k, val := range in {
		switch x := val.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case bool, int, int64, uint64, float64:
			out[k] = fmt.Sprint(x)
		default:
			return invalid(name, raw, fmt.Sprintf("entry %q must be a scalar", k), RemedyEditConfig)
		}
	}
	return nil
}
