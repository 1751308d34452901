// internal/config/model.go
//
// Typed model for resolved hub settings.
//
// Context
// -------
// `Settings` is the immutable snapshot built by `Resolver.Resolve` after
// every field in `Schema()` has been resolved in declaration order.  The
// resolved value map is decoded into this struct through the `koanf` tags
// and then checked once more with go-playground/validator, so a Settings
// value that exists is always complete.
//
// Notes
// -----
//   - Treat a Settings value as read-only.  Slices and maps are shared
//     with the cache; use the `*Env` accessors when a private copy is
//     needed.  "Updating" a setting means writing config.yml and letting
//     the Manager build a new snapshot.
//   - Struct tags use `koanf:"…"`, the same names as config.yml keys and
//     `TP_HUB_` environment variables.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
)

// Settings is the fully-resolved hub configuration.
type Settings struct {
	HubPackageVersion    string   `koanf:"hub_package_version" json:"hub_package_version" validate:"required"`
	AllowedCertResolvers []string `koanf:"allowed_cert_resolvers" json:"allowed_cert_resolvers"`

	ParentDNSDomain      string `koanf:"parent_dns_domain" json:"parent_dns_domain" validate:"required,fqdn"`
	AdminParentDNSDomain string `koanf:"admin_parent_dns_domain" json:"admin_parent_dns_domain" validate:"required,fqdn"`

	LetsencryptOwnerEmail        string `koanf:"letsencrypt_owner_email" json:"letsencrypt_owner_email" validate:"required,email"`
	LetsencryptOwnerEmailProd    string `koanf:"letsencrypt_owner_email_prod" json:"letsencrypt_owner_email_prod" validate:"required,email"`
	LetsencryptOwnerEmailStaging string `koanf:"letsencrypt_owner_email_staging" json:"letsencrypt_owner_email_staging" validate:"required,email"`

	DefaultCertResolver          string `koanf:"default_cert_resolver" json:"default_cert_resolver" validate:"required"`
	AdminCertResolver            string `koanf:"admin_cert_resolver" json:"admin_cert_resolver" validate:"required"`
	TraefikDashboardCertResolver string `koanf:"traefik_dashboard_cert_resolver" json:"traefik_dashboard_cert_resolver" validate:"required"`
	PortainerCertResolver        string `koanf:"portainer_cert_resolver" json:"portainer_cert_resolver" validate:"required"`

	PortainerAgentSecret     string `koanf:"portainer_agent_secret" json:"portainer_agent_secret" validate:"required,min=16"`
	TraefikDashboardHtpasswd string `koanf:"traefik_dashboard_htpasswd" json:"traefik_dashboard_htpasswd" validate:"required"`

	StablePublicDNSName     string `koanf:"stable_public_dns_name" json:"stable_public_dns_name" validate:"required,fqdn"`
	TraefikDashboardDNSName string `koanf:"traefik_dashboard_dns_name" json:"traefik_dashboard_dns_name" validate:"required,fqdn"`
	PortainerDNSName        string `koanf:"portainer_dns_name" json:"portainer_dns_name" validate:"required,fqdn"`
	SharedAppDNSName        string `koanf:"shared_app_dns_name" json:"shared_app_dns_name" validate:"required,fqdn"`
	SharedAppCertResolver   string `koanf:"shared_app_cert_resolver" json:"shared_app_cert_resolver" validate:"required"`

	BaseStackEnv        map[string]string `koanf:"base_stack_env" json:"base_stack_env"`
	TraefikStackEnv     map[string]string `koanf:"traefik_stack_env" json:"traefik_stack_env"`
	PortainerStackEnv   map[string]string `koanf:"portainer_stack_env" json:"portainer_stack_env"`
	BaseAppStackEnv     map[string]string `koanf:"base_app_stack_env" json:"base_app_stack_env"`
	PortainerRuntimeEnv map[string]string `koanf:"portainer_runtime_env" json:"portainer_runtime_env"`
}

// StackEnv returns a private copy of the environment for a named stack
// ("traefik", "portainer", "app", "portainer-runtime", or "base").
func (s *Settings) StackEnv(stack string) map[string]string {
	var src map[string]string
	switch stack {
	case "traefik":
		src = s.TraefikStackEnv
	case "portainer":
		src = s.PortainerStackEnv
	case "app":
		src = s.BaseAppStackEnv
	case "portainer-runtime":
		src = s.PortainerRuntimeEnv
	default:
		src = s.BaseStackEnv
	}
	out := make(map[string]string, len(src))
	maps.Copy(out, src)
	return out
}

// Hash returns a stable sha256 over the canonical JSON form.  Builders
// compare it with the last build to skip unchanged stacks.
func (s *Settings) Hash() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
