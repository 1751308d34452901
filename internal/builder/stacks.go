package builder

import (
	"maps"

	"github.com/yanizio/tphub/internal/config"
)

// EnvFunc renders the environment of one env file.
type EnvFunc func(*config.Settings) map[string]string

// Stack names a checked-in compose stack and the env files it gets.
type Stack struct {
	Name     string
	Env      EnvFunc
	ExtraEnv map[string]EnvFunc // file name → contents
}

// Stacks returns the hub's stacks in build order.
func Stacks() []Stack {
	return []Stack{
		{Name: "traefik", Env: traefikEnv},
		{
			Name: "portainer",
			Env:  portainerEnv,
			ExtraEnv: map[string]EnvFunc{
				"runtime.env": func(s *config.Settings) map[string]string { return s.StackEnv("portainer-runtime") },
			},
		},
	}
}

// LookupStack finds a stack by name.
func LookupStack(name string) (Stack, bool) {
	for _, st := range Stacks() {
		if st.Name == name {
			return st, true
		}
	}
	return Stack{}, false
}

func traefikEnv(s *config.Settings) map[string]string {
	env := map[string]string{
		"STABLE_PUBLIC_DNS_NAME":          s.StablePublicDNSName,
		"TRAEFIK_DASHBOARD_DNS_NAME":      s.TraefikDashboardDNSName,
		"TRAEFIK_DASHBOARD_CERT_RESOLVER": s.TraefikDashboardCertResolver,
		"TRAEFIK_DASHBOARD_HTPASSWD":      s.TraefikDashboardHtpasswd,
		"LETSENCRYPT_OWNER_EMAIL_PROD":    s.LetsencryptOwnerEmailProd,
		"LETSENCRYPT_OWNER_EMAIL_STAGING": s.LetsencryptOwnerEmailStaging,
		"DEFAULT_CERT_RESOLVER":           s.DefaultCertResolver,
		"SHARED_APP_DNS_NAME":             s.SharedAppDNSName,
		"SHARED_APP_CERT_RESOLVER":        s.SharedAppCertResolver,
	}
	maps.Copy(env, s.StackEnv("traefik"))
	return env
}

func portainerEnv(s *config.Settings) map[string]string {
	env := map[string]string{
		"PORTAINER_DNS_NAME":       s.PortainerDNSName,
		"PORTAINER_CERT_RESOLVER":  s.PortainerCertResolver,
		"PORTAINER_AGENT_SECRET":   s.PortainerAgentSecret,
		"SHARED_APP_DNS_NAME":      s.SharedAppDNSName,
		"SHARED_APP_CERT_RESOLVER": s.SharedAppCertResolver,
		"DEFAULT_CERT_RESOLVER":    s.DefaultCertResolver,
	}
	maps.Copy(env, s.StackEnv("portainer"))
	return env
}
