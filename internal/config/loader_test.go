package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/tphub/internal/version"
)

const testHtpasswd = "admin:$2a$10$abcdefghijklmnopqrstuv"

func validArgs() map[string]any {
	return map[string]any{
		"parent_dns_domain":          "example.com",
		"letsencrypt_owner_email":    "ops@example.com",
		"portainer_agent_secret":     "0123456789abcdef",
		"traefik_dashboard_htpasswd": testHtpasswd,
	}
}

func with(args map[string]any, kv ...any) map[string]any {
	for i := 0; i < len(kv); i += 2 {
		args[kv[i].(string)] = kv[i+1]
	}
	return args
}

func resolveInit(t *testing.T, args map[string]any, opts ...ResolverOption) (*Settings, error) {
	t.Helper()
	return NewResolver([]Source{InitSource(args)}, opts...).Resolve(context.Background())
}

func requireConfigError(t *testing.T, err error, field string) *ConfigurationError {
	t.Helper()
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, field, ce.Field)
	assert.ErrorIs(t, err, ErrConfiguration)
	return ce
}

func TestResolve_Defaults(t *testing.T) {
	s, err := resolveInit(t, validArgs())
	require.NoError(t, err)

	assert.Equal(t, version.Version, s.HubPackageVersion)
	assert.Equal(t, []string{"prod", "staging"}, s.AllowedCertResolvers)
	assert.Equal(t, "example.com", s.AdminParentDNSDomain)
	assert.Equal(t, "ops@example.com", s.LetsencryptOwnerEmailProd)
	assert.Equal(t, "ops@example.com", s.LetsencryptOwnerEmailStaging)

	assert.Equal(t, "staging", s.DefaultCertResolver)
	assert.Equal(t, "prod", s.AdminCertResolver)
	assert.Equal(t, "prod", s.TraefikDashboardCertResolver)
	assert.Equal(t, "prod", s.PortainerCertResolver)
	assert.Equal(t, "staging", s.SharedAppCertResolver)

	assert.Equal(t, "ddns.example.com", s.StablePublicDNSName)
	assert.Equal(t, "traefik.example.com", s.TraefikDashboardDNSName)
	assert.Equal(t, "portainer.example.com", s.PortainerDNSName)
	assert.Equal(t, "hub.example.com", s.SharedAppDNSName)

	assert.Empty(t, s.BaseStackEnv)
	assert.NotNil(t, s.PortainerRuntimeEnv)
}

func TestResolve_SubdomainSplicing(t *testing.T) {
	t.Run("Should place admin names under admin_parent_dns_domain", func(t *testing.T) {
		s, err := resolveInit(t, with(validArgs(), "admin_parent_dns_domain", "admin.example.net"))
		require.NoError(t, err)
		assert.Equal(t, "ddns.admin.example.net", s.StablePublicDNSName)
		assert.Equal(t, "traefik.admin.example.net", s.TraefikDashboardDNSName)
		assert.Equal(t, "portainer.admin.example.net", s.PortainerDNSName)
		assert.Equal(t, "hub.example.com", s.SharedAppDNSName)
	})

	t.Run("Should splice configured labels and keep full names", func(t *testing.T) {
		s, err := resolveInit(t, with(validArgs(),
			"traefik_dashboard_dns_name", "dash",
			"portainer_dns_name", "docker.other.org",
		))
		require.NoError(t, err)
		assert.Equal(t, "dash.example.com", s.TraefikDashboardDNSName)
		assert.Equal(t, "docker.other.org", s.PortainerDNSName)
	})

	t.Run("Should reject an invalid spliced name", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "shared_app_dns_name", "bad_label!"))
		requireConfigError(t, err, "shared_app_dns_name")
	})
}

func TestResolve_CertResolvers(t *testing.T) {
	t.Run("Should accept a comma-separated allow-list", func(t *testing.T) {
		s, err := resolveInit(t, with(validArgs(),
			"allowed_cert_resolvers", "staging,prod,local",
			"default_cert_resolver", "local",
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"local", "prod", "staging"}, s.AllowedCertResolvers)
		assert.Equal(t, "local", s.SharedAppCertResolver)
	})

	t.Run("Should accept a list allow-list", func(t *testing.T) {
		s, err := resolveInit(t, with(validArgs(), "allowed_cert_resolvers", []any{"prod", "staging", "prod"}))
		require.NoError(t, err)
		assert.Equal(t, []string{"prod", "staging"}, s.AllowedCertResolvers)
	})

	t.Run("Should reject a defaulted resolver missing from the allow-list", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "allowed_cert_resolvers", "prod"))
		ce := requireConfigError(t, err, "default_cert_resolver")
		assert.Equal(t, RemedyEditConfig, ce.Remedy)
	})

	t.Run("Should treat an empty string as an empty allow-list", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "allowed_cert_resolvers", ""))
		requireConfigError(t, err, "default_cert_resolver")
	})

	t.Run("Should reject resolver names with dots", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "allowed_cert_resolvers", "prod,le.staging"))
		requireConfigError(t, err, "allowed_cert_resolvers")
	})

	t.Run("Should reject an explicit resolver outside the allow-list", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "portainer_cert_resolver", "other"))
		requireConfigError(t, err, "portainer_cert_resolver")
	})
}

func TestResolve_RequiredFields(t *testing.T) {
	cases := []struct {
		field  string
		remedy string
	}{
		{"parent_dns_domain", RemedyEditConfig},
		{"letsencrypt_owner_email", RemedyEditConfig},
		{"portainer_agent_secret", RemedyPortainerSecret},
		{"traefik_dashboard_htpasswd", RemedyTraefikPassword},
	}
	for _, c := range cases {
		t.Run(c.field, func(t *testing.T) {
			args := validArgs()
			delete(args, c.field)
			_, err := resolveInit(t, args)
			ce := requireConfigError(t, err, c.field)
			assert.Equal(t, c.remedy, ce.Remedy)
			assert.Contains(t, err.Error(), "is required")
		})
	}
}

func TestResolve_FieldValidation(t *testing.T) {
	cases := []struct {
		name  string
		field string
		value any
	}{
		{"bad domain", "parent_dns_domain", "not a domain"},
		{"non-string domain", "parent_dns_domain", 42},
		{"bad email", "letsencrypt_owner_email", "nobody"},
		{"bad staging email", "letsencrypt_owner_email_staging", "x@"},
		{"short secret", "portainer_agent_secret", "tooshort"},
		{"htpasswd without colon", "traefik_dashboard_htpasswd", "admin"},
		{"htpasswd without user", "traefik_dashboard_htpasswd", ":$2a$10$abcdefghijklmnopqrstuv"},
		{"htpasswd plain password", "traefik_dashboard_htpasswd", "admin:secretsecretsecretsecret"},
		{"htpasswd short hash", "traefik_dashboard_htpasswd", "admin:$2a$10$abc"},
		{"bad version", "hub_package_version", "one.two"},
		{"env table not a mapping", "base_stack_env", []any{"A=1"}},
		{"env table nested value", "traefik_stack_env", map[string]any{"A": map[string]any{"B": "c"}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := resolveInit(t, with(validArgs(), c.field, c.value))
			requireConfigError(t, err, c.field)
		})
	}
}

func TestConfigurationError_RedactsSecrets(t *testing.T) {
	_, err := resolveInit(t, with(validArgs(), "portainer_agent_secret", "hunter2"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "<redacted>")
	assert.Contains(t, err.Error(), "hub config set-portainer-secret")
}

func TestResolve_StopsAtFirstFailure(t *testing.T) {
	args := validArgs()
	delete(args, "letsencrypt_owner_email")
	args["portainer_agent_secret"] = "short"
	_, err := resolveInit(t, args)
	requireConfigError(t, err, "letsencrypt_owner_email")
}

func TestResolve_EnvTables(t *testing.T) {
	s, err := resolveInit(t, with(validArgs(),
		"base_stack_env", map[string]any{"TZ": "UTC", "PUID": 1000},
		"traefik_stack_env", map[string]any{"TZ": "Europe/Paris"},
		"base_app_stack_env", `{"APP": "yes"}`,
		"portainer_runtime_env", map[string]string{"EXTRA": ""},
	))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"TZ": "UTC", "PUID": "1000"}, s.BaseStackEnv)
	assert.Equal(t, map[string]string{"TZ": "Europe/Paris", "PUID": "1000"}, s.TraefikStackEnv)
	assert.Equal(t, map[string]string{"TZ": "UTC", "PUID": "1000"}, s.PortainerStackEnv)
	assert.Equal(t, map[string]string{"TZ": "UTC", "PUID": "1000", "APP": "yes"}, s.BaseAppStackEnv)
	assert.Equal(t, map[string]string{"TZ": "UTC", "PUID": "1000", "APP": "yes", "EXTRA": ""}, s.PortainerRuntimeEnv)

	env := s.StackEnv("traefik")
	env["TZ"] = "mutated"
	assert.Equal(t, "Europe/Paris", s.TraefikStackEnv["TZ"])
}

type fakeSecrets map[string]string

func (f fakeSecrets) ResolveSecret(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestResolve_VaultReferences(t *testing.T) {
	args := with(validArgs(), "portainer_agent_secret", "vault:secret/hub#agent")

	t.Run("Should read secret fields through the resolver", func(t *testing.T) {
		s, err := resolveInit(t, args, WithSecrets(fakeSecrets{"secret/hub#agent": "from-vault-0123456789"}))
		require.NoError(t, err)
		assert.Equal(t, "from-vault-0123456789", s.PortainerAgentSecret)
	})

	t.Run("Should fail without a vault client", func(t *testing.T) {
		_, err := resolveInit(t, args)
		ce := requireConfigError(t, err, "portainer_agent_secret")
		assert.Equal(t, RemedyVault, ce.Remedy)
	})

	t.Run("Should fail when the secret is missing", func(t *testing.T) {
		_, err := resolveInit(t, args, WithSecrets(fakeSecrets{}))
		requireConfigError(t, err, "portainer_agent_secret")
	})

	t.Run("Should not dereference ordinary fields", func(t *testing.T) {
		_, err := resolveInit(t, with(validArgs(), "parent_dns_domain", "vault:x#y"), WithSecrets(fakeSecrets{}))
		requireConfigError(t, err, "parent_dns_domain")
	})
}

func TestSettingsHash(t *testing.T) {
	a, err := resolveInit(t, validArgs())
	require.NoError(t, err)
	b, err := resolveInit(t, validArgs())
	require.NoError(t, err)
	c, err := resolveInit(t, with(validArgs(), "base_stack_env", map[string]any{"A": "1"}))
	require.NoError(t, err)

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, _ := b.Hash()
	hc, _ := c.Hash()
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
	assert.Len(t, ha, 64)
}

func TestSchema_Order(t *testing.T) {
	assert.Equal(t, []string{
		"hub_package_version", "allowed_cert_resolvers", "parent_dns_domain", "admin_parent_dns_domain",
		"letsencrypt_owner_email", "letsencrypt_owner_email_prod", "letsencrypt_owner_email_staging",
		"default_cert_resolver", "admin_cert_resolver", "traefik_dashboard_cert_resolver",
		"portainer_cert_resolver", "portainer_agent_secret", "traefik_dashboard_htpasswd",
		"stable_public_dns_name", "traefik_dashboard_dns_name", "portainer_dns_name", "shared_app_dns_name",
		"shared_app_cert_resolver", "base_stack_env", "traefik_stack_env", "portainer_stack_env",
		"base_app_stack_env", "portainer_runtime_env",
	}, FieldNames())

	for _, f := range Schema() {
		assert.Equal(t, f.Secret, secretFields[f.Name], f.Name)
	}
}
