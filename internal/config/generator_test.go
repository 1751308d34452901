package config

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/tphub/internal/version"
)

func TestGenerateYAML(t *testing.T) {
	out, err := GenerateYAML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "version: 1.2\n"))
	assert.True(t, strings.HasSuffix(out, "\n"))

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	root := doc.Content[0]
	require.Equal(t, "hub", root.Content[2].Value)
	hub := root.Content[3]

	t.Run("Should list every setting in declaration order", func(t *testing.T) {
		var keys []string
		for i := 0; i < len(hub.Content); i += 2 {
			keys = append(keys, hub.Content[i].Value)
		}
		assert.Equal(t, FieldNames(), keys)
	})

	t.Run("Should write only the package version explicitly", func(t *testing.T) {
		for i := 0; i < len(hub.Content); i += 2 {
			key, val := hub.Content[i], hub.Content[i+1]
			if key.Value == "hub_package_version" {
				assert.Equal(t, version.Version, val.Value)
				continue
			}
			assert.Equal(t, "!!null", val.Tag, key.Value)
		}
	})

	t.Run("Should document each setting in a comment", func(t *testing.T) {
		assert.Contains(t, out, "  # parent_dns_domain\n  #\n")
		assert.Contains(t, out, "  # Default: same as admin_cert_resolver\n")
		assert.Contains(t, out, "  # Default: ddns\n")
	})

	t.Run("Should resolve to required-field errors with nothing filled in", func(t *testing.T) {
		var plain map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(out), &plain))
		_, err := NewResolver([]Source{FileSource{Store: fakeDoc{doc: plain}}}).Resolve(context.Background())
		requireConfigError(t, err, "parent_dns_domain")
	})
}

func TestJSONSchema(t *testing.T) {
	raw, err := JSONSchema()
	require.NoError(t, err)

	var s struct {
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &s))

	assert.ElementsMatch(t, Required, s.Required)
	assert.Len(t, s.Properties, len(FieldNames()))
	for _, name := range FieldNames() {
		assert.Contains(t, s.Properties, name)
		assert.NotEmpty(t, s.Properties[name]["description"], name)
	}
	assert.Equal(t, "ddns", s.Properties["stable_public_dns_name"]["default"])
	assert.Equal(t, []any{"prod", "staging"}, s.Properties["allowed_cert_resolvers"]["default"])
	assert.Contains(t, s.Properties["portainer_cert_resolver"]["description"], "Defaults to admin_cert_resolver.")
}
