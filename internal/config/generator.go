// internal/config/generator.go
//
// Default config.yml content and JSON Schema, both derived from Schema().
//
// Context
// -------
// `GenerateYAML` renders the commented template used when config.yml does
// not exist yet.  Every setting gets a `# name` heading, its wrapped
// description, and its default.  Only `Explicit` fields are written with a
// value; everything else is `null` so the resolver's own default applies
// and later releases can change it.
//
// `JSONSchema` reflects `Settings` with invopop/jsonschema and decorates
// each property with the description and literal default from Schema().
package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/invopop/jsonschema"
)

// Required lists settings with no default.
var Required = []string{
	"parent_dns_domain",
	"letsencrypt_owner_email",
	"portainer_agent_secret",
	"traefik_dashboard_htpasswd",
}

const yamlTemplate = `version: 1.2

# Contains local configuration settings for the hub
# This file should generally be in .gitignore

hub:
{{- range .Fields }}

  # {{ .Name }}
  #
{{- range splitList "\n" (wrap 90 .Description) }}
  # {{ trim . }}
{{- end }}
{{- if .DefaultFrom }}
  #
  # Default: same as {{ .DefaultFrom }}
{{- else if and .Default (not .Explicit) }}
  #
  # Default: {{ .Default }}
{{- end }}
  #
  {{ .Name }}: {{ if .Explicit }}{{ toJson .Default }}{{ else }}null{{ end }}
{{- end }}
`

var yamlTmpl = template.Must(template.New("config.yml").Funcs(sprig.TxtFuncMap()).Parse(yamlTemplate))

// GenerateYAML returns default config.yml content.
func GenerateYAML() (string, error) {
	var buf bytes.Buffer
	if err := yamlTmpl.Execute(&buf, map[string]any{"Fields": schema}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// JSONSchema returns the JSON Schema of the hub section.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(&Settings{})
	s.Title = "tp-hub settings"
	s.Required = append([]string(nil), Required...)

	for _, f := range schema {
		p, ok := s.Properties.Get(f.Name)
		if !ok {
			continue
		}
		p.Description = f.Description
		if f.DefaultFrom != "" {
			p.Description += "  Defaults to " + f.DefaultFrom + "."
		}
		if f.Default != "" && p.Type == "string" {
			p.Default = f.Default
		}
		if f.Name == "allowed_cert_resolvers" {
			p.Default = strings.Split(f.Default, ",")
		}
	}
	return json.MarshalIndent(s, "", "  ")
}
