package config

import (
	"errors"
	"fmt"
)

// Remediation hints shown with configuration errors.
const (
	RemedyEditConfig      = "edit config.yml"
	RemedyPortainerSecret = "use 'hub config set-portainer-secret' to set it to a random value"
	RemedyTraefikPassword = "generate a username/password hash and set it with 'hub config set-traefik-password'"
	RemedyVault           = "set VAULT_ADDR and VAULT_TOKEN, or replace the vault: reference in config.yml"
)

// ErrConfiguration is matched by every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError names the offending setting and the corrective
// action.  Collaborators print it and exit non-zero.
type ConfigurationError struct {
	Field  string
	Value  any  // raw value; nil when the setting is missing
	Secret bool // redact Value when printing
	Reason string
	Remedy string
}

func (e *ConfigurationError) Error() string {
	var subject string
	switch {
	case e.Value == nil:
		subject = fmt.Sprintf("setting %s", e.Field)
	case e.Secret:
		subject = fmt.Sprintf("setting %s=<redacted>", e.Field)
	default:
		subject = fmt.Sprintf("setting %s=%#v", e.Field, e.Value)
	}
	return fmt.Sprintf("%s %s; %s", subject, e.Reason, e.Remedy)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
