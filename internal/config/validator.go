// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// Field resolvers call `isDNSName` and `isEmail` while folding the schema,
// so errors name the exact setting and its remedy.  After the fold,
// `validateStruct` re-checks the decoded `Settings` against its struct
// tags; a failure there means a resolver let a bad value through.

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(s *Settings) error {
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("resolved settings failed validation: %w", err)
	}
	return nil
}

func isDNSName(s string) bool { return v.Var(s, "required,fqdn") == nil }

func isEmail(s string) bool { return v.Var(s, "required,email") == nil }
