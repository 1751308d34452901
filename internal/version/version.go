// Package version carries the hub package version.  Release builds
// override it with -ldflags "-X github.com/yanizio/tphub/internal/version.Version=…".
package version

// Version is the semantic version of this hub checkout.
var Version = "1.2.0"
