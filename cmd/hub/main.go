// cmd/hub/main.go
//
// tp-hub – command-line entry point.
//
// Run life-cycle
// --------------
//
//  1. Parse flags (cobra).  `--project-dir` pins the project root,
//     otherwise it comes from TP_HUB_ROOT or by climbing to the nearest
//     directory holding config.yml or stacks/.
//
//  2. Start daily rotating logger under <project>/logs (tees to stderr
//     when running in a TTY).
//
//  3. Open config.yml (file-locked writes) and wire the settings manager
//     to its save hook so every write drops the memoized settings.
//
//  4. Hand vault references to Vault when VAULT_ADDR is set.
//
//  5. Dispatch the subcommand.  Failures print `hub: error: …` on stderr
//     and exit 1.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = zap.S().Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "hub: error: %v\n", err)
		os.Exit(1)
	}
}
