// Command syncd is the reference daemon for the offline-first document
// sync engine: it runs a SyncOrchestrator against a remote endpoint over
// the reference HTTP+WebSocket transport, and exposes status/export/import
// subcommands for operators.
package main

import (
	"fmt"
	"os"

	"github.com/kestrel-sync/docsync/cmd/syncd/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
