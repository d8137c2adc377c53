// Command pagebuilder serves the page editor and inspects its stored snapshot.
//
// # Basic Usage
//
// Start the editor:
//
//	pagebuilder serve --config pagebuilder.yaml
//
// Look at what is stored:
//
//	pagebuilder inspect
//	pagebuilder validate
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/pagebuilder/cmd/pagebuilder/commands"
)

// Build information, set with -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)".
var (
	version = "0.1.0-dev"
	commit  = "none"
)

func main() {
	if err := commands.NewRootCmd(version, commit).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
