// Command gopher-doctor diagnoses the health of a Kubernetes namespace.
package main

import (
	"os"

	"github.com/tonyjoanes/gopher-doctor/cmd/gopher-doctor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
