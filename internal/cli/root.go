// Package cli implements the provenance-client commands: offline inspection
// and verification of sealed record artifacts.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/provenance-demo/internal/version"
)

// NewRootCommand builds the provenance-client command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "provenance-client",
		Short: "Inspect and verify provenance record artifacts",
		Long: `provenance-client works with sealed record artifacts offline:
it decodes them, verifies their signature envelopes against a trust
framework root CA, and prints the step chain with the signer of each hop.`,
		SilenceUsage: true,
	}

	v := version.Get()
	root.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	root.AddCommand(newVerifyCommand())
	root.AddCommand(newDecodeCommand())

	return root
}
