package cli

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/provenance"
)

type anchor struct {
	roots *x509.CertPool
}

func (a *anchor) TrustAnchor() *x509.CertPool { return a.roots }

func newVerifyCommand() *cobra.Command {
	var rootCAPath string

	cmd := &cobra.Command{
		Use:   "verify <artifact.json>",
		Short: "Verify a sealed record artifact against a root CA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadRecord(args[0])
			if err != nil {
				return err
			}

			certs, err := crypto.ReadCertChainFromPEMFile(rootCAPath)
			if err != nil {
				return err
			}
			roots := x509.NewCertPool()
			for _, c := range certs {
				roots.AddCert(c)
			}

			if err := rec.Verify(&anchor{roots: roots}); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			fmt.Printf("record verified: %d steps, %d signature envelopes\n",
				len(rec.Steps()), len(rec.Envelopes()))
			for i, signer := range rec.Signers() {
				fmt.Printf("  envelope %d signed by %s (kid %s)\n", i, signer.Member, signer.KeyID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootCAPath, "root-ca", "", "path to the trust framework root CA PEM")
	_ = cmd.MarkFlagRequired("root-ca")

	return cmd
}

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <artifact.json>",
		Short: "Decode a record artifact without verifying signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := loadRecord(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("trust framework: %s\n", rec.TrustFramework())
			fmt.Printf("steps: %d, signature envelopes: %d (unverified)\n",
				len(rec.Steps()), len(rec.Envelopes()))

			for i, step := range rec.Steps() {
				fields, err := step.AsMap()
				if err != nil {
					return err
				}
				pretty, err := json.MarshalIndent(fields, "  ", "  ")
				if err != nil {
					return err
				}
				fmt.Printf("  step %d (%s):\n  %s\n", i, step.Type(), pretty)
			}
			return nil
		},
	}
}

func loadRecord(path string) (*provenance.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	rec, err := provenance.Decode("", data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return rec, nil
}
