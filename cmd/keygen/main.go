// keygen generates a signing key pair for a trust framework member.
//
// The private key is written as an unencrypted PKCS#8 PEM (suitable for the
// SIGNING_KEY file source or for import into SSM/KMS), alongside the public
// key in PEM and JWK form. The PEM private key can also be used to create a
// CSR for the trust framework CA.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/provenance-demo/internal/crypto"
	"github.com/information-sharing-networks/provenance-demo/internal/version"
)

func main() {
	var (
		keyType   string
		outputDir string
		keySize   int
		keyID     string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a member signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(keyType, outputDir, keySize, keyID)
		},
	}

	cmd.Flags().StringVar(&keyType, "type", "ed25519", "key type: ed25519 or rsa")
	cmd.Flags().StringVar(&outputDir, "outputdir", ".", "directory to write key files to")
	cmd.Flags().IntVar(&keySize, "size", 4096, "RSA key size in bits (ignored for ed25519)")
	cmd.Flags().StringVar(&keyID, "kid", "", "key id (defaults to the RFC 7638 thumbprint)")

	cmd.Version = version.Get().Version

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func generate(keyType, outputDir string, keySize int, keyID string) error {
	var privateKey any
	var publicKey any

	switch keyType {
	case "ed25519":
		key, err := crypto.GenerateEd25519KeyPair()
		if err != nil {
			return err
		}
		privateKey = key
		publicKey = key.Public()
	case "rsa":
		key, err := crypto.GenerateRSAKeyPair(keySize)
		if err != nil {
			return err
		}
		privateKey = key
		publicKey = &key.PublicKey
	default:
		return fmt.Errorf("unsupported key type %q (expected ed25519 or rsa)", keyType)
	}

	if keyID == "" {
		derived, err := crypto.GenerateKeyID(publicKey)
		if err != nil {
			return err
		}
		keyID = derived
	}

	if err := crypto.SavePrivateKeyToPEMFile(privateKey, outputDir, "private.pem"); err != nil {
		return err
	}
	if err := crypto.SavePublicKeyToPEMFile(publicKey, outputDir, "public.pem"); err != nil {
		return err
	}
	if err := crypto.SavePublicKeyToJWKFile(publicKey, keyID, outputDir, "public.jwk"); err != nil {
		return err
	}

	fmt.Printf("wrote private.pem, public.pem and public.jwk to %s (kid %s)\n", outputDir, keyID)

	return nil
}
