// this file contains functions to generate and load signing key pairs.
//
// Trust framework members may have different policies on acceptable key types,
// so both ED25519 and RSA are supported. ED25519 is the recommended key type
// since it is more secure and efficient than RSA.
//
// PEM files are in PKCS#8 format (https://datatracker.ietf.org/doc/html/rfc5208)

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// GenerateEd25519KeyPair generates a new ED25519 private key
func GenerateEd25519KeyPair() (ed25519.PrivateKey, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, nil
}

// GenerateRSAKeyPair generates a new RSA key pair with the specified bit size
// minimum key size is 2048 bits (4096 is recommended) - key size must be a multiple of 256
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("key size must be at least 2048 bits")
	}

	if bits%256 != 0 {
		return nil, fmt.Errorf("key size should be a multiple of 256")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	return privateKey, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded PKCS#8 private key.
// Returns ed25519.PrivateKey or *rsa.PrivateKey.
func ParsePrivateKeyPEM(pemData []byte) (any, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, NewKeyManagementError("failed to decode PEM block")
	}

	if block.Type != "PRIVATE KEY" {
		return nil, NewKeyManagementError(fmt.Sprintf("PEM block is not a private key (type: %s)", block.Type))
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to parse PKCS#8 private key")
	}

	switch key.(type) {
	case ed25519.PrivateKey, *rsa.PrivateKey:
		return key, nil
	default:
		return nil, NewKeyManagementError(fmt.Sprintf("unsupported private key type: %T", key))
	}
}

// ReadPrivateKeyFromPEMFile loads a private key from a PEM file in PKCS#8 format.
// The file read is scoped to the key's directory.
func ReadPrivateKeyFromPEMFile(path string) (any, error) {
	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to open directory %s", dir))
	}
	defer root.Close()

	pemData, err := root.ReadFile(filename)
	if err != nil {
		return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to read %s", path))
	}

	return ParsePrivateKeyPEM(pemData)
}

// SavePrivateKeyToPEMFile saves a private key to a PEM file in PKCS#8 format
// note the key is not encrypted
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "private.pem")
func SavePrivateKeyToPEMFile(privateKey any, baseDir, filename string) error {
	privBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: privBytes,
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	file, err := root.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := pem.Encode(file, pemBlock); err != nil {
		return fmt.Errorf("failed to encode PEM: %w", err)
	}

	return nil
}

// SavePublicKeyToPEMFile saves a public key to a PEM file in SubjectPublicKeyInfo format
//
// Parameters:
//   - baseDir: The base directory to scope file access (e.g., "./keys")
//   - filename: The filename within the base directory (e.g., "public.pem")
func SavePublicKeyToPEMFile(publicKey any, baseDir, filename string) error {
	pubBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return fmt.Errorf("failed to open root directory %s: %w", baseDir, err)
	}
	defer root.Close()

	file, err := root.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := pem.Encode(file, pemBlock); err != nil {
		return fmt.Errorf("failed to encode PEM: %w", err)
	}

	return nil
}
