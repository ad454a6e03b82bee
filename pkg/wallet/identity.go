// Package wallet manages the node's storage identity: the single
// long-lived secp256k1 private key spec.md §4.4 attaches to the onchain
// component, persisted once at init time with no rotation path.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"

	"github.com/p2pim/node/internal/logger"
)

// Identity wraps the node's storage-identity key pair.
type Identity struct {
	PrivateKey *ecdsa.PrivateKey
}

// Generate creates a fresh secp256k1 key pair and persists it to path
// with 0600 permissions, failing if a key already exists there.
func Generate(path string) (*Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("wallet: identity already exists at %s", path)
	}

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("wallet: create identity directory: %w", err)
	}

	if err := gethcrypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("wallet: save identity: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, fmt.Errorf("wallet: restrict identity permissions: %w", err)
	}

	address := gethcrypto.PubkeyToAddress(key.PublicKey)
	logger.Info("storage identity generated", logger.PeerAddress(address.Hex()))

	return &Identity{PrivateKey: key}, nil
}

// Load reads the storage identity persisted at path.
func Load(path string) (*Identity, error) {
	key, err := gethcrypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: load identity: %w", err)
	}
	return &Identity{PrivateKey: key}, nil
}

// LoadOrGenerate loads the identity at path if present, generating and
// persisting a new one otherwise. This is the normal daemon startup path;
// explicit `p2pimd init` uses Generate directly so it can fail loudly on
// an existing key instead of silently reusing it.
func LoadOrGenerate(path string) (*Identity, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return Generate(path)
}

// Address returns the storage address derived from the identity's public
// key: keccak256 of the uncompressed public key, last 20 bytes.
func (id *Identity) Address() string {
	return gethcrypto.PubkeyToAddress(id.PrivateKey.PublicKey).Hex()
}

// LibP2PKey re-derives the same secp256k1 key pair in the libp2p crypto
// package's own representation, so the single identity configured by
// node.signing_key_path authenticates both the onchain client and the
// libp2p host, per Open Question 5's decision.
func (id *Identity) LibP2PKey() (libp2pcrypto.PrivKey, error) {
	size := (id.PrivateKey.Curve.Params().BitSize + 7) / 8
	raw := make([]byte, size)
	id.PrivateKey.D.FillBytes(raw)

	key, err := libp2pcrypto.UnmarshalSecp256k1PrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: converting identity to libp2p key: %w", err)
	}
	return key, nil
}
