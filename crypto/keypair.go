package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyType tags the algorithm a KeyPair's bytes belong to. The same PEM
// shape carries all four; the document does not record the type, so
// DecodePEM takes it from the caller.
type KeyType uint8

const (
	// KeyTypeNoise is an X25519 static key used for Noise channels.
	KeyTypeNoise KeyType = iota
	// KeyTypeECDSA is a secp256k1 signing key, used by the CGGMP engine.
	KeyTypeECDSA
	// KeyTypeEd25519 is an Ed25519 signing key, used by the FROST engine.
	KeyTypeEd25519
	// KeyTypeSchnorr is a Schnorr signing key over secp256k1 or ed25519.
	KeyTypeSchnorr
)

// String returns the wire/PEM name for the key type.
func (t KeyType) String() string {
	switch t {
	case KeyTypeNoise:
		return "noise"
	case KeyTypeECDSA:
		return "ecdsa"
	case KeyTypeEd25519:
		return "ed25519"
	case KeyTypeSchnorr:
		return "schnorr"
	default:
		return "unknown"
	}
}

// ErrUnknownKeyType is returned when a key type tag does not match any of
// the four supported types.
var ErrUnknownKeyType = errors.New("crypto: unknown key type")

// ParseKeyType maps a wire/PEM name back to a KeyType.
func ParseKeyType(name string) (KeyType, error) {
	switch name {
	case "noise":
		return KeyTypeNoise, nil
	case "ecdsa":
		return KeyTypeECDSA, nil
	case "ed25519":
		return KeyTypeEd25519, nil
	case "schnorr":
		return KeyTypeSchnorr, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKeyType, name)
	}
}

// KeyPair is a long-lived static identity. Public/Private hold raw key
// material sized for the underlying primitive (32 bytes for X25519 and
// Ed25519 seeds); Type records which primitive the bytes belong to.
type KeyPair struct {
	Type    KeyType
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random key pair of the given type.
// KeyTypeECDSA and KeyTypeSchnorr are not generated here; they are
// produced by the respective protocol engine from curve-specific material.
func GenerateKeyPair(kind KeyType) (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"key_type": kind.String(),
	})
	logger.Debug("generating new key pair")

	switch kind {
	case KeyTypeNoise:
		publicKey, privateKey, err := box.GenerateKey(rand.Reader)
		if err != nil {
			logger.WithError(err).Error("failed to generate noise key pair")
			return nil, err
		}
		return &KeyPair{Type: kind, Public: *publicKey, Private: *privateKey}, nil
	case KeyTypeEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			logger.WithError(err).Error("failed to generate ed25519 key pair")
			return nil, err
		}
		seed := priv.Seed()
		return FromSecretKey(kind, [32]byte(seed))
	default:
		return nil, fmt.Errorf("%w: cannot generate %s directly, use the owning protocol engine", ErrUnknownKeyType, kind)
	}
}

// FromSecretKey derives a key pair from existing private key bytes.
func FromSecretKey(kind KeyType, secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("crypto: invalid secret key: all zeros")
	}

	switch kind {
	case KeyTypeNoise:
		var privateKey [32]byte
		copy(privateKey[:], secretKey[:])
		privateKey[0] &= 248
		privateKey[31] &= 127
		privateKey[31] |= 64

		var publicKey [32]byte
		curve25519.ScalarBaseMult(&publicKey, &privateKey)
		ZeroBytes(privateKey[:])

		return &KeyPair{Type: kind, Public: publicKey, Private: secretKey}, nil
	case KeyTypeEd25519:
		priv := ed25519.NewKeyFromSeed(secretKey[:])
		pub := priv.Public().(ed25519.PublicKey)
		var public [32]byte
		copy(public[:], pub)
		return &KeyPair{Type: kind, Public: public, Private: secretKey}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyType, kind)
	}
}

func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
