// Package crypto implements the static identities used throughout the
// relay: key generation, PEM encoding/decoding, Ed25519 signatures, X25519
// shared secrets, and constant-time memory wiping.
//
// # Core Types
//
//   - [KeyPair]: a static identity keyed by [KeyType] (noise, ecdsa,
//     ed25519 or schnorr), used as a participant's long-lived identity
//     and for signature-verification keys advertised to the rest of a
//     session. The Noise handshake itself never takes a KeyPair; it
//     generates its own ephemeral keys.
//
// # Key Generation
//
//	keys, err := crypto.GenerateKeyPair(crypto.KeyTypeNoise)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keys)
//
// # PEM Encoding
//
// A keypair is carried on disk or over a control channel as a three-block
// PEM document: NOISE PATTERN, NOISE PUBLIC KEY, NOISE PRIVATE KEY, in that
// exact order. [EncodePEM] produces this document; [DecodePEM] parses it
// and rejects any other block count, order, or tag.
//
//	doc, _ := crypto.EncodePEM(noise.PatternName, keys)
//	decoded, _ := crypto.DecodePEM(doc, noise.PatternName, crypto.KeyTypeNoise)
//
// # Digital Signatures
//
//	signature, _ := crypto.Sign(message, privateKey)
//	ok, _ := crypto.Verify(message, signature, publicKey)
//
// # Secure Memory Handling
//
// Sensitive byte slices should be wiped after use:
//
//	defer crypto.ZeroBytes(sensitiveData)
//	defer crypto.WipeKeyPair(keyPair)
//
// [SecureWipe] uses crypto/subtle's constant-time XOR so the compiler
// cannot optimize the zeroing away.
package crypto
