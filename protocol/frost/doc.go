// Package frost implements the FROST-Ed25519 threshold key generation and
// signing round functions as a pair of mpcdriver.Driver state machines,
// structurally faithful to the frost-ed25519 crate driven by
// original_source/crates/driver/src/frost/ed25519. It is a real, runnable
// Shamir-over-edwards25519 engine (genuine secret sharing, Lagrange
// interpolation, Schnorr signature aggregation) rather than a stub, but it
// omits frost-ed25519's zero-knowledge proof-of-knowledge round-1 proofs;
// see DESIGN.md.
package frost
