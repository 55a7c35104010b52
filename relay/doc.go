// Package relay implements the untrusted rendezvous server: it terminates
// WebSocket connections, runs the server-Noise handshake for each one, and
// routes transparent and opaque frames between clients that share a
// session. The relay never sees peer-channel plaintext — it forwards
// OPAQUE_PEER envelopes verbatim and only decrypts OPAQUE_SERVER control
// traffic, which is addressed to it directly.
package relay
