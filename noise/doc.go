// Package noise implements the single Noise handshake pattern this relay
// speaks, using the flynn/noise library with ChaCha20-Poly1305 encryption,
// SHA256 hashing, and Curve25519 key exchange.
//
// # Why NN
//
// Every channel in this system — the client-to-server control channel and
// every peer-to-peer channel tunneled through the relay — uses the same
// fixed NN pattern: ephemeral keys only, no static keys inside the Noise
// layer at all.
//
//	Initiator                    Responder
//	─────────                    ─────────
//	-> e
//	                             <- e, ee
//	[session established]
//
// Peer identity is never authenticated by the Noise handshake itself here;
// it is authenticated out of band, by session membership established
// through the relay's control channel. A participant's long-term public
// key never enters the handshake as a Noise static key — it is only ever
// used as a routing and session-membership identifier. This keeps the two
// channel kinds (server, peer) structurally identical and keeps a
// compromise of one peer channel's ephemeral keys from exposing any other
// channel, past or future.
//
// # Example usage
//
//	// Initiator
//	hs, err := noise.NewHandshake(noise.Initiator)
//	msg1, _, err := hs.WriteMessage(nil, nil)
//	// send msg1, receive msg2 from peer
//	_, complete, err := hs.ReadMessage(msg2)
//	if complete {
//	    send, recv, _ := hs.CipherStates()
//	    // use send/recv to seal/open this channel's traffic
//	}
//
//	// Responder
//	hs, err := noise.NewHandshake(noise.Responder)
//	msg2, complete, err := hs.WriteMessage(nil, msg1)
//	// complete is true here; send msg2
//
// # Cipher Suite
//
//   - DH: Curve25519 (X25519 key exchange)
//   - Cipher: ChaCha20-Poly1305 (AEAD encryption)
//   - Hash: SHA256
//
// # Thread Safety
//
// A Handshake should only be driven from one goroutine; the protocol
// requires sequential message processing. The CipherStates returned after
// completion are not thread-safe — concurrent encrypt/decrypt on the same
// cipher state requires external synchronization.
package noise
