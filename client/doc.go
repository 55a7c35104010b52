// Package client implements the participant side of the relay protocol: a
// transport that connects to the relay, completes the server-Noise
// handshake, opens peer channels lazily on demand, and drives a
// single-threaded event loop that decrypts inbound frames and classifies
// them onto an event channel for callers to consume.
package client
