// Package transmit owns the outbound UDP socket of a session and the
// best-effort send policy. The socket is bound and connected once at
// session start; every flush after that is a single fire-and-forget
// datagram write whose result is deliberately ignored, so a slow or
// unreachable peer can never stall the audio path.
package transmit
