// Package framing builds outbound datagrams from accumulated audio bunches.
// It implements the two wire formats of the service: raw passthrough in the
// host's native sample order, and L16 audio (RFC 3551 section 4.5.11) inside
// a minimal RTP header with running sequence number and timestamp state.
package framing
