// Package ingest is the tap driver for the standalone daemon: a UDP
// listener that receives audio frames from the media source and pushes
// them synchronously into the matching session. Each datagram carries the
// 16 raw bytes of the session UUID followed by one audio frame. A single
// reader goroutine preserves the per-session synchronous push model of
// the core.
package ingest
