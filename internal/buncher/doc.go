// Package buncher accumulates fixed-cadence audio frames into larger bunches
// to amortize per-datagram overhead. A bunch is flushed to the transmitter
// when either the byte low-water mark or the frame-count threshold is
// crossed, and once more on close if audio is still buffered.
package buncher
