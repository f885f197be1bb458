// Package session manages unicast transmission sessions. A session owns
// exactly one buncher, framer and connected UDP socket for the lifetime of
// the attached tap, and exposes the tap lifecycle hooks the media source
// drives. The manager keys sessions by UUID, rejects duplicate activation
// and detaches idempotently on stop.
package session
