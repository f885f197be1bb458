package transmit

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// Sender is a UDP socket bound to a local address and connected to a single
// remote peer. The Go runtime keeps the descriptor in non-blocking mode, so
// Send never stalls the calling thread.
type Sender struct {
	conn    net.Conn
	dropped atomic.Uint64
}

// Dial resolves both endpoints, creates the UDP socket with SO_REUSEADDR,
// binds it locally and connects it to the remote peer. Every failure is a
// distinct, descriptive setup error surfaced to the caller.
func Dial(localIP string, localPort int, remoteIP string, remotePort int) (*Sender, error) {
	localAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(localIP, strconv.Itoa(localPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local address %s:%d: %w", localIP, localPort, err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(remoteIP, strconv.Itoa(remotePort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve remote address %s:%d: %w", remoteIP, remotePort, err)
	}

	dialer := net.Dialer{
		LocalAddr: localAddr,
		Control:   setReuseAddr,
	}

	conn, err := dialer.Dial("udp", remoteAddr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s -> %s: %w", localAddr, remoteAddr, err)
	}

	return &Sender{conn: conn}, nil
}

// setReuseAddr enables SO_REUSEADDR before the socket is bound
func setReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

// Send writes one datagram to the connected peer. The result is not an
// error from the caller's point of view: a dropped packet is preferable to
// blocking or tearing down the session. The return value reports whether
// the datagram was handed to the kernel and exists for accounting only.
func (s *Sender) Send(b []byte) bool {
	if _, err := s.conn.Write(b); err != nil {
		s.dropped.Add(1)
		return false
	}
	return true
}

// Dropped returns the number of datagrams absorbed by the send policy
func (s *Sender) Dropped() uint64 {
	return s.dropped.Load()
}

// LocalAddr returns the bound local address
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// RemoteAddr returns the connected remote address
func (s *Sender) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close releases the socket
func (s *Sender) Close() error {
	return s.conn.Close()
}
