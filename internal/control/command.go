package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shimaore/unicast/internal/buncher"
	"github.com/shimaore/unicast/internal/config"
	"github.com/shimaore/unicast/internal/framing"
	"github.com/shimaore/unicast/internal/session"
)

// Syntax is the usage string reported on malformed commands
const Syntax = "<session-uuid> [start|stop] [remote_port=<port>] [remote_ip=<ip>] [local_ip=<ip>] [local_port=<port>] [frames_per_packet=<count>] [rtp_ssrc=<number>]"

// Action is the requested lifecycle transition
type Action string

const (
	// ActionStart activates unicast transmission on a session
	ActionStart Action = "start"
	// ActionStop detaches transmission, idempotently
	ActionStop Action = "stop"
)

// UsageError reports a malformed or out-of-range command. It always
// carries the full syntax string.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s; usage: %s", e.Reason, Syntax)
}

// Command is a parsed control command. Zero-valued optional fields mean
// "apply the configured default"; SSRC is a pointer because its mere
// presence selects RTP-L16 framing.
type Command struct {
	SessionID string
	Action    Action

	RemoteIP        string
	RemotePort      int
	LocalIP         string
	LocalPort       int
	FramesPerPacket int
	SSRC            *uint32
}

// Parse parses a control command line. Options are only meaningful for
// start; stop takes no options.
func Parse(line string) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, &UsageError{Reason: "session identifier and action required"}
	}

	cmd := &Command{
		SessionID: fields[0],
		Action:    Action(strings.ToLower(fields[1])),
	}

	switch cmd.Action {
	case ActionStop:
		return cmd, nil
	case ActionStart:
		// Options parsed below
	default:
		return nil, &UsageError{Reason: fmt.Sprintf("unknown action %q", fields[1])}
	}

	if len(fields) < 3 {
		return nil, &UsageError{Reason: "start requires at least remote_port"}
	}

	for _, arg := range fields[2:] {
		key, value, found := strings.Cut(arg, "=")
		if !found || value == "" {
			return nil, &UsageError{Reason: fmt.Sprintf("malformed option %q", arg)}
		}

		switch key {
		case "remote_ip":
			cmd.RemoteIP = value
		case "remote_port":
			port, err := parsePort(key, value)
			if err != nil {
				return nil, err
			}
			cmd.RemotePort = port
		case "local_ip":
			cmd.LocalIP = value
		case "local_port":
			port, err := parsePort(key, value)
			if err != nil {
				return nil, err
			}
			cmd.LocalPort = port
		case "frames_per_packet":
			count, err := strconv.Atoi(value)
			if err != nil || count < 1 || count > buncher.MaxFramesPerPacket {
				return nil, &UsageError{Reason: fmt.Sprintf(
					"frames_per_packet must be between 1 and %d, got %q",
					buncher.MaxFramesPerPacket, value)}
			}
			cmd.FramesPerPacket = count
		case "rtp_ssrc":
			ssrc, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, &UsageError{Reason: fmt.Sprintf("rtp_ssrc must be a 32-bit number, got %q", value)}
			}
			v := uint32(ssrc)
			cmd.SSRC = &v
		default:
			return nil, &UsageError{Reason: fmt.Sprintf("unknown option %q", key)}
		}
	}

	if cmd.RemotePort == 0 {
		return nil, &UsageError{Reason: "remote_port is required"}
	}

	return cmd, nil
}

// parsePort parses a 1..65535 port value
func parsePort(key, value string) (int, error) {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return 0, &UsageError{Reason: fmt.Sprintf("%s must be between 1 and 65535, got %q", key, value)}
	}
	return port, nil
}

// SessionConfig resolves the command against the configured defaults into
// a full session configuration. The presence of rtp_ssrc selects RTP-L16
// framing; its absence selects plain framing.
func (c *Command) SessionConfig(defaults config.DefaultsConfig, audio config.AudioConfig) session.Config {
	cfg := session.Config{
		ID:              c.SessionID,
		LocalIP:         defaults.LocalIP,
		LocalPort:       defaults.LocalPort,
		RemoteIP:        "127.0.0.1",
		RemotePort:      c.RemotePort,
		FramesPerPacket: defaults.FramesPerPacket,
		MaxFrameBytes:   audio.MaxFrameBytes,
		Mode:            framing.ModePlain,
	}

	if c.RemoteIP != "" {
		cfg.RemoteIP = c.RemoteIP
	}
	if c.LocalIP != "" {
		cfg.LocalIP = c.LocalIP
	}
	if c.LocalPort != 0 {
		cfg.LocalPort = c.LocalPort
	}
	if c.FramesPerPacket != 0 {
		cfg.FramesPerPacket = c.FramesPerPacket
	}
	if c.SSRC != nil {
		cfg.Mode = framing.ModeRTPL16
		cfg.SSRC = *c.SSRC
	}

	return cfg
}
