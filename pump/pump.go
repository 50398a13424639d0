// Package pump implements the Message Pump primitive of §4.B: block
// until a message matching one of a caller-supplied set of patterns
// arrives, silently discarding everything else, while always answering
// liveness pings regardless of what the caller asked for.
package pump

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleSync)

// ErrChannelClosed is returned when the inbox is closed — a fatal sync
// error per §4.B ("Channel closure on the inbox is propagated as a
// fatal sync error").
var ErrChannelClosed = errors.New("pump: inbox channel closed")

// Arm projects a matching message into the caller's result type. It
// returns matched=false to keep the pump looping (used by the built-in
// ping arm, which never terminates the wait on its own).
type Arm func(msg wire.Message) (result interface{}, matched bool)

// Next blocks on inbox until a message whose Command() has a
// corresponding arm arrives and that arm reports a match, then returns
// its projection. Unmatched-tag messages, and ping messages (after the
// auto-pong), are silently discarded (§4.B).
func Next(inbox <-chan wire.Message, sock *idle.Socket, arms map[string]Arm) (interface{}, error) {
	armed := make(map[string]Arm, len(arms)+1)
	for cmd, a := range arms {
		armed[cmd] = a
	}
	armed[wire.CmdPing] = pingArm(sock)

	for {
		msg, ok := <-inbox
		if !ok {
			return nil, ErrChannelClosed
		}
		arm, ok := armed[msg.Command()]
		if !ok {
			continue // deliberate discard, §4.B
		}
		result, matched := arm(msg)
		if matched {
			return result, nil
		}
	}
}

func pingArm(sock *idle.Socket) Arm {
	return func(msg wire.Message) (interface{}, bool) {
		ping, ok := msg.(*wire.MsgPing)
		if !ok {
			return nil, false
		}
		if err := sock.SendMessage(wire.NewMsgPong(ping.Nonce)); err != nil {
			logger.Warn("failed to send pong in response to ping", "err", err)
		}
		return nil, false
	}
}
