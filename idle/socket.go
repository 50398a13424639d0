// Package idle owns the Idle State (§4.A): the live socket, the inbound
// message channel, and the blockchain/UTXO set, passed by exclusive
// reference through every sync phase.
package idle

import (
	"net"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleIdle)

// InboxSize bounds the network reader's outbound channel (§3, "inbox").
const InboxSize = 256

// Socket is the write-capable peer connection of §3. Every send is
// funneled through one writer goroutine so a coinjoin completion
// broadcast from an RPC worker can never interleave bytes on the wire
// with the sync worker's own sends (§9, "Coinjoin interleaving").
type Socket struct {
	conn    net.Conn
	pver    uint32
	net     wire.BitcoinNet
	outbox  chan wire.Message
	done    chan struct{}
	errOnce chan error
}

// Dial opens the peer connection, performs the version/verack handshake
// synchronously, and only then starts the writer goroutine and the
// network reader task, returning the (socket, inbox) pair that
// LoadFromDisk carries into the Idle State (§4.C, Init -> LoadFromDisk).
// Without the handshake a real peer never progresses past its own
// connection setup and SyncBlockchain's getheaders would go unanswered
// forever.
func Dial(addr string, pver uint32, net_ wire.BitcoinNet) (*Socket, <-chan wire.Message, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dialing peer")
	}
	s := &Socket{
		conn:   conn,
		pver:   pver,
		net:    net_,
		outbox: make(chan wire.Message, 16),
		done:   make(chan struct{}),
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "handshaking with peer")
	}

	go s.writeLoop()

	inbox := make(chan wire.Message, InboxSize)
	go s.readLoop(inbox)
	return s, inbox, nil
}

// handshake runs the standard outbound version/verack exchange directly
// on the raw connection, before the writer/reader goroutines start, so
// the peer accepts the node as a normal client rather than dropping it
// for speaking out of turn.
func (s *Socket) handshake() error {
	nonce, err := wire.RandomUint64()
	if err != nil {
		return errors.Wrap(err, "generating handshake nonce")
	}

	me := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	you := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
	if tcpAddr, ok := s.conn.RemoteAddr().(*net.TCPAddr); ok {
		you = wire.NewNetAddressIPPort(tcpAddr.IP, uint16(tcpAddr.Port), wire.SFNodeNetwork)
	}

	version := wire.NewMsgVersion(me, you, nonce, 0)
	if err := wire.WriteMessage(s.conn, version, s.pver, s.net); err != nil {
		return errors.Wrap(err, "sending version")
	}

	var gotVersion, gotVerAck bool
	for !gotVersion || !gotVerAck {
		msg, _, err := wire.ReadMessage(s.conn, s.pver, s.net)
		if err != nil {
			return errors.Wrap(err, "reading handshake message")
		}
		switch msg.(type) {
		case *wire.MsgVersion:
			gotVersion = true
			if err := wire.WriteMessage(s.conn, wire.NewMsgVerAck(), s.pver, s.net); err != nil {
				return errors.Wrap(err, "sending verack")
			}
		case *wire.MsgVerAck:
			gotVerAck = true
		default:
			logger.Debug("ignoring message during handshake", "cmd", msg.Command())
		}
	}
	return nil
}

func (s *Socket) writeLoop() {
	for {
		select {
		case msg := <-s.outbox:
			if err := wire.WriteMessage(s.conn, msg, s.pver, s.net); err != nil {
				logger.Warn("failed to write message", "err", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Socket) readLoop(inbox chan<- wire.Message) {
	defer close(inbox)
	for {
		msg, _, err := wire.ReadMessage(s.conn, s.pver, s.net)
		if err != nil {
			logger.Warn("peer connection closed", "err", err)
			return
		}
		select {
		case inbox <- msg:
		case <-s.done:
			return
		}
	}
}

// SendMessage serializes and emits m on the wire (§3's socket contract).
func (s *Socket) SendMessage(m wire.Message) error {
	select {
	case s.outbox <- m:
		return nil
	case <-s.done:
		return errors.New("socket: closed")
	}
}

// Close tears down the writer and reader goroutines.
func (s *Socket) Close() error {
	close(s.done)
	return s.conn.Close()
}
