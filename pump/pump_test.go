package pump

import (
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/wizardswallet/btcnode/idle"
)

// dialLoopback stands up a local TCP listener acting as a minimal fake
// peer — completing the version/verack handshake idle.Dial now performs
// — and dials it through the real idle.Dial constructor, so the ping
// arm has a genuine *idle.Socket to send its pong on. Every message the
// socket writes after the handshake is forwarded on the returned channel.
func dialLoopback(t *testing.T) (*idle.Socket, <-chan wire.Message) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	sent := make(chan wire.Message, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if _, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.TestNet3); err != nil {
			return
		}
		addr := wire.NewNetAddressIPPort(net.IPv4zero, 0, wire.SFNodeNetwork)
		if err := wire.WriteMessage(conn, wire.NewMsgVersion(addr, addr, 0, 0), wire.ProtocolVersion, wire.TestNet3); err != nil {
			return
		}
		if err := wire.WriteMessage(conn, wire.NewMsgVerAck(), wire.ProtocolVersion, wire.TestNet3); err != nil {
			return
		}
		// The socket answers our version with its own verack.
		if _, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.TestNet3); err != nil {
			return
		}
		for {
			msg, _, err := wire.ReadMessage(conn, wire.ProtocolVersion, wire.TestNet3)
			if err != nil {
				return
			}
			select {
			case sent <- msg:
			default:
			}
		}
	}()

	sock, _, err := idle.Dial(ln.Addr().String(), wire.ProtocolVersion, wire.TestNet3)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock, sent
}

func TestNextDiscardsUnmatchedAndReturnsOnMatch(t *testing.T) {
	inbox := make(chan wire.Message, 4)
	inbox <- wire.NewMsgAddr()
	inbox <- wire.NewMsgVerAck()

	arms := map[string]Arm{
		wire.CmdVerAck: func(msg wire.Message) (interface{}, bool) { return msg, true },
	}
	result, err := Next(inbox, nil, arms)
	require.NoError(t, err)
	require.IsType(t, &wire.MsgVerAck{}, result)
}

func TestNextReturnsErrorOnClosedChannel(t *testing.T) {
	inbox := make(chan wire.Message)
	close(inbox)
	_, err := Next(inbox, nil, map[string]Arm{})
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestNextAutoRespondsToPingWithoutMatching(t *testing.T) {
	sock, sent := dialLoopback(t)

	inbox := make(chan wire.Message, 2)
	inbox <- wire.NewMsgPing(42)
	inbox <- wire.NewMsgVerAck()

	result, err := Next(inbox, sock, map[string]Arm{
		wire.CmdVerAck: func(msg wire.Message) (interface{}, bool) { return msg, true },
	})
	require.NoError(t, err)
	require.IsType(t, &wire.MsgVerAck{}, result)

	select {
	case msg := <-sent:
		pong, ok := msg.(*wire.MsgPong)
		require.True(t, ok)
		require.Equal(t, uint64(42), pong.Nonce)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong sent in response to the ping")
	}
}
