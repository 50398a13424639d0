// Package coinjoin is the opaque, server-mediated multi-party
// transaction assembly protocol named by the GLOSSARY. The sync core
// never inspects session internals; the RPC dispatcher is its only
// caller (§4.E).
package coinjoin

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	mrand "math/rand"

	"github.com/wizardswallet/btcnode/internal/applog"
)

var logger = applog.NewModuleLogger(applog.ModuleCoinjoin)

// SessionState is the lifecycle of one session.
type SessionState int

const (
	Joining SessionState = iota
	Merging
	Complete
	Expired
)

// SessionId identifies a session for status/add_raw_* RPCs.
type SessionId uint64

// Session tracks one round of coinjoin assembly.
type Session struct {
	mu              sync.Mutex
	id              SessionId
	target          uint64
	donationAddress btcutil.Address
	joinDeadline    time.Time
	expiryDeadline  time.Time
	state           SessionState
	unsigned        []*wire.MsgTx
	signed          *wire.MsgTx
}

// ErrBadRng is returned when session-id generation fails.
var ErrBadRng = errors.New("coinjoin: could not generate a session id")

// NewSession starts a session with the given target amount and
// join/expiry durations, matching the original's
// `Session::new(target, join_duration, expiry_duration, address)`.
func NewSession(target uint64, joinDuration, expiryDuration time.Duration, address btcutil.Address) (*Session, error) {
	id, err := randomSessionID()
	if err != nil {
		return nil, errors.Wrap(ErrBadRng, err.Error())
	}
	now := time.Now()
	return &Session{
		id:              id,
		target:          target,
		donationAddress: address,
		joinDeadline:    now.Add(joinDuration),
		expiryDeadline:  now.Add(joinDuration + expiryDuration),
		state:           Joining,
	}, nil
}

func randomSessionID() (SessionId, error) {
	return SessionId(mrand.Uint64()), nil
}

func (s *Session) ID() SessionId { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// update advances the session's state machine against wall-clock time.
func (s *Session) update() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	switch s.state {
	case Joining:
		if now.After(s.joinDeadline) {
			s.state = Merging
		}
	case Merging:
		if now.After(s.expiryDeadline) {
			s.state = Expired
		}
	}
}

// AddUnsigned records an unsigned transaction proposal.
func (s *Session) AddUnsigned(tx *wire.MsgTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Joining {
		return errors.New("coinjoin: session is not accepting unsigned transactions")
	}
	s.unsigned = append(s.unsigned, tx)
	return nil
}

// AddSigned records a (partially-)signed transaction and marks the
// session Complete: the first accepted signed transaction completes it,
// and signatures are not counted per participant. The caller detects
// State() == Complete and broadcasts SignedTransaction().
func (s *Session) AddSigned(tx *wire.MsgTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Merging && s.state != Joining {
		return errors.New("coinjoin: session is no longer accepting signatures")
	}
	s.signed = tx
	s.state = Complete
	return nil
}

// SignedTransaction returns the completed transaction, if any.
func (s *Session) SignedTransaction() (*wire.MsgTx, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signed, s.signed != nil
}

// Server manages the (at most one, at a time) current session plus a
// history, addressable by id, of every session that has been replaced as
// current, whatever its state.
type Server struct {
	mu      sync.Mutex
	current *Session
	history map[SessionId]*Session
}

// NewServer lazily instantiated by the first coinjoin RPC, per §4.E.
func NewServer() *Server {
	return &Server{history: make(map[SessionId]*Session)}
}

// UpdateAll advances every tracked session's timers, matching the
// original's `server.update_all()` call at the top of every coinjoin
// RPC entry (§5, Cancellation).
func (srv *Server) UpdateAll() {
	srv.mu.Lock()
	sessions := make([]*Session, 0, len(srv.history)+1)
	if srv.current != nil {
		sessions = append(sessions, srv.current)
	}
	for _, s := range srv.history {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()

	for _, s := range sessions {
		s.update()
	}
}

func (srv *Server) SetCurrentSession(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.current != nil {
		srv.history[srv.current.ID()] = srv.current
	}
	srv.current = s
}

func (srv *Server) CurrentSession() (*Session, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.current, srv.current != nil
}

func (srv *Server) Session(id SessionId) (*Session, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.current != nil && srv.current.ID() == id {
		return srv.current, true
	}
	s, ok := srv.history[id]
	return s, ok
}
