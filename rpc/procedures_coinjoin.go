package rpc

import (
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"

	"github.com/wizardswallet/btcnode/coinjoin"
	"github.com/wizardswallet/btcnode/idle"
	"github.com/wizardswallet/btcnode/walletstub"
)

var coinjoinStartEntry = &Entry{
	Name:     "coinjoin_start",
	Desc:     "Starts a new coinjoin session",
	Usage:    "<target amount (satoshi)> <join duration (seconds)> <merge duration (seconds)>",
	Coinjoin: true,
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 3 {
			return nil, usageError(e)
		}
		var target uint64
		var joinSecs, expirySecs int64
		if err := decodeParam(params[0], &target); err != nil {
			return nil, err
		}
		if err := decodeParam(params[1], &joinSecs); err != nil {
			return nil, err
		}
		if err := decodeParam(params[2], &expirySecs); err != nil {
			return nil, err
		}

		if st.Wallet == nil {
			return nil, errWallet(errors.New("wallet not available"))
		}

		server := st.EnsureCoinjoin()
		server.UpdateAll()

		address, addrErr := donationAddress(st.Wallet)
		if addrErr != nil {
			return nil, errWallet(addrErr)
		}

		session, sessErr := coinjoin.NewSession(target,
			time.Duration(joinSecs)*time.Second,
			time.Duration(expirySecs)*time.Second,
			address)
		if sessErr != nil {
			return nil, errBadRng(sessErr.Error())
		}
		server.SetCurrentSession(session)
		return session.ID(), nil
	},
}

// donationAddress implements the original's "new_address, account-insert
// on first use, retry" dance for the reserved "coinjoin" account.
func donationAddress(w *walletstub.Wallet) (btcutil.Address, error) {
	addr, err := w.NewAddress("coinjoin", walletstub.External)
	if err == walletstub.ErrAccountNotFound {
		if insertErr := w.AccountInsert("coinjoin"); insertErr != nil {
			return nil, insertErr
		}
		addr, err = w.NewAddress("coinjoin", walletstub.External)
	}
	return addr, err
}

var coinjoinStatusEntry = &Entry{
	Name:     "coinjoin_status",
	Desc:     "Gets the status of the current coinjoin session",
	Usage:    "[session id]",
	Coinjoin: true,
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		server := st.CoinjoinOrNil()
		if server == nil {
			return nil, errSessionNotFound()
		}
		server.UpdateAll()

		switch len(params) {
		case 0:
			session, ok := server.CurrentSession()
			if !ok {
				return nil, errSessionNotFound()
			}
			return sessionStatus(session), nil
		case 1:
			var id uint64
			if err := decodeParam(params[0], &id); err != nil {
				return nil, err
			}
			session, ok := server.Session(coinjoin.SessionId(id))
			if !ok {
				return nil, errSessionNotFound()
			}
			return sessionStatus(session), nil
		default:
			return nil, usageError(e)
		}
	},
}

func sessionStatus(s *coinjoin.Session) map[string]interface{} {
	_, hasSigned := s.SignedTransaction()
	return map[string]interface{}{
		"id":         s.ID(),
		"state":      s.State(),
		"has_signed": hasSigned,
	}
}

// sessionForParams resolves the target session for the two add_raw_*
// procedures, which both accept <rawtx> [session id] (§4.E). Callers
// validate arity before calling, so e is only consulted for the usage
// string on the impossible-but-typed default branch.
func sessionForParams(e *Entry, st *idle.State, params []json.RawMessage) (*coinjoin.Session, *Error) {
	server := st.CoinjoinOrNil()
	if server == nil {
		return nil, errSessionNotFound()
	}
	server.UpdateAll()

	switch len(params) {
	case 1:
		session, ok := server.CurrentSession()
		if !ok {
			return nil, errSessionNotFound()
		}
		return session, nil
	case 2:
		var id uint64
		if err := decodeParam(params[1], &id); err != nil {
			return nil, err
		}
		session, ok := server.Session(coinjoin.SessionId(id))
		if !ok {
			return nil, errSessionNotFound()
		}
		return session, nil
	default:
		return nil, usageError(e)
	}
}

var coinjoinAddRawUnsignedEntry = &Entry{
	Name:     "coinjoin_add_raw_unsigned",
	Desc:     "Adds a unsigned transaction to the current coinjoin session",
	Usage:    "<rawtx> [session id]",
	Coinjoin: true,
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 && len(params) != 2 {
			return nil, usageError(e)
		}
		session, serr := sessionForParams(e, st, params)
		if serr != nil {
			return nil, serr
		}
		tx, terr := decodeHexTx(params[0])
		if terr != nil {
			return nil, terr
		}
		if err := session.AddUnsigned(tx); err != nil {
			return nil, errCoinjoin(err)
		}
		return true, nil
	},
}

var coinjoinAddRawSignedEntry = &Entry{
	Name:     "coinjoin_add_raw_signed",
	Desc:     "Submits a (partially-)signed transaction to the current coinjoin session",
	Usage:    "<rawtx> [session id]",
	Coinjoin: true,
	Call: func(e *Entry, st *idle.State, params []json.RawMessage) (interface{}, *Error) {
		if len(params) != 1 && len(params) != 2 {
			return nil, usageError(e)
		}
		session, serr := sessionForParams(e, st, params)
		if serr != nil {
			return nil, serr
		}
		tx, terr := decodeHexTx(params[0])
		if terr != nil {
			return nil, terr
		}
		addErr := session.AddSigned(tx)
		var callErr *Error
		if addErr != nil {
			callErr = errCoinjoin(addErr)
		}

		if session.State() == coinjoin.Complete {
			if signed, ok := session.SignedTransaction(); ok {
				if sendErr := st.Socket.SendMessage(signed); sendErr != nil {
					logger.Warn("failed to broadcast completed coinjoin transaction", "err", sendErr)
				}
			}
		}
		if callErr != nil {
			return nil, callErr
		}
		return true, nil
	},
}
