package rpc

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/wizardswallet/btcnode/idle"
)

// contentType is the only content-type the HTTP transport accepts,
// matching the teacher's networks/rpc package.
const contentType = "application/json"

// maxRequestContentLength bounds the request body, standing in for the
// teacher's common.MaxRequestContentLength; this tree's common package
// holds only the bookkeeping cache.
const maxRequestContentLength = 1024 * 128

// HTTPTimeouts carries the three http.Server timeouts the teacher's
// node command wires from its CLI flags.
type HTTPTimeouts struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultHTTPTimeouts mirrors the teacher's rpc.DefaultHTTPTimeouts.
var DefaultHTTPTimeouts = HTTPTimeouts{
	ReadTimeout:  30 * time.Second,
	WriteTimeout: 30 * time.Second,
	IdleTimeout:  120 * time.Second,
}

type request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id,omitempty"`
}

type response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result interface{}     `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Server is the in-process JSON-RPC HTTP transport of §4.E, dispatching
// every request against one shared Idle State.
type Server struct {
	state   *idle.State
	httpSrv *http.Server
}

// NewServer wires an http.Server around Dispatch, with the given bind
// address and timeouts (the teacher configures these identically from
// its CLI's --rpcaddr/--http.*timeout flags).
func NewServer(addr string, timeouts HTTPTimeouts, st *idle.State) *Server {
	s := &Server{state: st}
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      http.HandlerFunc(s.handle),
		ReadTimeout:  timeouts.ReadTimeout,
		WriteTimeout: timeouts.WriteTimeout,
		IdleTimeout:  timeouts.IdleTimeout,
	}
	return s
}

// ListenAndServe blocks, matching http.Server's own contract.
func (s *Server) ListenAndServe() error {
	logger.Info("rpc http server listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops accepting connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	code, errMsg := validateRequest(r)
	if code != 0 {
		http.Error(w, errMsg, code)
		return
	}

	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, response{Error: errInvalidParams(err.Error())})
		return
	}

	result, rpcErr := Dispatch(req.Method, req.Params, s.state)
	writeResponse(w, response{ID: req.ID, Result: result, Error: rpcErr})
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("content-type", contentType)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("failed to encode rpc response", "err", err)
	}
}

// validateRequest enforces method, content-type, and body-size before a
// single byte of JSON is parsed, matching the teacher's own
// validateRequest in networks/rpc/http.go.
func validateRequest(r *http.Request) (int, string) {
	if r.Method == http.MethodPut || r.Method == http.MethodDelete {
		return http.StatusMethodNotAllowed, "method not allowed"
	}
	if r.ContentLength > maxRequestContentLength {
		return http.StatusRequestEntityTooLarge, "content length too large"
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("content-type"))
	if r.Method == http.MethodPost && (err != nil || !strings.EqualFold(mt, contentType)) {
		return http.StatusUnsupportedMediaType, "invalid content type"
	}
	return 0, ""
}
