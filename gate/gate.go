// Package gate applies the session policy to protected requests: attach a valid token, and on
// an authentication rejection force one refresh and replay the request once.
package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/freight-session/authapi"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/metrics"
	"github.com/jrsteele09/freight-session/session"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// Session is the part of session.Manager the gate relies on
type Session interface {
	EnsureValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, staleToken string) (string, error)
	EndSessionIf(ctx context.Context, reason session.EndReason, accessToken string) bool
}

var _ Session = (*session.Manager)(nil)

// Observer sees every state transition, keyed by request ID
type Observer func(requestID string, from, to State)

type Gate struct {
	session   Session
	transport Transport
	logger    zerolog.Logger
	recorder  metrics.Recorder
	observer  Observer
}

type Option func(*Gate)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger.With().Str("component", "gate").Logger()
	}
}

func WithRecorder(recorder metrics.Recorder) Option {
	return func(g *Gate) {
		g.recorder = recorder
	}
}

func WithObserver(observer Observer) Option {
	return func(g *Gate) {
		g.observer = observer
	}
}

func New(sess Session, transport Transport, options ...Option) *Gate {
	g := &Gate{
		session:   sess,
		transport: transport,
		logger:    zerolog.Nop(),
		recorder:  metrics.Nop{},
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// attempt tracks one request through the state machine
type attempt struct {
	gate  *Gate
	id    string
	state State
	log   zerolog.Logger
}

func (a *attempt) to(next State) {
	a.log.Debug().Stringer("from", a.state).Stringer("state", next).Msg("transition")
	if a.gate.observer != nil {
		a.gate.observer(a.id, a.state, next)
	}
	a.state = next
	if next.Final() {
		a.gate.recorder.GateRequest(next.String())
	}
}

// Do sends req with the session token.
//
// Success and non-auth failures (including 5xx) come back as a Response with a nil error; check
// Response.Class. A 403 returns the Response together with a *errors.PermissionDenied. Transport
// failures are *errors.TransientNetworkError. An unusable session, a failed refresh or a second
// 401 is a *errors.SessionExpiredError, and in the last case the session is ended unless it has
// moved on to a different token in the meantime.
func (g *Gate) Do(ctx context.Context, req *Request) (*Response, error) {
	req = req.clone()
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		req.Header.Set(RequestIDHeader, id)
	}
	a := &attempt{
		gate:  g,
		id:    id,
		state: StateInit,
		log:   g.logger.With().Str("request_id", id).Str("method", req.Method).Str("url", req.URL).Logger(),
	}

	token, err := g.session.EnsureValidToken(ctx)
	if err != nil {
		a.to(StateTerminalFailed)
		return nil, err
	}
	a.to(StateTokenReady)

	resp, err := g.send(ctx, a, req, token, StateSent)
	if err != nil || resp.Class != ClassAuthFailure {
		return resp, err
	}

	a.to(StateRefreshing)
	fresh, err := g.session.ForceRefresh(ctx, token)
	if err != nil {
		a.to(StateTerminalFailed)
		a.log.Info().Err(err).Msg("refresh after rejection failed")
		return nil, err
	}

	g.recorder.GateRetry()
	resp, err = g.send(ctx, a, req, fresh, StateRetrySent)
	if err != nil || resp.Class != ClassAuthFailure {
		return resp, err
	}

	a.to(StateTerminalFailed)
	if g.session.EndSessionIf(ctx, session.ReasonRequestRejected, fresh) {
		a.log.Warn().Int("status", resp.StatusCode).Msg("token rejected after refresh, session ended")
	} else {
		a.log.Info().Int("status", resp.StatusCode).Msg("token rejected after refresh, session already replaced")
	}
	return nil, apperrors.NewSessionExpired(newStatusError(resp))
}

// send dispatches one attempt and moves the state machine according to the outcome. An auth
// rejection is left for the caller to handle.
func (g *Gate) send(ctx context.Context, a *attempt, req *Request, token string, sent State) (*Response, error) {
	out := req.clone()
	out.Header.Set("Authorization", "Bearer "+token)
	a.to(sent)

	resp, err := g.transport.Do(ctx, out)
	if err != nil {
		a.to(StateOtherFailed)
		a.log.Info().Err(err).Msg("transport failure")
		return nil, err
	}

	switch resp.Class {
	case ClassSuccess:
		a.to(StateSuccess)
		return resp, nil
	case ClassAuthFailure:
		if sent == StateSent {
			a.to(StateAuthFailed)
		}
		return resp, nil
	case ClassForbidden:
		a.to(StateOtherFailed)
		detail := newStatusError(resp)
		return resp, &apperrors.PermissionDenied{Resource: req.URL, Detail: detail.Description}
	default:
		a.to(StateOtherFailed)
		return resp, nil
	}
}

// DoJSON sends in as a JSON body (when non-nil) and decodes a successful reply into out (when
// non-nil). Non-success responses become a *StatusError.
func (g *Gate) DoJSON(ctx context.Context, method, url string, in, out any) error {
	req := &Request{Method: method, URL: url, Header: make(http.Header)}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[Gate DoJSON] encode body: %w", err)
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.Class != ClassSuccess {
		return newStatusError(resp)
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return authapi.Decode(bytes.NewReader(resp.Body), out)
}
