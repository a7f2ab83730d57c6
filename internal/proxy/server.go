package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/starkconform/starkconform/internal/rpc"
)

type sessionKeyType struct{}

var sessionKey sessionKeyType

const divergenceErrorCode = -32099

var errAllTargetsFailed = errors.New("all upstream targets failed")

// Server is the intercepting relay. It terminates TLS when certificate
// material is configured, rewrites request ids per session, and either
// forwards to a single upstream or fans out to all of them.
type Server struct {
	log      logrus.FieldLogger
	config   *Config
	resolver *Resolver
	recorder *Recorder
	upstream *http.Client

	// nextID issues proxy-internal request ids, monotonic across all
	// sessions so two connections reusing the same client id never
	// collide upstream.
	nextID atomic.Uint64

	srv *http.Server
}

// NewServer wires the relay from validated configuration.
func NewServer(log logrus.FieldLogger, config *Config) (*Server, error) {
	resolver := NewResolver(log, config.Hosts)

	s := &Server{
		log:      log.WithField("component", "proxy"),
		config:   config,
		resolver: resolver,
		upstream: &http.Client{
			Timeout: config.UpstreamTimeout.Std(),
			Transport: &http.Transport{
				DialContext:         resolver.DialContext,
				MaxIdleConnsPerHost: 8,
			},
		},
	}

	if config.Record {
		recorder, err := NewRecorder(log, config.RecordPath)
		if err != nil {
			return nil, err
		}

		s.recorder = recorder
	}

	return s, nil
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)

	s.srv = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ConnContext: func(ctx context.Context, _ net.Conn) context.Context {
			return context.WithValue(ctx, sessionKey, NewSession())
		},
	}

	s.log.WithFields(logrus.Fields{
		"listen_addr": s.config.ListenAddr,
		"mode":        s.config.Mode,
		"targets":     len(s.config.Targets),
		"tls":         s.config.TLSCert != "",
	}).Info("starting proxy")

	var err error
	if s.config.TLSCert != "" {
		err = s.srv.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
	} else {
		err = s.srv.ListenAndServe()
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Stop shuts the listener down and closes the recording sink.
func (s *Server) Stop(ctx context.Context) error {
	var err error

	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}

	if s.recorder != nil {
		if closeErr := s.recorder.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}

	return err
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	session, ok := r.Context().Value(sessionKey).(*Session)
	if !ok {
		// Only reachable when the handler is mounted outside Start.
		session = NewSession()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)

		return
	}

	var req struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
		ID      json.RawMessage `json:"id"`
	}

	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, json.RawMessage("null"), -32700, "parse error")

		return
	}

	internalID := s.nextID.Add(1)
	session.Track(internalID, req.ID)

	rewritten, err := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
		ID      uint64          `json:"id"`
	}{
		JSONRPC: req.JSONRPC,
		Method:  req.Method,
		Params:  req.Params,
		ID:      internalID,
	})
	if err != nil {
		http.Error(w, "rewriting request", http.StatusInternalServerError)

		return
	}

	targets := s.config.Targets
	if s.config.Mode == ModePassThrough {
		targets = targets[:1]
	}

	results := s.dispatch(r.Context(), targets, req.Method, rewritten)

	var divergence, diff string
	if s.config.Mode == ModeFanout {
		divergence, diff = compareResults(results, s.config.IgnoreFields)
	}

	s.record(session, req.Method, body, results, divergence)

	// Restore before any early return so the remap table cannot grow on a
	// long-lived connection whose upstreams keep failing.
	inboundID, _ := session.Restore(internalID)
	if inboundID == nil {
		inboundID = json.RawMessage("null")
	}

	winner := firstSuccess(results)
	if winner == nil {
		s.log.WithField("method", req.Method).Warn("all upstream targets failed")
		http.Error(w, errAllTargetsFailed.Error(), http.StatusBadGateway)

		return
	}

	if divergence != "" {
		s.log.WithFields(logrus.Fields{
			"method":     req.Method,
			"divergence": divergence,
		}).Warn("fan-out divergence detected")

		if s.config.FailOnDivergence {
			w.Header().Set(rpc.DivergenceHeader, divergence)
			writeRPCError(w, inboundID, divergenceErrorCode, "fan-out divergence: "+diff)

			return
		}

		w.Header().Set(rpc.DivergenceHeader, divergence)
	}

	s.writeResponse(w, winner, inboundID)
}

// dispatch issues the rewritten request to every target concurrently and
// waits for all legs. The proxy never retries; failures surface as-is.
func (s *Server) dispatch(ctx context.Context, targets []*rpc.Endpoint, method string, payload []byte) []*upstreamResult {
	results := make([]*upstreamResult, len(targets))

	var (
		group errgroup.Group
		mu    sync.Mutex
	)

	for i, target := range targets {
		group.Go(func() error {
			res := s.callTarget(ctx, target, payload)

			mu.Lock()
			results[i] = res
			mu.Unlock()

			if res.Err != nil {
				s.log.WithError(res.Err).WithFields(logrus.Fields{
					"target": target.Name,
					"method": method,
				}).Warn("upstream call failed")
			}

			return nil
		})
	}

	_ = group.Wait()

	return results
}

func (s *Server) callTarget(ctx context.Context, target *rpc.Endpoint, payload []byte) *upstreamResult {
	res := &upstreamResult{Target: target.Name}
	started := time.Now()

	defer func() {
		res.DurationMs = time.Since(started).Milliseconds()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(payload))
	if err != nil {
		res.Err = fmt.Errorf("building upstream request: %w", err)

		return res
	}

	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.upstream.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("calling %s: %w", target.Name, err)

		return res
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		res.Err = fmt.Errorf("reading %s response: %w", target.Name, err)

		return res
	}

	if httpResp.StatusCode != http.StatusOK {
		res.Err = fmt.Errorf("%s returned status %d", target.Name, httpResp.StatusCode)

		return res
	}

	var parsed envelope
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.Err = fmt.Errorf("decoding %s response: %w", target.Name, err)

		return res
	}

	res.Response = body
	res.Parsed = &parsed

	return res
}

// writeResponse forwards the winning upstream response with the client's
// original id restored.
func (s *Server) writeResponse(w http.ResponseWriter, winner *upstreamResult, inboundID json.RawMessage) {
	out := map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      inboundID,
	}

	if winner.Parsed.Result != nil {
		out["result"] = winner.Parsed.Result
	}

	if winner.Parsed.Error != nil {
		out["error"] = winner.Parsed.Error
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) record(session *Session, method string, request []byte, results []*upstreamResult, divergence string) {
	if s.recorder == nil {
		return
	}

	for _, res := range results {
		exchange := &Exchange{
			SessionID:  session.ID,
			Target:     res.Target,
			Method:     method,
			Request:    request,
			Response:   res.Response,
			Divergence: divergence,
			DurationMs: res.DurationMs,
			Timestamp:  time.Now().UTC(),
		}

		if res.Err != nil {
			exchange.Error = res.Err.Error()
		}

		s.recorder.Record(exchange)
	}
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}
