// Package service exposes the vote intake and the review interface over a
// JSON HTTP API.
package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicnetworks/ballotguard/src/auth"
	"github.com/mosaicnetworks/ballotguard/src/gate"
	"github.com/mosaicnetworks/ballotguard/src/ledger"
	"github.com/mosaicnetworks/ballotguard/src/scorer"
	"github.com/mosaicnetworks/ballotguard/src/store"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// Service is the HTTP API of BallotGuard:
//
//  POST /login                   {voter_id, password} -> {token}
//  POST /logout                  invalidate the bearer token
//  POST /submit                  {voter_id, choice} with a bearer token
//  GET  /fraud                   Fraud Audit Log
//  GET  /votes?skip=n            Vote Event Log
//  GET  /chain                   ledger chain
//  GET  /results                 tally of the ledger transactions
//  GET  /stats                   counters
//  POST /admin/unlock/{voter_id} lift a flag lockout, with the admin token
type Service struct {
	bindAddress string
	adminToken  string
	router      chi.Router

	gate     *gate.Gate
	sessions *auth.Sessions
	store    store.Store
	scorer   *scorer.Scorer
	ledger   ledger.Adapter
	choices  []string
	now      func() time.Time

	logger *logrus.Entry
}

// NewService creates a Service. The /admin routes answer 403 while adminToken
// is empty.
func NewService(bindAddress string,
	adminToken string,
	g *gate.Gate,
	sessions *auth.Sessions,
	st store.Store,
	sc *scorer.Scorer,
	adapter ledger.Adapter,
	choices []string,
	logger *logrus.Entry) *Service {

	service := Service{
		bindAddress: bindAddress,
		adminToken:  adminToken,
		router:      chi.NewRouter(),
		gate:        g,
		sessions:    sessions,
		store:       st,
		scorer:      sc,
		ledger:      adapter,
		choices:     choices,
		now:         time.Now,
		logger:      logger.WithField("component", "service"),
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering BallotGuard API handlers")
	s.router.Post("/login", s.makeHandler(s.Login))
	s.router.Post("/logout", s.makeHandler(s.Logout))
	s.router.Post("/submit", s.makeHandler(s.Submit))
	s.router.Get("/fraud", s.makeHandler(s.GetFraud))
	s.router.Get("/votes", s.makeHandler(s.GetVotes))
	s.router.Get("/chain", s.makeHandler(s.GetChain))
	s.router.Get("/results", s.makeHandler(s.GetResults))
	s.router.Get("/stats", s.makeHandler(s.GetStats))
	s.router.Post("/admin/unlock/{voter_id}", s.makeAdminHandler(s.Unlock))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

func (s *Service) makeAdminHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return s.makeHandler(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			http.Error(w, "Admin routes are disabled", http.StatusForbidden)
			return
		}
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.logger.WithField("path", r.URL.Path).Warn("Rejected admin request")
			http.Error(w, "Invalid admin token", http.StatusUnauthorized)
			return
		}

		fn(w, r)
	})
}

// Handler returns the router, for tests or for mounting in another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address until ctx is done. This is a blocking
// call.
func (s *Service) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.bindAddress,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("bind_address", s.bindAddress).Info("Serving BallotGuard API")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type loginRequest struct {
	IdentityID string `json:"voter_id"`
	Password   string `json:"password"`
}

type submitRequest struct {
	IdentityID string `json:"voter_id"`
	Choice     string `json:"choice"`
}

// SubmitResponse is the body returned by /submit.
type SubmitResponse struct {
	Outcome     gate.Outcome        `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	Features    *vote.FeatureVector `json:"features,omitempty"`
	Score       float64             `json:"score,omitempty"`
	Seq         int                 `json:"seq"`
	LedgerError string              `json:"ledger_error,omitempty"`
}

// FraudEntry is a Fraud Audit Log record as shown to reviewers.
type FraudEntry struct {
	IdentityID    string `json:"voter_id"`
	OriginAddress string `json:"ip_address"`
	Timestamp     string `json:"timestamp"`
	Reason        string `json:"reason"`
}

// Results is the body returned by /results.
type Results struct {
	Tally map[string]int `json:"tally"`
	// Votes lists the recorded transactions, newest first.
	Votes []vote.Transaction `json:"votes"`
}

// Login ...
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid login data", http.StatusBadRequest)
		return
	}

	token, err := s.sessions.Login(req.IdentityID, req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout ...
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.sessions.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Submit ...
func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessions.Resolve(bearerToken(r))
	if !ok {
		http.Error(w, "Not logged in", http.StatusUnauthorized)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid vote data", http.StatusBadRequest)
		return
	}
	if req.IdentityID == "" {
		req.IdentityID = session
	}
	// The identity check comes first, whatever the choice.
	if req.IdentityID != session {
		res := s.gate.Submit(r.Context(), gate.Request{
			Session:       session,
			IdentityID:    req.IdentityID,
			OriginAddress: remoteIP(r),
			SubmittedAt:   s.now(),
		})
		writeJSON(w, http.StatusForbidden, SubmitResponse{Outcome: res.Outcome, Reason: res.Reason, Seq: res.Seq})
		return
	}
	if !s.validChoice(req.Choice) {
		http.Error(w, "Unknown choice: "+req.Choice, http.StatusBadRequest)
		return
	}

	// The hand-off must not be cut short by the client going away.
	ctx := context.WithoutCancel(r.Context())

	res := s.gate.Submit(ctx, gate.Request{
		Session:       session,
		IdentityID:    req.IdentityID,
		OriginAddress: remoteIP(r),
		Choice:        req.Choice,
		SubmittedAt:   s.now(),
	})

	resp := SubmitResponse{
		Outcome: res.Outcome,
		Reason:  res.Reason,
		Seq:     res.Seq,
	}
	if res.Outcome == gate.Accepted || res.Outcome == gate.Flagged {
		fv := res.Features
		resp.Features = &fv
		resp.Score = res.Verdict.Score
	}
	if res.LedgerErr != nil {
		resp.LedgerError = res.LedgerErr.Error()
	}

	code := http.StatusOK
	switch err := res.Err(req.IdentityID); {
	case gate.IsVoteErr(err, gate.DuplicateVote):
		code = http.StatusConflict
		resp.Reason = err.Error()
	case gate.IsVoteErr(err, gate.UnauthorizedIdentity):
		code = http.StatusForbidden
	}

	writeJSON(w, code, resp)
}

// GetFraud ...
func (s *Service) GetFraud(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.FraudRecords(-1)
	if err != nil {
		s.logger.WithError(err).Error("Reading fraud log")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res := make([]FraudEntry, 0, len(records))
	for _, rec := range records {
		res = append(res, FraudEntry{
			IdentityID:    rec.IdentityID,
			OriginAddress: rec.OriginAddress,
			Timestamp:     rec.ReadableTimestamp(),
			Reason:        rec.Reason,
		})
	}

	writeJSON(w, http.StatusOK, res)
}

// GetVotes ...
func (s *Service) GetVotes(w http.ResponseWriter, r *http.Request) {
	skip := -1
	if param := r.URL.Query().Get("skip"); param != "" {
		var err error
		skip, err = strconv.Atoi(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing skip parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	votes, err := s.store.Votes(skip)
	if err != nil {
		s.logger.WithError(err).Error("Reading vote log")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, votes)
}

// GetChain ...
func (s *Service) GetChain(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.ledger.FetchChain(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Fetching chain")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, ledger.ChainResponse{
		Length: len(blocks),
		Chain:  blocks,
	})
}

// GetResults ...
func (s *Service) GetResults(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.ledger.FetchChain(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Fetching chain")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, Tally(blocks, s.choices))
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.PendingHandoffs()
	if err != nil {
		s.logger.WithError(err).Error("Reading pending hand-offs")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"votes":            s.store.VoteCount(),
		"fraud_records":    s.store.FraudCount(),
		"voted":            s.gate.VotedCount(),
		"pending_handoffs": len(pending),
		"window":           s.scorer.WindowLen(),
	})
}

// Unlock ...
func (s *Service) Unlock(w http.ResponseWriter, r *http.Request) {
	s.gate.Unlock(chi.URLParam(r, "voter_id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) validChoice(choice string) bool {
	for _, c := range s.choices {
		if c == choice {
			return true
		}
	}
	return false
}

// Tally counts the transactions of a chain per choice. Every listed choice
// appears in the tally, with zero if nobody picked it.
func Tally(blocks []vote.Block, choices []string) Results {
	res := Results{
		Tally: make(map[string]int, len(choices)),
		Votes: []vote.Transaction{},
	}
	for _, c := range choices {
		res.Tally[c] = 0
	}

	for _, b := range blocks {
		for _, tx := range b.Transactions {
			res.Tally[tx.Choice]++
			res.Votes = append(res.Votes, tx)
		}
	}

	sort.SliceStable(res.Votes, func(i, j int) bool {
		return res.Votes[i].Timestamp > res.Votes[j].Timestamp
	})

	return res
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
