// Package node serves an in-memory chain over the HTTP protocol of the
// ledger node.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicnetworks/ballotguard/src/ledger"
	"github.com/mosaicnetworks/ballotguard/src/ledger/inmem"
	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
)

// Server exposes a Chain over HTTP:
//
//  POST /new_transaction  add a transaction to the pending pool
//  GET  /mine             seal the pending pool into a block
//  GET  /chain            {"length": n, "chain": [blocks]}
//  GET  /pending_tx       pending transactions
type Server struct {
	bindAddress string
	chain       *inmem.Chain
	router      chi.Router
	logger      *logrus.Entry
}

// NewServer ...
func NewServer(bindAddress string, chain *inmem.Chain, logger *logrus.Entry) *Server {
	s := &Server{
		bindAddress: bindAddress,
		chain:       chain,
		router:      chi.NewRouter(),
		logger:      logger.WithField("component", "ledger-node"),
	}

	s.registerHandlers()

	return s
}

func (s *Server) registerHandlers() {
	s.logger.Debug("Registering ledger node handlers")
	s.router.Post("/new_transaction", s.makeHandler(s.NewTransaction))
	s.router.Get("/mine", s.makeHandler(s.Mine))
	s.router.Get("/chain", s.makeHandler(s.GetChain))
	s.router.Get("/pending_tx", s.makeHandler(s.GetPending))
}

func (s *Server) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router, for embedding in another server or in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the bind address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
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

	s.logger.WithField("bind_address", s.bindAddress).Info("Serving ledger node")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewTransaction ...
func (s *Server) NewTransaction(w http.ResponseWriter, r *http.Request) {
	var tx vote.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		s.logger.WithError(err).Error("Decoding transaction")
		http.Error(w, "Invalid transaction data", http.StatusBadRequest)
		return
	}

	if err := s.chain.SubmitTransaction(r.Context(), tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	w.Write([]byte("Success"))
}

// Mine ...
func (s *Server) Mine(w http.ResponseWriter, r *http.Request) {
	index, err := s.chain.Mine()
	if err != nil {
		s.logger.WithError(err).Error("Mining block")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if index < 0 {
		json.NewEncoder(w).Encode(map[string]string{"message": "No transactions to mine"})
		return
	}
	json.NewEncoder(w).Encode(map[string]int{"index": index})
}

// GetChain ...
func (s *Server) GetChain(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.chain.FetchChain(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(ledger.ChainResponse{
		Length: len(blocks),
		Chain:  blocks,
	})
}

// GetPending ...
func (s *Server) GetPending(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.chain.Pending())
}
