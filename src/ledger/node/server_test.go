package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cm "github.com/mosaicnetworks/ballotguard/src/common"
	"github.com/mosaicnetworks/ballotguard/src/ledger"
	"github.com/mosaicnetworks/ballotguard/src/ledger/inmem"
	"github.com/mosaicnetworks/ballotguard/src/vote"
)

func newTestServer(t *testing.T) (*httptest.Server, *inmem.Chain) {
	logger := cm.NewTestEntry(t, cm.TestLogLevel)
	chain, err := inmem.NewChain(logger)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewServer("", chain, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, chain
}

func TestHTTPClientAgainstNode(t *testing.T) {
	srv, chain := newTestServer(t)
	client := ledger.NewHTTPClient(srv.URL, time.Second)
	ctx := context.Background()

	tx := vote.NewTransaction("VOID001", "Democratic", "10.0.0.1", time.Unix(1700000000, 0))
	if err := client.SubmitTransaction(ctx, tx); err != nil {
		t.Fatal(err)
	}

	if p := chain.Pending(); len(p) != 1 || p[0] != tx {
		t.Fatalf("pending should be [%+v], not %+v", tx, p)
	}

	if err := client.FinalizeBlock(ctx); err != nil {
		t.Fatal(err)
	}
	// Nothing left to mine.
	if err := client.FinalizeBlock(ctx); err != nil {
		t.Fatal(err)
	}

	blocks, err := client.FetchChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("chain should hold 2 blocks, not %d", len(blocks))
	}
	if got := blocks[1].Transactions; len(got) != 1 || got[0] != tx {
		t.Fatalf("block 1 should hold [%+v], not %+v", tx, got)
	}

	ok, err := vote.VerifyChain(blocks)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("fetched chain should verify")
	}
}

func TestInvalidTransaction(t *testing.T) {
	srv, _ := newTestServer(t)
	client := ledger.NewHTTPClient(srv.URL, time.Second)

	err := client.SubmitTransaction(context.Background(), vote.Transaction{})
	se, ok := err.(*ledger.StatusError)
	if !ok {
		t.Fatalf("err should be a *StatusError, not %T (%v)", err, err)
	}
	if se.Code != http.StatusBadRequest {
		t.Fatalf("Code should be %d, not %d", http.StatusBadRequest, se.Code)
	}
	if ledger.IsRetryable(err) {
		t.Fatalf("a rejected transaction should not be retryable")
	}
}

func TestChainResponseShape(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/chain")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if cors := resp.Header.Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Fatalf("CORS header should be *, not %q", cors)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"length", "chain"} {
		if _, ok := body[k]; !ok {
			t.Fatalf("response should have a %q field, got %v", k, body)
		}
	}

	var blocks []map[string]json.RawMessage
	if err := json.Unmarshal(body["chain"], &blocks); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"index", "previous_hash", "transactions", "hash"} {
		if _, ok := blocks[0][k]; !ok {
			t.Fatalf("block should have a %q field, got %v", k, blocks[0])
		}
	}
}
