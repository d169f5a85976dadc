// Package ballotguard wires the components of a BallotGuard server together
// and runs them.
package ballotguard

import (
	"context"
	"fmt"
	"os"

	"github.com/mosaicnetworks/ballotguard/src/auth"
	"github.com/mosaicnetworks/ballotguard/src/config"
	"github.com/mosaicnetworks/ballotguard/src/events"
	"github.com/mosaicnetworks/ballotguard/src/features"
	"github.com/mosaicnetworks/ballotguard/src/gate"
	"github.com/mosaicnetworks/ballotguard/src/ledger"
	"github.com/mosaicnetworks/ballotguard/src/ledger/inmem"
	"github.com/mosaicnetworks/ballotguard/src/roster"
	"github.com/mosaicnetworks/ballotguard/src/scorer"
	"github.com/mosaicnetworks/ballotguard/src/service"
	"github.com/mosaicnetworks/ballotguard/src/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BallotGuard is the engine of a BallotGuard server.
type BallotGuard struct {
	Config     *config.Config
	Store      store.Store
	Extractor  *features.Extractor
	Scorer     *scorer.Scorer
	Ledger     ledger.Adapter
	Dispatcher *ledger.Dispatcher
	Sink       events.Sink
	Gate       *gate.Gate
	Sessions   *auth.Sessions
	Service    *service.Service

	logger *logrus.Entry
}

// NewBallotGuard creates an engine. Init must be called before Run.
func NewBallotGuard(conf *config.Config) *BallotGuard {
	return &BallotGuard{
		Config: conf,
		logger: conf.Logger(),
	}
}

// Init creates every component, in dependency order.
func (b *BallotGuard) Init() error {
	if err := b.initRoster(); err != nil {
		return err
	}

	if err := b.initStore(); err != nil {
		return err
	}

	b.Extractor = features.NewExtractor(b.Config.Scorer.Sentinel)
	b.Scorer = scorer.NewScorer(b.Config.Scorer, b.logger)

	if err := b.initLedger(); err != nil {
		return err
	}

	if err := b.initSink(); err != nil {
		return err
	}

	if err := b.initGate(); err != nil {
		return err
	}

	b.Sessions = auth.NewSessions(b.Config.Credentials, b.logger)

	b.initService()

	return nil
}

// initRoster replaces the configured roster and credentials with
// [datadir]/roster.json when that file exists.
func (b *BallotGuard) initRoster() error {
	if b.Config.DataDir == "" {
		return nil
	}

	j := roster.NewJSONRoster(b.Config.DataDir)

	voters, err := j.Voters()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", j.Path(), err)
	}

	b.Config.Roster, b.Config.Credentials = roster.Split(voters)

	b.logger.WithFields(logrus.Fields{
		"path":   j.Path(),
		"voters": len(b.Config.Roster),
	}).Debug("loaded roster")

	return nil
}

func (b *BallotGuard) initStore() error {
	if !b.Config.Store {
		b.Store = store.NewInmemStore()

		b.logger.Debug("created new in-mem store")

		return nil
	}

	b.logger.WithField("path", b.Config.DatabaseDir).Debug("Attempting to load or create database")

	st, err := store.NewBadgerStore(b.Config.DatabaseDir, b.logger)
	if err != nil {
		return fmt.Errorf("opening badger store: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"votes":  st.VoteCount(),
		"frauds": st.FraudCount(),
	}).Debug("loaded badger store")

	b.Store = st

	return nil
}

func (b *BallotGuard) initLedger() error {
	lc := b.Config.Ledger

	if b.Config.Standalone {
		chain, err := inmem.NewChain(b.logger)
		if err != nil {
			return err
		}
		b.Ledger = chain

		b.logger.Debug("using in-process ledger")
	} else {
		b.Ledger = ledger.NewHTTPClient(lc.Addr, lc.Timeout)

		b.logger.WithField("addr", lc.Addr).Debug("using ledger node")
	}

	b.Dispatcher = ledger.NewDispatcher(b.Ledger,
		b.Store,
		ledger.RetryPolicy{
			MaxAttempts: lc.RetryAttempts,
			BaseDelay:   lc.RetryBaseDelay,
			MaxDelay:    lc.RetryMaxDelay,
			Jitter:      lc.RetryBaseDelay / 2,
		},
		b.logger)

	return nil
}

func (b *BallotGuard) initSink() error {
	ec := b.Config.Events

	sinks := events.Multi{}

	if len(ec.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSink(ec.KafkaBrokers, ec.KafkaTopic, nil)
		if err != nil {
			return fmt.Errorf("connecting to kafka: %w", err)
		}
		sinks = append(sinks, ks)

		b.logger.WithFields(logrus.Fields{
			"brokers": ec.KafkaBrokers,
			"topic":   ec.KafkaTopic,
		}).Debug("mirroring decisions to kafka")
	}

	if ec.PostgresDSN != "" {
		db, err := events.OpenPostgres(ec.PostgresDSN, b.logger)
		if err != nil {
			sinks.Close()
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		gs, err := events.NewGormSink(db)
		if err != nil {
			sinks.Close()
			return err
		}
		sinks = append(sinks, gs)

		b.logger.Debug("mirroring decisions to postgres")
	}

	switch len(sinks) {
	case 0:
		b.Sink = events.Nop{}
	case 1:
		b.Sink = sinks[0]
	default:
		b.Sink = sinks
	}

	return nil
}

func (b *BallotGuard) initGate() error {
	g, err := gate.NewGate(gate.Config{
		Roster:   b.Config.Roster,
		MaxFlags: b.Config.MaxFlags,
	},
		b.Store,
		b.Extractor,
		b.Scorer,
		b.Dispatcher,
		b.Sink,
		b.logger)
	if err != nil {
		return fmt.Errorf("initializing gate: %w", err)
	}

	b.Gate = g

	return nil
}

func (b *BallotGuard) initService() {
	if b.Config.ServiceAddr != "" {
		b.Service = service.NewService(b.Config.ServiceAddr,
			b.Config.AdminToken,
			b.Gate,
			b.Sessions,
			b.Store,
			b.Scorer,
			b.Ledger,
			b.Config.Choices,
			b.logger)
	}
}

// Run hands off the votes left pending by a previous run, then serves the
// API and the reconciliation loop until ctx is done or one of them fails.
func (b *BallotGuard) Run(ctx context.Context) error {
	if n, err := b.Dispatcher.Reconcile(ctx); err != nil {
		b.logger.WithError(err).Warn("Ledger unreachable at startup, pending votes left for reconciliation")
	} else if n > 0 {
		b.logger.WithField("handed_off", n).Info("Handed off pending votes")
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if b.Service != nil {
		group.Go(func() error {
			return b.Service.Serve(ctx)
		})
	}

	if interval := b.Config.Ledger.ReconcileInterval; interval > 0 {
		group.Go(func() error {
			return b.Dispatcher.Run(ctx, interval)
		})
	}

	return group.Wait()
}

// Shutdown closes the sinks and the store.
func (b *BallotGuard) Shutdown() error {
	b.logger.Debug("Shutting down")

	var firstErr error
	if b.Sink != nil {
		if err := b.Sink.Close(); err != nil {
			firstErr = err
		}
	}
	if b.Store != nil {
		if err := b.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
