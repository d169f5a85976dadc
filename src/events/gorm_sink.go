package events

import (
	"context"
	"fmt"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/vote"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AcceptedVote is a row of the accepted_votes table.
type AcceptedVote struct {
	ID                      uint      `gorm:"primaryKey"`
	Seq                     int       `gorm:"uniqueIndex"`
	VoterID                 string    `gorm:"size:64;uniqueIndex"`
	Party                   string    `gorm:"size:64;index"`
	IPAddress               string    `gorm:"size:64;index"`
	SubmittedAt             time.Time `gorm:"index"`
	OriginRepeatCount       int
	IdentityRepeatCount     int
	TimeSinceLastSameOrigin float64
	CreatedAt               time.Time
}

// TableName ...
func (AcceptedVote) TableName() string { return "accepted_votes" }

// FraudRecordRow is a row of the fraud_records table.
type FraudRecordRow struct {
	ID          uint      `gorm:"primaryKey"`
	Seq         int       `gorm:"uniqueIndex"`
	VoterID     string    `gorm:"size:64;index"`
	IPAddress   string    `gorm:"size:64;index"`
	SubmittedAt time.Time `gorm:"index"`
	Reason      string    `gorm:"size:512"`
	CreatedAt   time.Time
}

// TableName ...
func (FraudRecordRow) TableName() string { return "fraud_records" }

// GormSink writes decisions to SQL tables.
type GormSink struct {
	db *gorm.DB
}

// OpenPostgres opens a Postgres connection whose gorm logger writes through
// the given entry, at warn level.
func OpenPostgres(dsn string, entry *logrus.Entry) (*gorm.DB, error) {
	gormLogger := logger.New(
		entry.WithField("component", "gorm"),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
}

// NewGormSink migrates the tables and returns the sink.
func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&AcceptedVote{}, &FraudRecordRow{}); err != nil {
		return nil, fmt.Errorf("migrating event tables: %w", err)
	}
	return &GormSink{db: db}, nil
}

// Emit implements the Sink interface.
func (s *GormSink) Emit(ctx context.Context, typ string, v interface{}) error {
	row, err := toRow(typ, v)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// Close implements the Sink interface.
func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(typ string, v interface{}) (interface{}, error) {
	switch e := v.(type) {
	case *vote.VoteAttempt:
		if typ != TypeVoteAccepted {
			break
		}
		return &AcceptedVote{
			Seq:                     e.Seq,
			VoterID:                 e.IdentityID,
			Party:                   e.Choice,
			IPAddress:               e.OriginAddress,
			SubmittedAt:             e.SubmittedAt,
			OriginRepeatCount:       e.Features.OriginRepeatCount,
			IdentityRepeatCount:     e.Features.IdentityRepeatCount,
			TimeSinceLastSameOrigin: e.Features.TimeSinceLastSameOrigin,
		}, nil
	case *vote.FraudRecord:
		if typ != TypeVoteFlagged {
			break
		}
		return &FraudRecordRow{
			Seq:         e.Seq,
			VoterID:     e.IdentityID,
			IPAddress:   e.OriginAddress,
			SubmittedAt: e.SubmittedAt,
			Reason:      e.Reason,
		}, nil
	}
	return nil, fmt.Errorf("unsupported event %s with payload %T", typ, v)
}
