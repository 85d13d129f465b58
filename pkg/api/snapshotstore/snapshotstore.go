package snapshotstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/boa-dev/conformoor/pkg/config"
)

// Store provides persistence for collected conformance data.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context, ref string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, ref string) ([]Snapshot, error)
	ListRefs(ctx context.Context) ([]string, error)
	DeleteSnapshot(ctx context.Context, id uint) error

	UpsertRelease(ctx context.Context, rel *Release) error
	ListReleases(ctx context.Context) ([]Release, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a snapshot Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "snapshotstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Snapshot{},
		&Release{},
	); err != nil {
		return fmt.Errorf("running snapshot migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Snapshot database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertSnapshot inserts or updates a snapshot keyed by ref + commit.
func (s *store) UpsertSnapshot(ctx context.Context, snap *Snapshot) error {
	result := s.db.WithContext(ctx).
		Where("ref = ? AND \"commit\" = ?", snap.Ref, snap.Commit).
		Assign(snap).
		FirstOrCreate(snap)
	if result.Error != nil {
		return fmt.Errorf("upserting snapshot: %w", result.Error)
	}

	return nil
}

// LatestSnapshot returns the most recently fetched snapshot for a ref,
// or nil when none has been collected yet.
func (s *store) LatestSnapshot(
	ctx context.Context, ref string,
) (*Snapshot, error) {
	var snap Snapshot

	err := s.db.WithContext(ctx).
		Where("ref = ?", ref).
		Order("fetched_at DESC, id DESC").
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}

	return &snap, nil
}

// ListSnapshots returns all snapshots for a ref, oldest first.
func (s *store) ListSnapshots(
	ctx context.Context, ref string,
) ([]Snapshot, error) {
	var snaps []Snapshot
	if err := s.db.WithContext(ctx).
		Where("ref = ?", ref).
		Order("fetched_at ASC, id ASC").
		Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	return snaps, nil
}

// ListRefs returns the distinct refs with collected snapshots.
func (s *store) ListRefs(ctx context.Context) ([]string, error) {
	var refs []string
	if err := s.db.WithContext(ctx).
		Model(&Snapshot{}).
		Distinct("ref").
		Order("ref ASC").
		Pluck("ref", &refs).Error; err != nil {
		return nil, fmt.Errorf("listing refs: %w", err)
	}

	return refs, nil
}

// DeleteSnapshot removes a snapshot by id.
func (s *store) DeleteSnapshot(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&Snapshot{}, id).Error; err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}

	return nil
}

// UpsertRelease inserts or updates a release keyed by tag name.
func (s *store) UpsertRelease(ctx context.Context, rel *Release) error {
	result := s.db.WithContext(ctx).
		Where("tag_name = ?", rel.TagName).
		Assign(rel).
		FirstOrCreate(rel)
	if result.Error != nil {
		return fmt.Errorf("upserting release: %w", result.Error)
	}

	return nil
}

// ListReleases returns all recorded releases, newest published first.
func (s *store) ListReleases(ctx context.Context) ([]Release, error) {
	var releases []Release
	if err := s.db.WithContext(ctx).
		Order("published_at DESC").
		Find(&releases).Error; err != nil {
		return nil, fmt.Errorf("listing releases: %w", err)
	}

	return releases, nil
}
