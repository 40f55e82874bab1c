package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// SQLStore implements Store on a relational database through gorm.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Compile-time interface check.
var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) a SQLite database at dsn and migrates
// the schema. dsn may be a file path or a "file:" URI.
func OpenSQLite(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newGormLogger(200 * time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an open gorm connection and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&Account{}, &Draft{}, &Frame{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// DB exposes the underlying connection, mainly for tests and shutdown.
func (s *SQLStore) DB() *gorm.DB { return s.db }

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Accounts ---

func (s *SQLStore) UpsertAccount(ctx context.Context, account *Account) (*Account, error) {
	a := *account
	prepareAccount(&a, s.now().UTC())

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "instagram_business_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"page_id", "access_token", "username", "avatar_url", "updated_at"}),
	}).Create(&a).Error
	if err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", a.InstagramBusinessID, err)
	}

	stored, err := s.GetAccount(ctx, a.ID, a.UserID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("upsert account %s: row missing after write", a.InstagramBusinessID)
	}
	log.Debug().Str("accountId", stored.ID).Str("userId", stored.UserID).Msg("Account upserted")
	return stored, nil
}

func (s *SQLStore) GetAccount(ctx context.Context, id, userID string) (*Account, error) {
	var a Account
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &a, nil
}

func (s *SQLStore) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	accounts := []Account{}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("username ASC").Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *SQLStore) DeleteAccount(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Account{})
	if res.Error != nil {
		return fmt.Errorf("delete account %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Drafts ---

func (s *SQLStore) CreateDraft(ctx context.Context, draft *Draft) error {
	if draft.ID == "" {
		draft.ID = newID()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.now().UTC()
	}
	if draft.Hashtags == nil {
		draft.Hashtags = []string{}
	}
	if err := s.db.WithContext(ctx).Create(draft).Error; err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *SQLStore) ListDrafts(ctx context.Context, userID string) ([]Draft, error) {
	drafts := []Draft{}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&drafts).Error
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}

func (s *SQLStore) DeleteDraft(ctx context.Context, id, userID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&Draft{})
	if res.Error != nil {
		return fmt.Errorf("delete draft %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Frames ---

func (s *SQLStore) CreateFrame(ctx context.Context, frame *Frame) error {
	if frame.ID == "" {
		frame.ID = newID()
	}
	now := s.now().UTC()
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = now
	}
	frame.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(frame).Error; err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

func (s *SQLStore) ListFrames(ctx context.Context) ([]Frame, error) {
	frames := []Frame{}
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&frames).Error; err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return frames, nil
}

func (s *SQLStore) GetFrame(ctx context.Context, id string) (*Frame, error) {
	var f Frame
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get frame %s: %w", id, err)
	}
	return &f, nil
}

func (s *SQLStore) DeleteFrame(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Frame{})
	if res.Error != nil {
		return fmt.Errorf("delete frame %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// gormLogger routes gorm's query log through zerolog.
type gormLogger struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

func newGormLogger(slow time.Duration) gormlogger.Interface {
	return &gormLogger{slow: slow, level: gormlogger.Warn}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		log.Info().Msgf(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		log.Warn().Msgf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		log.Error().Msgf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		log.Error().Err(err).Dur("duration", elapsed).Int64("rows", rows).Str("sql", sql).Msg("SQL query failed")
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		log.Warn().Dur("duration", elapsed).Int64("rows", rows).Str("sql", sql).Msg("Slow SQL query")
	default:
		sql, rows := fc()
		log.Trace().Dur("duration", elapsed).Int64("rows", rows).Str("sql", sql).Msg("SQL query")
	}
}
