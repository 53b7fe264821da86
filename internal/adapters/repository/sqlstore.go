package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/pkg/metrics"
)

// scoreRow is the persisted shape of an entry. The composite indexes
// cover the three period views; the country scope narrows further.
type scoreRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	UID         string    `gorm:"size:128;not null;index"`
	DisplayName string    `gorm:"size:256"`
	PhotoURL    string    `gorm:"size:1024"`
	Score       int       `gorm:"not null;index:idx_scores_all,priority:2;index:idx_scores_day,priority:3;index:idx_scores_week,priority:3"`
	Accuracy    float64   `gorm:"not null"`
	AverageTime float64   `gorm:"not null"`
	Difficulty  string    `gorm:"size:16;not null;index:idx_scores_all,priority:1;index:idx_scores_day,priority:1;index:idx_scores_week,priority:1"`
	Country     string    `gorm:"size:2;index"`
	Timestamp   time.Time `gorm:"not null"`
	DayID       string    `gorm:"size:10;not null;index:idx_scores_day,priority:2"`
	WeekID      string    `gorm:"size:9;not null;index:idx_scores_week,priority:2"`
}

func (scoreRow) TableName() string { return "scores" }

func toRow(e model.Entry) scoreRow {
	return scoreRow{
		ID: e.ID, UID: e.UID, DisplayName: e.DisplayName, PhotoURL: e.PhotoURL,
		Score: e.Score, Accuracy: e.Accuracy, AverageTime: e.AverageTime,
		Difficulty: e.Difficulty, Country: e.Country, Timestamp: e.Timestamp.UTC(),
		DayID: e.DayID, WeekID: e.WeekID,
	}
}

func (r scoreRow) entry() model.Entry {
	return model.Entry{
		ID: r.ID, UID: r.UID, DisplayName: r.DisplayName, PhotoURL: r.PhotoURL,
		Score: r.Score, Accuracy: r.Accuracy, AverageTime: r.AverageTime,
		Difficulty: r.Difficulty, Country: r.Country, Timestamp: r.Timestamp.UTC(),
		DayID: r.DayID, WeekID: r.WeekID,
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
}

// OpenPostgres connects to Postgres with the settings the store expects.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database; ":memory:" is handy in tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	return db, nil
}

// SQLStore keeps entries in a relational "scores" table through gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the schema and returns the store.
func NewSQLStore(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&scoreRow{}); err != nil {
		return nil, fmt.Errorf("migrate scores: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Insert implements Store.Insert.
func (s *SQLStore) Insert(ctx context.Context, e model.Entry) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryInsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if e.ID == "" || e.Difficulty == "" {
		return fmt.Errorf("%w: id and difficulty are required", ErrInvalidEntry)
	}
	row := toRow(e)
	err := s.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || s.exists(ctx, e.ID) {
		metrics.RecordErrorByComponent("repository", "duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}
	metrics.RecordErrorByComponent("repository", "insert")
	return fmt.Errorf("insert score: %w", err)
}

func (s *SQLStore) exists(ctx context.Context, id string) bool {
	var n int64
	if err := s.db.WithContext(ctx).Model(&scoreRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false
	}
	return n > 0
}

// Query implements Store.Query. Distinct views are read page by page
// until enough players are collected.
func (s *SQLStore) Query(ctx context.Context, q Query) ([]model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	base := s.db.WithContext(ctx).Model(&scoreRow{}).Where("difficulty = ?", q.Difficulty)
	switch q.TimeFrame {
	case Daily:
		base = base.Where("day_id = ?", q.DayID)
	case Weekly:
		base = base.Where("week_id = ?", q.WeekID)
	}
	if q.Country != "" {
		base = base.Where("country = ?", q.Country)
	}
	base = base.Order("score desc").Order("average_time asc").Order("id asc")

	app := newAppender(q)
	page := q.Limit
	if q.Distinct {
		page = q.Limit * 4
	}
	for offset := 0; ; offset += page {
		var rows []scoreRow
		if err := base.Session(&gorm.Session{}).Offset(offset).Limit(page).Find(&rows).Error; err != nil {
			metrics.RecordErrorByComponent("repository", "query")
			return nil, fmt.Errorf("query scores: %w", err)
		}
		more := true
		for _, r := range rows {
			if more = app.add(r.entry()); !more {
				break
			}
		}
		if !more || len(rows) < page {
			return app.out, nil
		}
	}
}

// Count implements Store.Count. Errors count as zero.
func (s *SQLStore) Count(ctx context.Context) int {
	var n int64
	if err := s.db.WithContext(ctx).Model(&scoreRow{}).Count(&n).Error; err != nil {
		return 0
	}
	return int(n)
}
