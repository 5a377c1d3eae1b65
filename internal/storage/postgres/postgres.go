// Package postgres implements storage.Storage on PostgreSQL through gorm.
// Courses live in a text[] column, so course membership is a native
// "= ANY(courses)" predicate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

// studentRow is the table mapping; types.Student stays free of gorm tags.
type studentRow struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	Name        string         `gorm:"not null"`
	Email       string         `gorm:"not null;default:''"`
	DateOfBirth time.Time      `gorm:"not null;index"`
	Gender      string         `gorm:"not null;index"`
	Courses     pq.StringArray `gorm:"type:text[];not null"`
}

func (studentRow) TableName() string { return "students" }

func toRow(s types.Student) studentRow {
	courses := s.Courses
	if courses == nil {
		courses = []string{}
	}
	return studentRow{
		Name:        s.Name,
		Email:       s.Email,
		DateOfBirth: s.DateOfBirth.UTC(),
		Gender:      s.Gender,
		Courses:     pq.StringArray(courses),
	}
}

func (r studentRow) toStudent() types.Student {
	courses := []string(r.Courses)
	if courses == nil {
		courses = []string{}
	}
	return types.Student{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		DateOfBirth: r.DateOfBirth.UTC(),
		Gender:      r.Gender,
		Courses:     courses,
	}
}

// Postgres is the gorm-backed storage.Storage.
type Postgres struct {
	db *gorm.DB
}

var _ storage.Storage = (*Postgres)(nil)

// New connects with cfg, sizes the pool and ensures the students table
// exists.
func New(cfg config.Postgres, log *slog.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormLogLevel(log)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open: %w", err)
	}

	return newWithDB(db, cfg, log)
}

// gormLogLevel echoes SQL only when the application logs at debug.
func gormLogLevel(log *slog.Logger) gormlogger.LogLevel {
	if log.Enabled(context.Background(), slog.LevelDebug) {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

// newWithDB finishes setup on an already-opened gorm handle.
func newWithDB(db *gorm.DB, cfg config.Postgres, log *slog.Logger) (*Postgres, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres.New: sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	if err := db.AutoMigrate(&studentRow{}); err != nil {
		return nil, fmt.Errorf("postgres.New: ensure table: %w", err)
	}

	log.Info("postgres storage ready",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("dbname", cfg.Name),
	)

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) CreateStudent(ctx context.Context, student types.Student) (int64, error) {
	row := toRow(student)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("CreateStudent: %w", err)
	}
	return row.ID, nil
}

func (p *Postgres) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	var row studentRow
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("GetStudentByID: %w", err)
	}
	return row.toStudent(), nil
}

func (p *Postgres) GetStudents(ctx context.Context) ([]types.Student, error) {
	var rows []studentRow
	if err := p.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("GetStudents: %w", err)
	}
	return toStudents(rows), nil
}

// FilterStudents chains one Where per present predicate; gorm joins them
// with AND.
func (p *Postgres) FilterStudents(ctx context.Context, filter types.StudentFilter) ([]types.Student, error) {
	q := p.db.WithContext(ctx).Model(&studentRow{})

	if filter.Gender != "" {
		q = q.Where("gender = ?", filter.Gender)
	}
	if filter.Course != "" {
		q = q.Where("? = ANY(courses)", filter.Course)
	}
	if filter.DobStart != nil {
		q = q.Where("date_of_birth >= ?", filter.DobStart.UTC())
	}
	if filter.DobEnd != nil {
		q = q.Where("date_of_birth <= ?", filter.DobEnd.UTC())
	}

	var rows []studentRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("FilterStudents: %w", err)
	}
	return toStudents(rows), nil
}

func (p *Postgres) UpdateStudentByID(ctx context.Context, id int64, student types.Student) error {
	row := toRow(student)

	// Explicit column map so zero values (e.g. an empty email) are written.
	result := p.db.WithContext(ctx).Model(&studentRow{}).Where("id = ?", id).Updates(map[string]any{
		"name":          row.Name,
		"email":         row.Email,
		"date_of_birth": row.DateOfBirth,
		"gender":        row.Gender,
		"courses":       row.Courses,
	})
	if result.Error != nil {
		return fmt.Errorf("UpdateStudentByID: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (p *Postgres) DeleteStudentByID(ctx context.Context, id int64) error {
	result := p.db.WithContext(ctx).Where("id = ?", id).Delete(&studentRow{})
	if result.Error != nil {
		return fmt.Errorf("DeleteStudentByID: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func toStudents(rows []studentRow) []types.Student {
	students := make([]types.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students
}
