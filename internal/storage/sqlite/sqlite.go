// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// Courses are kept as a JSON array in a TEXT column; the course predicate
// uses SQLite's json_each table-valued function to test membership.
// Dates are stored as fixed-width UTC text (dateLayout) so that string
// comparison in SQL orders them chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

// dateLayout must stay fixed-width for range predicates to work.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = "SELECT id, name, email, date_of_birth, gender, courses FROM students"

// SQLite is the concrete implementation of storage.Storage.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the SQLite database at path, creates the students table if it
// does not already exist, and returns a ready-to-use *SQLite.
func New(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// CREATE TABLE IF NOT EXISTS is idempotent — safe to run on every
	// startup.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS students (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL,
			gender        TEXT NOT NULL,
			courses       TEXT NOT NULL DEFAULT '[]'
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

func (s *SQLite) CreateStudent(ctx context.Context, student types.Student) (int64, error) {
	courses, err := encodeCourses(student.Courses)
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: %w", err)
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO students (name, email, date_of_birth, gender, courses) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		student.Name, student.Email, formatDate(student.DateOfBirth), student.Gender, courses)
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	return lastID, nil
}

func (s *SQLite) GetStudentByID(ctx context.Context, id int64) (types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx, selectColumns+" WHERE id = ? LIMIT 1")
	if err != nil {
		return types.Student{}, fmt.Errorf("GetStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	student, err := scanStudent(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
		}
		return types.Student{}, fmt.Errorf("GetStudentByID: %w", err)
	}

	return student, nil
}

func (s *SQLite) GetStudents(ctx context.Context) ([]types.Student, error) {
	students, err := s.query(ctx, selectColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetStudents: %w", err)
	}
	return students, nil
}

// FilterStudents appends one predicate per present filter field.
// Values are always bound as ? parameters; only the fixed predicate
// fragments are concatenated.
func (s *SQLite) FilterStudents(ctx context.Context, filter types.StudentFilter) ([]types.Student, error) {
	var (
		where []string
		args  []any
	)

	if filter.Gender != "" {
		where = append(where, "gender = ?")
		args = append(args, filter.Gender)
	}
	if filter.Course != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(students.courses) WHERE json_each.value = ?)")
		args = append(args, filter.Course)
	}
	if filter.DobStart != nil {
		where = append(where, "date_of_birth >= ?")
		args = append(args, formatDate(*filter.DobStart))
	}
	if filter.DobEnd != nil {
		where = append(where, "date_of_birth <= ?")
		args = append(args, formatDate(*filter.DobEnd))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	students, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("FilterStudents: %w", err)
	}
	return students, nil
}

func (s *SQLite) UpdateStudentByID(ctx context.Context, id int64, student types.Student) error {
	courses, err := encodeCourses(student.Courses)
	if err != nil {
		return fmt.Errorf("UpdateStudentByID: %w", err)
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"UPDATE students SET name = ?, email = ?, date_of_birth = ?, gender = ?, courses = ? WHERE id = ?",
	)
	if err != nil {
		return fmt.Errorf("UpdateStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		student.Name, student.Email, formatDate(student.DateOfBirth), student.Gender, courses, id)
	if err != nil {
		return fmt.Errorf("UpdateStudentByID: exec: %w", err)
	}

	return requireAffected(result, id)
}

func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) error {
	stmt, err := s.Db.PrepareContext(ctx, "DELETE FROM students WHERE id = ?")
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("DeleteStudentByID: exec: %w", err)
	}

	return requireAffected(result, id)
}

func (s *SQLite) query(ctx context.Context, query string, args ...any) ([]types.Student, error) {
	rows, err := s.Db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	// Non-nil so the handler encodes [] rather than null.
	students := make([]types.Student, 0)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return students, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (types.Student, error) {
	var (
		student types.Student
		dob     string
		courses string
	)

	if err := row.Scan(&student.ID, &student.Name, &student.Email, &dob, &student.Gender, &courses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Student{}, err
		}
		return types.Student{}, fmt.Errorf("scan: %w", err)
	}

	t, err := time.Parse(dateLayout, dob)
	if err != nil {
		return types.Student{}, fmt.Errorf("scan date_of_birth of student %d: %w", student.ID, err)
	}
	student.DateOfBirth = t

	if err := json.Unmarshal([]byte(courses), &student.Courses); err != nil {
		return types.Student{}, fmt.Errorf("scan courses of student %d: %w", student.ID, err)
	}

	return student, nil
}

func requireAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no student found with id %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func encodeCourses(courses []string) (string, error) {
	if courses == nil {
		courses = []string{}
	}
	b, err := json.Marshal(courses)
	if err != nil {
		return "", fmt.Errorf("encode courses: %w", err)
	}
	return string(b), nil
}
