// Package storage defines the Storage interface — a contract that any
// database backend must satisfy to work with this application.
//
// Handlers depend only on this interface, so backends are chosen in
// configuration (openStorage in cmd/students-api picks one by driver name)
// and tests can pass an in-memory fake.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/student-records/internal/types"
)

// ErrNotFound is returned (possibly wrapped) when no record has the
// requested id.
var ErrNotFound = errors.New("student not found")

// Storage is the database contract. Every call is its own implicit
// transaction; concurrent updates to the same id are last-write-wins.
type Storage interface {
	// CreateStudent inserts a new record and returns the store-assigned
	// id. Any id on student is ignored.
	CreateStudent(ctx context.Context, student types.Student) (int64, error)

	// GetStudentByID fetches a single student by primary key, or
	// ErrNotFound.
	GetStudentByID(ctx context.Context, id int64) (types.Student, error)

	// GetStudents returns every student, in store order. Returns an empty
	// slice (not nil) if there are none.
	GetStudents(ctx context.Context) ([]types.Student, error)

	// UpdateStudentByID replaces every field of the record with id, or
	// returns ErrNotFound if it does not exist.
	UpdateStudentByID(ctx context.Context, id int64, student types.Student) error

	// DeleteStudentByID removes a record permanently, or returns
	// ErrNotFound if it does not exist.
	DeleteStudentByID(ctx context.Context, id int64) error

	// FilterStudents returns the records matching every predicate present
	// in filter. An empty filter is equivalent to GetStudents.
	FilterStudents(ctx context.Context, filter types.StudentFilter) ([]types.Student, error)

	// Close releases the connection pool.
	Close() error
}
