//go:build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aanand-mishra/student-records/internal/config"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
)

var testStore *Postgres

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=postgres password=postgres dbname=students_test sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		slog.Error("cannot connect to test database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	testStore, err = newWithDB(db, config.Postgres{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		slog.Error("cannot prepare test database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	code := m.Run()
	testStore.Close()
	os.Exit(code)
}

func resetTable(t *testing.T) {
	t.Helper()
	if err := testStore.db.Exec("TRUNCATE students RESTART IDENTITY").Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPostgres_CRUD(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	in := types.Student{Name: "A", Email: "a@x.com", DateOfBirth: day(2000, 1, 1), Gender: "F", Courses: []string{"Math"}}
	id, err := testStore.CreateStudent(ctx, in)
	if err != nil {
		t.Fatalf("CreateStudent error: %v", err)
	}

	got, err := testStore.GetStudentByID(ctx, id)
	if err != nil {
		t.Fatalf("GetStudentByID error: %v", err)
	}
	in.ID = id
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip:\n got  %+v\n want %+v", got, in)
	}

	in.Email = ""
	in.Courses = []string{"Art", "History"}
	if err := testStore.UpdateStudentByID(ctx, id, in); err != nil {
		t.Fatalf("UpdateStudentByID error: %v", err)
	}
	got, _ = testStore.GetStudentByID(ctx, id)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("after update:\n got  %+v\n want %+v", got, in)
	}

	if err := testStore.UpdateStudentByID(ctx, id+100, in); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}

	if err := testStore.DeleteStudentByID(ctx, id); err != nil {
		t.Fatalf("DeleteStudentByID error: %v", err)
	}
	if _, err := testStore.GetStudentByID(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
	if err := testStore.DeleteStudentByID(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestPostgres_Filter(t *testing.T) {
	resetTable(t)
	ctx := context.Background()

	for _, s := range []types.Student{
		{Name: "A", DateOfBirth: day(2000, 1, 1), Gender: "F", Courses: []string{"Math", "Physics"}},
		{Name: "B", DateOfBirth: day(2001, 6, 15), Gender: "M", Courses: []string{"Math"}},
		{Name: "C", DateOfBirth: day(2002, 12, 31), Gender: "F", Courses: []string{"Art"}},
	} {
		if _, err := testStore.CreateStudent(ctx, s); err != nil {
			t.Fatalf("CreateStudent error: %v", err)
		}
	}

	start, end := day(2000, 1, 1), day(2001, 6, 15)
	tests := []struct {
		name   string
		filter types.StudentFilter
		want   []string
	}{
		{"none", types.StudentFilter{}, []string{"A", "B", "C"}},
		{"gender", types.StudentFilter{Gender: "F"}, []string{"A", "C"}},
		{"course", types.StudentFilter{Course: "Math"}, []string{"A", "B"}},
		{"range inclusive", types.StudentFilter{DobStart: &start, DobEnd: &end}, []string{"A", "B"}},
		{"combined", types.StudentFilter{Gender: "F", Course: "Math"}, []string{"A"}},
		{"no match", types.StudentFilter{Course: "Chemistry"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testStore.FilterStudents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("FilterStudents error: %v", err)
			}
			names := make([]string, 0, len(got))
			for _, s := range got {
				names = append(names, s.Name)
			}
			sort.Strings(names)
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("names = %v, want %v", names, tt.want)
			}
		})
	}
}
