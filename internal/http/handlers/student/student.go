// Package student contains all HTTP handlers related to the Student resource.
//
// Handlers are built by factory functions that capture their dependencies
// in a closure and return the func(http.ResponseWriter, *http.Request)
// the router needs:
//
//	router.HandleFunc("POST /students", student.New(storage))
//	//                                  ^^^^^^^^^^^^^^^^^^^^
//	//               New(storage) runs ONCE at startup; the returned
//	//               handler runs on EVERY incoming request.
package student

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/student-records/internal/logger"
	"github.com/aanand-mishra/student-records/internal/storage"
	"github.com/aanand-mishra/student-records/internal/types"
	"github.com/aanand-mishra/student-records/internal/utils/response"
)

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves every request.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names ("dateOfBirth") rather than Go ones.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Location returns the path a created student can be re-fetched from.
func Location(id int64) string {
	return fmt.Sprintf("/students/%d", id)
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /students
// Creates a new student from the JSON request body.
//
// Request body (JSON):
//
//	{ "name": "A", "email": "a@x.com", "dateOfBirth": "2000-01-01",
//	  "gender": "F", "courses": ["Math"] }
//
// Success response (201 Created) carries the stored record and a
// Location header pointing at it. Any "id" in the body is ignored.
//
// Error responses:
//
//	400 Bad Request  — empty body, malformed JSON, or failed validation
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func New(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info("creating a student")

		student, ok := decodeStudent(w, r)
		if !ok {
			return
		}

		lastID, err := storage.CreateStudent(r.Context(), student)
		if err != nil {
			log.Error("error creating student", logger.Err(err))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		// Re-read so the body is exactly what the store holds.
		created, err := storage.GetStudentByID(r.Context(), lastID)
		if err != nil {
			log.Error("error reading created student", slog.Int64("id", lastID), logger.Err(err))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		log.Info("student created", slog.Int64("id", lastID))

		w.Header().Set("Location", Location(lastID))
		response.WriteJSON(w, http.StatusCreated, created)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /students/{id}
//
// Error responses:
//
//	400 Bad Request  — id is not a valid integer
//	404 Not Found    — no student with that id
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		log.Info("getting a student", slog.Int64("id", id))

		student, err := storage.GetStudentByID(r.Context(), id)
		if err != nil {
			writeStoreError(w, log, "error getting student", id, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// GetList handles GET /students. Returns [] (not null) when there are no
// students.
func GetList(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info("getting all students")

		students, err := storage.GetStudents(r.Context())
		if err != nil {
			log.Error("error getting students", logger.Err(err))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /students/{id}
// Replaces ALL fields of an existing student. The body must carry the same
// id as the path.
//
// Success response: 204 No Content.
//
// Error responses:
//
//	400 Bad Request  — invalid id, id mismatch, empty body, or validation failure
//	404 Not Found    — no student with that id (no upsert)
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Update(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		log.Info("updating a student", slog.Int64("id", id))

		student, ok := decodeStudent(w, r)
		if !ok {
			return
		}

		if student.ID != id {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(
				fmt.Errorf("id mismatch: path id %d, body id %d", id, student.ID)))
			return
		}

		if err := storage.UpdateStudentByID(r.Context(), id, student); err != nil {
			writeStoreError(w, log, "error updating student", id, err)
			return
		}

		log.Info("student updated", slog.Int64("id", id))
		response.NoContent(w)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /students/{id}
// Permanently removes a student record.
//
// Success response: 204 No Content.
//
// Error responses:
//
//	400 Bad Request  — invalid id
//	404 Not Found    — no student with that id
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Delete(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		log.Info("deleting a student", slog.Int64("id", id))

		if err := storage.DeleteStudentByID(r.Context(), id); err != nil {
			writeStoreError(w, log, "error deleting student", id, err)
			return
		}

		log.Info("student deleted", slog.Int64("id", id))
		response.NoContent(w)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Filter handles GET /students/filter?gender=&course=&dobStart=&dobEnd=
//
// Every parameter is optional; present ones are combined with AND.
// dobStart and dobEnd are inclusive and accept an ISO-8601 date or
// date-time. No match is a 200 with [].
//
// Error responses:
//
//	400 Bad Request  — dobStart or dobEnd is not a date
//	500 Internal     — database error
//
// ─────────────────────────────────────────────────────────────────────────────
func Filter(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		filter, err := parseFilter(r)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		log.Info("filtering students",
			slog.String("gender", filter.Gender),
			slog.String("course", filter.Course),
			slog.Bool("dob_start", filter.DobStart != nil),
			slog.Bool("dob_end", filter.DobEnd != nil),
		)

		students, err := storage.FilterStudents(r.Context(), filter)
		if err != nil {
			log.Error("error filtering students", logger.Err(err))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

func parseFilter(r *http.Request) (types.StudentFilter, error) {
	q := r.URL.Query()
	filter := types.StudentFilter{
		Gender: q.Get("gender"),
		Course: q.Get("course"),
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"dobStart", &filter.DobStart},
		{"dobEnd", &filter.DobEnd},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := types.ParseDate(raw)
		if err != nil {
			return types.StudentFilter{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = &t
	}

	return filter, nil
}

// pathID parses {id}; on failure it writes the 400 and returns false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("invalid id: must be an integer")))
		return 0, false
	}
	return id, true
}

// decodeStudent reads and validates the body; on failure it writes the 400
// and returns false.
func decodeStudent(w http.ResponseWriter, r *http.Request) (types.Student, bool) {
	var student types.Student

	if err := json.NewDecoder(r.Body).Decode(&student); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.DecodeError(err))
		return student, false
	}

	if err := validate.Struct(student); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(validateErrs))
		} else {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		}
		return student, false
	}

	return student, true
}

// writeStoreError maps storage.ErrNotFound to 404 and anything else to 500.
func writeStoreError(w http.ResponseWriter, log *slog.Logger, msg string, id int64, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		response.WriteJSON(w, http.StatusNotFound, response.GeneralError(err))
		return
	}
	log.Error(msg, slog.Int64("id", id), logger.Err(err))
	response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
}
