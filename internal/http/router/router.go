// Package router maps the Student routes onto a ServeMux and wraps it in
// the middleware chain.
package router

import (
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/http/handlers/student"
	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/storage"
)

// New builds the application handler.
//
// Route table:
//
//	GET    /students          → list all students
//	GET    /students/filter   → filter by gender, course, dobStart, dobEnd
//	GET    /students/{id}     → get one student by ID
//	POST   /students          → create a new student
//	PUT    /students/{id}     → replace a student
//	DELETE /students/{id}     → delete a student
//
// "/students/filter" is more specific than "/students/{id}", so ServeMux
// routes it to Filter regardless of registration order.
func New(storage storage.Storage, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /students", student.GetList(storage))
	mux.HandleFunc("GET /students/filter", student.Filter(storage))
	mux.HandleFunc("GET /students/{id}", student.GetByID(storage))
	mux.HandleFunc("POST /students", student.New(storage))
	mux.HandleFunc("PUT /students/{id}", student.Update(storage))
	mux.HandleFunc("DELETE /students/{id}", student.Delete(storage))

	return middleware.Chain(mux,
		middleware.RequestID(log),
		middleware.Logger(),
		middleware.Recoverer(),
	)
}
