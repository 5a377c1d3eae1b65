package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aanand-mishra/student-records/internal/http/middleware"
	"github.com/aanand-mishra/student-records/internal/storage/sqlite"
	"github.com/aanand-mishra/student-records/internal/types"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "students.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(New(store, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestStudentLifecycle(t *testing.T) {
	srv := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/students",
		`{"name":"A","email":"a@x.com","dateOfBirth":"2000-01-01","gender":"F","courses":["Math"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.HeaderRequestID) == "" {
		t.Error("missing request id header")
	}
	created := decode[types.Student](t, resp)
	if created.ID != 1 {
		t.Errorf("assigned id = %d, want 1", created.ID)
	}

	loc := resp.Header.Get("Location")
	if loc != "/students/1" {
		t.Fatalf("Location = %q", loc)
	}

	// Round trip through the Location header.
	resp = do(t, http.MethodGet, srv.URL+loc, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	fetched := decode[types.Student](t, resp)
	if fetched.Name != "A" || fetched.Email != "a@x.com" || fetched.Gender != "F" ||
		!fetched.DateOfBirth.Equal(created.DateOfBirth) ||
		len(fetched.Courses) != 1 || fetched.Courses[0] != "Math" {
		t.Errorf("fetched %+v, created %+v", fetched, created)
	}

	// Mismatched id leaves the row untouched.
	resp = do(t, http.MethodPut, srv.URL+"/students/1",
		`{"id":2,"name":"Z","dateOfBirth":"2000-01-01","gender":"F","courses":["Math"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatch status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/students/1", "")
	if got := decode[types.Student](t, resp); got.Name != "A" {
		t.Errorf("row changed by rejected update: %+v", got)
	}

	resp = do(t, http.MethodPut, srv.URL+"/students/1",
		`{"id":1,"name":"B","dateOfBirth":"2000-01-01T00:00:00Z","gender":"F","courses":["Math","Art"]}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodPut, srv.URL+"/students/9",
		`{"id":9,"name":"B","dateOfBirth":"2000-01-01","gender":"F","courses":["Math"]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("update missing status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, srv.URL+"/students/1", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/students/1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, srv.URL+"/students/1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete = %d", resp.StatusCode)
	}
}

func TestCreate_EmptyCourses(t *testing.T) {
	srv := newServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/students",
		`{"name":"A","email":"a@x.com","dateOfBirth":"2000-01-01","gender":"F","courses":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/students", "")
	if got := decode[[]types.Student](t, resp); len(got) != 0 {
		t.Errorf("rejected create was stored: %+v", got)
	}
}

func TestFilterRoute(t *testing.T) {
	srv := newServer(t)
	for _, body := range []string{
		`{"name":"A","dateOfBirth":"2000-01-01","gender":"F","courses":["Math"]}`,
		`{"name":"B","dateOfBirth":"2001-01-01","gender":"M","courses":["Art"]}`,
		`{"name":"C","dateOfBirth":"2002-01-01","gender":"F","courses":["Art","Math"]}`,
	} {
		if resp := do(t, http.MethodPost, srv.URL+"/students", body); resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed status = %d", resp.StatusCode)
		}
	}

	all := decode[[]types.Student](t, do(t, http.MethodGet, srv.URL+"/students", ""))
	unfiltered := decode[[]types.Student](t, do(t, http.MethodGet, srv.URL+"/students/filter", ""))
	if len(all) != 3 || len(unfiltered) != len(all) {
		t.Fatalf("list = %d, unfiltered = %d", len(all), len(unfiltered))
	}

	tests := []struct {
		query string
		want  string
	}{
		{"gender=F", "A,C"},
		{"course=Math", "A,C"},
		{"dobStart=2000-06-01&dobEnd=2002-01-01", "B,C"},
		{"gender=F&course=Art&dobEnd=2010-01-01", "C"},
		{"course=History", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+"/students/filter?"+tt.query, "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			var names []string
			for _, s := range decode[[]types.Student](t, resp) {
				names = append(names, s.Name)
			}
			if got := strings.Join(names, ","); got != tt.want {
				t.Errorf("names = %q, want %q", got, tt.want)
			}
		})
	}
}

// A dateOfBirth echoed by the API must select its own record when fed back
// as filter bounds, and survive a PUT of the GET body unchanged.
func TestFractionalDateOfBirth_RoundTrip(t *testing.T) {
	srv := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/students",
		`{"name":"A","dateOfBirth":"2000-01-01T00:00:00.5Z","gender":"F","courses":["Math"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/students/1", "")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var fetched struct {
		DateOfBirth string `json:"dateOfBirth"`
	}
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	if fetched.DateOfBirth != "2000-01-01T00:00:00.5Z" {
		t.Fatalf("dateOfBirth = %q", fetched.DateOfBirth)
	}

	filterCount := func(query string) int {
		t.Helper()
		resp := do(t, http.MethodGet, srv.URL+"/students/filter?"+query, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("filter %s status = %d", query, resp.StatusCode)
		}
		return len(decode[[]types.Student](t, resp))
	}

	dob := url.QueryEscape(fetched.DateOfBirth)
	if n := filterCount("dobStart=" + dob + "&dobEnd=" + dob); n != 1 {
		t.Errorf("filter on echoed dateOfBirth matched %d, want 1", n)
	}

	resp = do(t, http.MethodPut, srv.URL+"/students/1", string(body))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if n := filterCount("dobStart=" + url.QueryEscape("2000-01-01T00:00:00.4Z")); n != 1 {
		t.Errorf("filter after PUT of GET body matched %d, want 1", n)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t)
	resp := do(t, http.MethodPatch, srv.URL+"/students/1", `{}`)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
