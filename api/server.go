/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     One structured log line per request (logging.RequestLogger)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests from the capture front end

ROUTE GROUPS:
  /api/faces/*            Legacy face records + descriptor gallery
  /api/attendance/*       Recording, legacy reads, sessions, statistics
  /api/sessions/*         Session lifecycle (short alias)
  /api/students/*         Students, photo uploads and imports
  /api/courses/*          Courses + Excel import
  /api/course-students/*  Enrollments + bulk / Excel import
  /api/admin/*            Health, wipe, demo seed
  /metrics                Prometheus exposition
  /uploads/*              Stored photos
  /*                      Static files (frontend)

STATIC FILE SERVING:
  Serves the built front end from server.static_dir, falling back to
  ./web/dist and then web/dist next to the executable. Unknown paths get
  index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/attendance-engine/logging"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(h.base))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	sessionRoutes := func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Post("/", h.OpenSession)
		r.Post("/override", h.OverrideSession)
		r.Get("/{id}", h.GetSession)
		r.Put("/{id}/end", h.CloseSession)
		r.Delete("/{id}", h.DeleteSession)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Legacy face records
		r.Route("/faces", func(r chi.Router) {
			r.Get("/", h.ListFaces)
			r.Post("/", h.CreateFace)
			r.Get("/gallery", h.Gallery)
			r.Get("/{id}", h.GetFace)
			r.Put("/{id}", h.UpdateFace)
			r.Delete("/{id}", h.DeleteFace)
		})

		// Attendance facts, sessions and statistics
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", h.ListAttendance)
			r.Post("/", h.RecordAttendance)
			r.Delete("/{id}", h.DeleteAttendance)
			r.Get("/summary/{sessionID}", h.SessionSummary)
			r.Get("/session/{sessionID}", h.SessionAttendees)
			r.Get("/count/{faceID}", h.CountAttendance)
			r.Get("/classes-courses", h.ClassCourses)

			r.Route("/sessions", sessionRoutes)

			r.Route("/stats", func(r chi.Router) {
				r.Get("/by-course", h.StatsByCourse)
				r.Get("/by-class", h.StatsByClass)
				r.Get("/overall", h.StatsOverall)
				r.Get("/students", h.StatsStudents)
				r.Get("/course-details/{course}", h.StatsCourseDetails)
				r.Get("/class-details/{class}", h.StatsClassDetails)
				r.Get("/student-details", h.StatsStudentDetails)
			})
		})

		r.Route("/sessions", sessionRoutes)

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Post("/import/photos", h.ImportPhotos)
			r.Post("/upload/photo", h.UploadPhoto)
			r.Get("/uploads/list", h.ListUploads)
			r.Get("/{id}", h.GetStudent)
			r.Put("/{id}", h.UpdateStudent)
			r.Delete("/{id}", h.DeleteStudent)
			r.Put("/{id}/face-descriptors", h.SetFaceDescriptors)
		})

		// Course routes
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.ListCourses)
			r.Post("/", h.CreateCourse)
			r.Post("/import/excel", h.ImportCoursesExcel)
			r.Get("/{id}", h.GetCourse)
			r.Put("/{id}", h.UpdateCourse)
			r.Delete("/{id}", h.DeleteCourse)
		})

		// Enrollment routes
		r.Route("/course-students", func(r chi.Router) {
			r.Get("/", h.ListEnrollments)
			r.Post("/", h.CreateEnrollment)
			r.Post("/bulk", h.BulkEnrollments)
			r.Post("/import/excel", h.ImportEnrollmentsExcel)
			r.Get("/{id}", h.GetEnrollment)
			r.Put("/{id}", h.UpdateEnrollment)
			r.Delete("/{id}", h.DeleteEnrollment)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/health", h.Health)
			r.Post("/clear", h.ClearDatabase)
			r.Post("/seed", h.SeedDemo)
		})
	})

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}

	// Stored photos
	uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.cfg.UploadsDir)))
	r.Get("/uploads/*", uploads.ServeHTTP)

	serveFrontend(r, h.cfg.StaticDir)
	return r
}

// serveFrontend mounts the SPA, or a landing page when no build is found.
func serveFrontend(r chi.Router, configured string) {
	staticDir := findStaticDir(configured)
	if staticDir == "" {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(landingPage))
		})
		return
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))

		// SPA routing: unknown paths get index.html
		if info, err := os.Stat(fullPath); err != nil || (info.IsDir() && r.URL.Path != "/") {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func findStaticDir(configured string) string {
	candidates := []string{configured, "./web/dist"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "web", "dist"))
	}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

const landingPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Attendance Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Attendance Engine API</h1>
<p>No front-end build found. Set <code>server.static_dir</code> or place the build in <code>web/dist</code>.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/students">/api/students</a> - Students</li>
<li><a href="/api/courses">/api/courses</a> - Courses</li>
<li><a href="/api/attendance/sessions">/api/attendance/sessions</a> - Sessions</li>
<li><a href="/api/attendance/stats/overall">/api/attendance/stats/overall</a> - Overall statistics</li>
<li><a href="/api/admin/health">/api/admin/health</a> - Health</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`
