package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	api "github.com/course-hub/coursehub-lms/internal/api/http"
	"github.com/course-hub/coursehub-lms/internal/assignment"
	"github.com/course-hub/coursehub-lms/internal/auth"
	"github.com/course-hub/coursehub-lms/internal/config"
	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/db"
	"github.com/course-hub/coursehub-lms/internal/gradebook"
	"github.com/course-hub/coursehub-lms/internal/grading"
	"github.com/course-hub/coursehub-lms/internal/notify"
	"github.com/course-hub/coursehub-lms/internal/progress"
	"github.com/course-hub/coursehub-lms/internal/quiz"
	rbac "github.com/course-hub/coursehub-lms/internal/rbac"
	storage "github.com/course-hub/coursehub-lms/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Stores ---
	prog := progress.NewSQLStore(dbh, cfg.DBDriver)
	quizzes := quiz.NewSQLStore(dbh, cfg.DBDriver, grading.NewDefaultGrader(), prog)
	assignments := assignment.NewSQLStore(dbh, cfg.DBDriver, prog, bs)
	book := gradebook.NewSQLStore(dbh, cfg.DBDriver)
	courses := course.NewSQLStore(dbh, cfg.DBDriver)
	users := auth.NewUserStore(dbh)
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	rec := notify.NewRecorder(dbh)

	if cfg.AdminUser != "" && cfg.AdminPassHash != "" {
		if err := bootstrapAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
			log.Fatalf("admin bootstrap: %v", err)
		}
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/register", api.RegisterHandler(users, authSvc))
	r.Post("/auth/login", api.LoginHandler(users, authSvc))

	// Protected API (JWT → role from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh))

		pr.Get("/auth/me", api.MeHandler(users))
		pr.With(rbac.Require("user:change_password")).
			Post("/auth/change-password", api.ChangePasswordHandler(users))

		// Admin-only account management
		pr.With(rbac.Require("user:create")).
			Post("/users", api.CreateUserHandler(users))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(users))
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(users))
		pr.With(rbac.Require("user:set_plus")).
			Post("/users/{userID}/plus", api.SetPlusHandler(users))

		// Courses and curriculum
		pr.With(rbac.Require("course:create")).
			Post("/courses", api.CreateCourseHandler(courses))
		pr.With(rbac.Require("course:view")).
			Get("/courses", api.ListCoursesHandler(courses))
		pr.With(rbac.Require("course:view")).
			Get("/courses/{courseID}", api.GetCourseHandler(courses))
		pr.With(rbac.Require("course:update")).
			Post("/courses/{courseID}/status", api.SetCourseStatusHandler(courses))
		pr.With(rbac.Require("course:update")).
			Post("/courses/{courseID}/sections", api.AddSectionHandler(courses))
		pr.With(rbac.Require("course:update")).
			Post("/sections/{sectionID}/lectures", api.AddLectureHandler(courses))
		pr.With(rbac.Require("course:update")).
			Post("/courses/{courseID}/instructors", api.AddInstructorHandler(courses))

		// Enrollment and lecture progress
		pr.With(rbac.Require("course:enroll")).
			Post("/courses/{courseID}/enroll", api.EnrollHandler(prog, rec))
		pr.With(rbac.Require("progress:view-own")).
			Get("/courses/{courseID}/progress", api.MyProgressHandler(prog))
		pr.With(rbac.Require("progress:record-own")).
			Post("/courses/{courseID}/lectures/{lectureID}/complete", api.CompleteLectureHandler(prog, rec))
		pr.With(rbac.Require("progress:record-own")).
			Post("/courses/{courseID}/lectures/{lectureID}/watch", api.WatchProgressHandler(prog))

		// Quizzes
		pr.With(rbac.RequireAny("quiz:create", "quiz:update")).
			Put("/courses/{courseID}/quizzes", api.PutQuizHandler(quizzes, courses))
		pr.With(rbac.Require("quiz:view")).
			Get("/courses/{courseID}/quizzes", api.ListQuizzesHandler(quizzes, courses))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(quizzes, courses))
		pr.With(rbac.Require("attempt:create")).
			Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(quizzes))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(quizzes, rec))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/quizzes/{quizID}/attempts", api.ListAttemptsHandler(quizzes, courses))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(quizzes, courses))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/responses/{questionID}/grade", api.GradeEssayHandler(quizzes, courses, rec))
		pr.With(rbac.Require("stats:view")).
			Get("/quizzes/{quizID}/statistics", api.QuizStatisticsHandler(quizzes, courses))

		// Assignments
		pr.With(rbac.RequireAny("assignment:create", "assignment:update")).
			Put("/courses/{courseID}/assignments", api.PutAssignmentHandler(assignments, courses))
		pr.With(rbac.Require("assignment:view")).
			Get("/courses/{courseID}/assignments", api.ListAssignmentsHandler(assignments))
		pr.With(rbac.Require("assignment:view")).
			Get("/assignments/{assignmentID}", api.GetAssignmentHandler(assignments))
		pr.With(rbac.Require("submission:create")).
			Post("/assignments/{assignmentID}/submissions", api.SubmitAssignmentHandler(assignments, bs))
		pr.With(rbac.Require("submission:withdraw")).
			Delete("/assignments/{assignmentID}/submissions", api.UnsubmitHandler(assignments))
		pr.With(rbac.Require("submission:view-own")).
			Get("/assignments/{assignmentID}/submissions/mine", api.MySubmissionHandler(assignments))
		pr.With(rbac.Require("submission:view-all")).
			Get("/assignments/{assignmentID}/submissions", api.ListSubmissionsHandler(assignments, courses))
		pr.With(rbac.RequireAny("submission:view-own", "submission:view-all")).
			Get("/submissions/{submissionID}/file", api.SubmissionFileHandler(assignments, courses, bs))
		pr.With(rbac.Require("submission:grade")).
			Post("/submissions/{submissionID}/grade", api.GradeSubmissionHandler(assignments, courses, rec))
		pr.With(rbac.Require("stats:view")).
			Get("/assignments/{assignmentID}/statistics", api.AssignmentStatisticsHandler(assignments, courses))

		// Gradebook
		pr.With(rbac.Require("gradebook:view-own")).
			Get("/courses/{courseID}/grade", api.MyCourseGradeHandler(book))
		pr.With(rbac.Require("gradebook:view-own")).
			Get("/gradebook", api.MyGradebookHandler(book))
		pr.With(rbac.Require("stats:view")).
			Get("/courses/{courseID}/students/{studentID}/grade", api.StudentCourseGradeHandler(book, courses))
		pr.With(rbac.Require("stats:view")).
			Get("/courses/{courseID}/statistics", api.CourseStatisticsHandler(book, courses))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	// --- Background jobs ---
	c := cron.New()
	if cfg.EnableNotify {
		var mailer notify.Mailer = notify.LogMailer{}
		if cfg.SendgridKey != "" {
			mailer = notify.NewSendgridMailer(cfg.SendgridKey, "CourseHub", cfg.NotifyFrom)
		}
		disp := notify.NewDispatcher(dbh, mailer, 0)
		if _, err := c.AddFunc(cfg.NotifyCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if n, err := disp.Flush(ctx); err != nil {
				log.Printf("notify flush: %v", err)
			} else if n > 0 {
				log.Printf("notify flush: delivered %d", n)
			}
		}); err != nil {
			log.Fatalf("notify cron: %v", err)
		}
	}
	if _, err := c.AddFunc(cfg.StatsCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := book.RefreshCourseStats(ctx); err != nil {
			log.Printf("stats refresh: %v", err)
		}
	}); err != nil {
		log.Fatalf("stats cron: %v", err)
	}
	c.Start()
	defer c.Stop()

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// bootstrapAdmin seeds the configured admin account on first boot. The hash
// arrives pre-computed so the plaintext never touches the environment.
func bootstrapAdmin(ctx context.Context, dbh *sql.DB, username, passHash string) error {
	_, err := dbh.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		 VALUES ($1,$2,$3,'admin',$4,$5)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), username, passHash, false, time.Now().Unix())
	return err
}
