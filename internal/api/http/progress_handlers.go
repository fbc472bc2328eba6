package http

import (
	"context"
	"log"
	"net/http"

	"github.com/course-hub/coursehub-lms/internal/notify"
	"github.com/course-hub/coursehub-lms/internal/progress"
	"github.com/course-hub/coursehub-lms/internal/rbac"
)

// record is nil-safe; notifications are optional infrastructure.
func record(ctx context.Context, rec *notify.Recorder, m notify.Message) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, m); err != nil {
		log.Printf("notify: record failed: %v", err)
	}
}

// POST /courses/{courseID}/enroll
func EnrollHandler(prog progress.Store, rec *notify.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		e, err := prog.Enroll(r.Context(), sub, pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		record(r.Context(), rec, notify.Message{
			RecipientID: sub,
			EventType:   notify.EventEnrolled,
			Subject:     "You are enrolled",
			Body:        "Your enrollment is active. Good luck!",
		})
		writeJSON(w, http.StatusCreated, e)
	}
}

// GET /courses/{courseID}/progress
func MyProgressHandler(prog progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		e, err := prog.ActiveEnrollment(r.Context(), sub, pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		sum, err := prog.Progress(r.Context(), e.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// POST /courses/{courseID}/lectures/{lectureID}/complete
func CompleteLectureHandler(prog progress.Store, rec *notify.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := rbac.SubjectFromContext(r.Context())
		e, err := prog.ActiveEnrollment(r.Context(), sub, pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		updated, err := prog.RecordLectureCompletion(r.Context(), e.ID, pathParam(r, "lectureID"), progress.MethodManual)
		if err != nil {
			fail(w, err)
			return
		}
		if updated.Status == progress.StatusCompleted && e.Status != progress.StatusCompleted {
			record(r.Context(), rec, notify.Message{
				RecipientID: sub,
				EventType:   notify.EventCourseCompleted,
				Subject:     "Course completed",
				Body:        "You finished every lecture. Congratulations!",
			})
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// POST /courses/{courseID}/lectures/{lectureID}/watch  { "position", "seconds" }
func WatchProgressHandler(prog progress.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position int `json:"position" validate:"min=0"`
			Seconds  int `json:"seconds" validate:"min=0"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		e, err := prog.ActiveEnrollment(r.Context(), sub, pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		if err := prog.RecordWatchProgress(r.Context(), e.ID, pathParam(r, "lectureID"), req.Position, req.Seconds); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
