package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/course-hub/coursehub-lms/internal/assignment"
	"github.com/course-hub/coursehub-lms/internal/auth"
	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/progress"
	"github.com/course-hub/coursehub-lms/internal/quiz"
)

var validate = validator.New()

func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeValid parses the JSON body into dst and runs struct validation.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// fail maps domain errors onto HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), errStatus(err))
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, progress.ErrNotEnrolled),
		errors.Is(err, progress.ErrPlusRequired),
		errors.Is(err, assignment.ErrDeadlinePassed),
		errors.Is(err, assignment.ErrUnsubmitAfterGrading):
		return http.StatusForbidden
	case errors.Is(err, progress.ErrLectureNotFound),
		errors.Is(err, progress.ErrCourseUnavailable),
		errors.Is(err, course.ErrCourseNotFound),
		errors.Is(err, course.ErrSectionNotFound),
		errors.Is(err, course.ErrLectureNotFound),
		errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, assignment.ErrAssignmentNotFound),
		errors.Is(err, assignment.ErrSubmissionNotFound),
		errors.Is(err, assignment.ErrNothingToUnsubmit),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrAlreadyEnrolled),
		errors.Is(err, quiz.ErrAttemptLimit),
		errors.Is(err, quiz.ErrAlreadySubmitted),
		errors.Is(err, quiz.ErrTimeLimit),
		errors.Is(err, assignment.ErrAlreadyGraded),
		errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, quiz.ErrQuizUnavailable),
		errors.Is(err, assignment.ErrAssignmentInactive),
		errors.Is(err, quiz.ErrNotGradable),
		errors.Is(err, assignment.ErrGradeOutOfRange),
		errors.Is(err, course.ErrBadStatus):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrBadCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
