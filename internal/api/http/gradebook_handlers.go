package http

import (
	"net/http"

	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/gradebook"
	"github.com/course-hub/coursehub-lms/internal/rbac"
)

// GET /courses/{courseID}/grade  (own standing)
func MyCourseGradeHandler(book *gradebook.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := book.StudentCourseGrade(r.Context(), rbac.SubjectFromContext(r.Context()), pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		if g == nil {
			http.Error(w, "not enrolled", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// GET /gradebook  (all own courses)
func MyGradebookHandler(book *gradebook.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := book.StudentGradebook(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// GET /courses/{courseID}/students/{studentID}/grade  (staff)
func StudentCourseGradeHandler(book *gradebook.SQLStore, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		g, err := book.StudentCourseGrade(r.Context(), pathParam(r, "studentID"), courseID)
		if err != nil {
			fail(w, err)
			return
		}
		if g == nil {
			http.Error(w, "student is not enrolled", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

// GET /courses/{courseID}/statistics  (staff)
// ?cached=1 serves the scheduler's rollup instead of recomputing.
func CourseStatisticsHandler(book *gradebook.SQLStore, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		if r.URL.Query().Get("cached") != "" {
			st, refreshedAt, err := book.CachedCourseStats(r.Context(), courseID)
			if err != nil {
				fail(w, err)
				return
			}
			if st == nil {
				http.Error(w, "no rollup yet", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"statistics": st, "refreshed_at": refreshedAt})
			return
		}
		st, err := book.CourseStatistics(r.Context(), courseID)
		if err != nil {
			fail(w, err)
			return
		}
		if st == nil {
			http.Error(w, "no enrolled students", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
