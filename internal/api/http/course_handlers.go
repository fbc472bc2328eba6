package http

import (
	"net/http"

	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/rbac"
)

// instructorOf allows course instructors and admins through.
func instructorOf(w http.ResponseWriter, r *http.Request, courses *course.SQLStore, courseID string) bool {
	if rbac.RoleFromContext(r.Context()) == "admin" {
		return true
	}
	ok, err := courses.IsInstructor(r.Context(), courseID, rbac.SubjectFromContext(r.Context()))
	if err != nil {
		fail(w, err)
		return false
	}
	if !ok {
		http.Error(w, "not an instructor of this course", http.StatusForbidden)
		return false
	}
	return true
}

// POST /courses  { "title", "course_type" }
func CreateCourseHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title" validate:"required"`
			Type  string `json:"course_type" validate:"omitempty,oneof=free plus"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		c, err := courses.Create(r.Context(), req.Title, req.Type, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// GET /courses
func ListCoursesHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		all := role == "instructor" || role == "admin"
		list, err := courses.List(r.Context(), all)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /courses/{courseID}
func GetCourseHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := courses.Get(r.Context(), pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		outline, err := courses.Outline(r.Context(), c.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"course": c, "sections": outline})
	}
}

// POST /courses/{courseID}/status  { "status": "published" }
func SetCourseStatusHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		var req struct {
			Status string `json:"status" validate:"required"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		if err := courses.SetStatus(r.Context(), courseID, req.Status); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
	}
}

// POST /courses/{courseID}/sections  { "title", "position" }
func AddSectionHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		var req struct {
			Title    string `json:"title" validate:"required"`
			Position int    `json:"position"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		sec, err := courses.AddSection(r.Context(), courseID, req.Title, req.Position)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sec)
	}
}

// POST /sections/{sectionID}/lectures  { "title", "content_type", "position" }
func AddLectureHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title       string `json:"title" validate:"required"`
			ContentType string `json:"content_type" validate:"omitempty,oneof=video reading quiz assignment"`
			Position    int    `json:"position"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		sectionID := pathParam(r, "sectionID")
		courseID, err := courses.SectionCourse(r.Context(), sectionID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		l, err := courses.AddLecture(r.Context(), sectionID, req.Title, req.ContentType, req.Position)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// POST /courses/{courseID}/instructors  { "user_id", "role" }
func AddInstructorHandler(courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		if !instructorOf(w, r, courses, courseID) {
			return
		}
		var req struct {
			UserID string `json:"user_id" validate:"required"`
			Role   string `json:"role" validate:"omitempty,oneof=owner co"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		if err := courses.AddInstructor(r.Context(), courseID, req.UserID, req.Role); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	}
}
