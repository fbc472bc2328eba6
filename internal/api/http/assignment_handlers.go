package http

import (
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/course-hub/coursehub-lms/internal/assignment"
	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/notify"
	"github.com/course-hub/coursehub-lms/internal/rbac"
	"github.com/course-hub/coursehub-lms/internal/storage"
)

type assignmentReq struct {
	ID                 string  `json:"id"`
	CourseID           string  `json:"course_id" validate:"required"`
	LectureID          string  `json:"lecture_id"`
	Title              string  `json:"title" validate:"required"`
	Instructions       string  `json:"instructions"`
	MaxPoints          float64 `json:"max_points" validate:"gt=0"`
	PassingScore       float64 `json:"passing_score" validate:"min=0,max=100"`
	Weight             float64 `json:"weight" validate:"min=0"`
	DueAt              *int64  `json:"due_at"`
	AllowLate          bool    `json:"allow_late"`
	LatePenaltyPercent float64 `json:"late_penalty_percent" validate:"min=0,max=100"`
	IsActive           bool    `json:"is_active"`
}

// PUT /courses/{courseID}/assignments  (instructor)
func PutAssignmentHandler(store assignment.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignmentReq
		if !decodeValid(w, r, &req) {
			return
		}
		if !instructorOf(w, r, courses, req.CourseID) {
			return
		}
		a, err := store.PutAssignment(r.Context(), assignment.Assignment{
			ID:                 req.ID,
			CourseID:           req.CourseID,
			LectureID:          req.LectureID,
			Title:              req.Title,
			Instructions:       req.Instructions,
			MaxPoints:          req.MaxPoints,
			PassingScore:       req.PassingScore,
			Weight:             req.Weight,
			DueAt:              req.DueAt,
			AllowLate:          req.AllowLate,
			LatePenaltyPercent: req.LatePenaltyPercent,
			IsActive:           req.IsActive,
		})
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GET /courses/{courseID}/assignments
func ListAssignmentsHandler(store assignment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListAssignments(r.Context(), pathParam(r, "courseID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /assignments/{assignmentID}
func GetAssignmentHandler(store assignment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAssignment(r.Context(), pathParam(r, "assignmentID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /assignments/{assignmentID}/submissions
// multipart/form-data: text field "submission_text", optional file field "file"
func SubmitAssignmentHandler(store assignment.Store, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(assignment.MaxFileSize); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		assignmentID := pathParam(r, "assignmentID")
		sub := rbac.SubjectFromContext(r.Context())
		in := assignment.SubmissionInput{Text: r.FormValue("submission_text")}

		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			name := path.Base(header.Filename)
			if err := assignment.ValidateFile(name, header.Size); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			key := fmt.Sprintf("submissions/%s/%s/%s-%s", assignmentID, sub, uuid.NewString(), name)
			if _, err := blobs.Put(key, file); err != nil {
				fail(w, err)
				return
			}
			in.FileKey = key
			in.FileName = name
		} else if err != http.ErrMissingFile {
			http.Error(w, "file: "+err.Error(), http.StatusBadRequest)
			return
		}

		s, err := store.Submit(r.Context(), assignmentID, sub, in)
		if err != nil {
			// don't leave the blob orphaned when the submit was rejected
			if in.FileKey != "" {
				_ = blobs.Delete(in.FileKey)
			}
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

// DELETE /assignments/{assignmentID}/submissions
func UnsubmitHandler(store assignment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.Unsubmit(r.Context(), pathParam(r, "assignmentID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
	}
}

// GET /assignments/{assignmentID}/submissions  (staff)
func ListSubmissionsHandler(store assignment.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID := pathParam(r, "assignmentID")
		a, err := store.GetAssignment(r.Context(), assignmentID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, a.CourseID) {
			return
		}
		list, err := store.ListSubmissions(r.Context(), assignmentID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /assignments/{assignmentID}/submissions/mine
func MySubmissionHandler(store assignment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := store.StudentSubmission(r.Context(), pathParam(r, "assignmentID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// GET /submissions/{submissionID}/file
func SubmissionFileHandler(store assignment.Store, courses *course.SQLStore, blobs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := store.GetSubmission(r.Context(), pathParam(r, "submissionID"))
		if err != nil {
			fail(w, err)
			return
		}
		if s.StudentID != rbac.SubjectFromContext(r.Context()) {
			a, err := store.GetAssignment(r.Context(), s.AssignmentID)
			if err != nil {
				fail(w, err)
				return
			}
			if !instructorOf(w, r, courses, a.CourseID) {
				return
			}
		}
		if s.FileKey == "" {
			http.Error(w, "no file attached", http.StatusNotFound)
			return
		}
		rc, err := blobs.Get(s.FileKey)
		if err != nil {
			fail(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Disposition", `attachment; filename="`+s.FileName+`"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	}
}

// POST /submissions/{submissionID}/grade  { "points", "feedback" }  (staff)
func GradeSubmissionHandler(store assignment.Store, courses *course.SQLStore, rec *notify.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points   float64 `json:"points" validate:"min=0"`
			Feedback string  `json:"feedback"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		submissionID := pathParam(r, "submissionID")
		s, err := store.GetSubmission(r.Context(), submissionID)
		if err != nil {
			fail(w, err)
			return
		}
		a, err := store.GetAssignment(r.Context(), s.AssignmentID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, a.CourseID) {
			return
		}
		graded, err := store.Grade(r.Context(), submissionID, rbac.SubjectFromContext(r.Context()), req.Points, req.Feedback)
		if err != nil {
			fail(w, err)
			return
		}
		record(r.Context(), rec, notify.Message{
			RecipientID: graded.StudentID,
			EventType:   notify.EventAssignmentGraded,
			Subject:     "Assignment graded: " + a.Title,
			Body:        fmt.Sprintf("You scored %.2f/%.0f.", *graded.Grade, a.MaxPoints),
		})
		writeJSON(w, http.StatusOK, graded)
	}
}

// GET /assignments/{assignmentID}/statistics  (staff)
func AssignmentStatisticsHandler(store assignment.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID := pathParam(r, "assignmentID")
		a, err := store.GetAssignment(r.Context(), assignmentID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, a.CourseID) {
			return
		}
		st, err := store.Statistics(r.Context(), assignmentID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
