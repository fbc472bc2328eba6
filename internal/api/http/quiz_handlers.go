package http

import (
	"fmt"
	"net/http"

	"github.com/course-hub/coursehub-lms/internal/course"
	"github.com/course-hub/coursehub-lms/internal/notify"
	"github.com/course-hub/coursehub-lms/internal/quiz"
	"github.com/course-hub/coursehub-lms/internal/rbac"
)

type quizReq struct {
	ID           string          `json:"id"`
	CourseID     string          `json:"course_id" validate:"required"`
	LectureID    string          `json:"lecture_id"`
	Title        string          `json:"title" validate:"required"`
	PassingScore float64         `json:"passing_score" validate:"min=0,max=100"`
	TimeLimitMin *int            `json:"time_limit_min" validate:"omitempty,min=1"`
	MaxAttempts  int             `json:"max_attempts" validate:"min=0"`
	Weight       float64         `json:"weight" validate:"min=0"`
	IsActive     bool            `json:"is_active"`
	Questions    []quiz.Question `json:"questions" validate:"required,min=1,dive"`
}

// PUT /courses/{courseID}/quizzes  (instructor)
func PutQuizHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quizReq
		if !decodeValid(w, r, &req) {
			return
		}
		if !instructorOf(w, r, courses, req.CourseID) {
			return
		}
		q, err := store.PutQuiz(r.Context(), quiz.Quiz{
			ID:           req.ID,
			CourseID:     req.CourseID,
			LectureID:    req.LectureID,
			Title:        req.Title,
			PassingScore: req.PassingScore,
			TimeLimitMin: req.TimeLimitMin,
			MaxAttempts:  req.MaxAttempts,
			Weight:       req.Weight,
			IsActive:     req.IsActive,
			Questions:    req.Questions,
		})
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	}
}

// GET /courses/{courseID}/quizzes
func ListQuizzesHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseID := pathParam(r, "courseID")
		list, err := store.ListQuizzes(r.Context(), courseID)
		if err != nil {
			fail(w, err)
			return
		}
		if !isCourseStaff(r, courses, courseID) {
			for i := range list {
				list[i] = list[i].StudentView()
			}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /quizzes/{quizID}
func GetQuizHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuiz(r.Context(), pathParam(r, "quizID"))
		if err != nil {
			fail(w, err)
			return
		}
		if !isCourseStaff(r, courses, q.CourseID) {
			q = q.StudentView()
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// isCourseStaff checks instructor/admin without writing a response.
func isCourseStaff(r *http.Request, courses *course.SQLStore, courseID string) bool {
	if rbac.RoleFromContext(r.Context()) == "admin" {
		return true
	}
	ok, err := courses.IsInstructor(r.Context(), courseID, rbac.SubjectFromContext(r.Context()))
	return err == nil && ok
}

// POST /quizzes/{quizID}/attempts
func StartAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.StartAttempt(r.Context(), pathParam(r, "quizID"), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// POST /attempts/{attemptID}/submit  { "responses": [...] }
func SubmitAttemptHandler(store quiz.Store, rec *notify.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Responses []quiz.ResponseInput `json:"responses"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		a, err := store.SubmitAttempt(r.Context(), pathParam(r, "attemptID"), sub, req.Responses)
		if err != nil {
			fail(w, err)
			return
		}
		if a.Score != nil {
			record(r.Context(), rec, notify.Message{
				RecipientID: sub,
				EventType:   notify.EventQuizGraded,
				Subject:     "Quiz scored",
				Body:        fmt.Sprintf("Your attempt scored %.2f%%.", *a.Score),
			})
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /quizzes/{quizID}/attempts  (own attempts; staff see any student via ?student_id=)
func ListAttemptsHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := pathParam(r, "quizID")
		studentID := rbac.SubjectFromContext(r.Context())
		if want := r.URL.Query().Get("student_id"); want != "" && want != studentID {
			q, err := store.GetQuiz(r.Context(), quizID)
			if err != nil {
				fail(w, err)
				return
			}
			if !isCourseStaff(r, courses, q.CourseID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			studentID = want
		}
		list, err := store.ListAttempts(r.Context(), quizID, studentID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /attempts/{attemptID}
func GetAttemptHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAttempt(r.Context(), pathParam(r, "attemptID"))
		if err != nil {
			fail(w, err)
			return
		}
		if a.StudentID != rbac.SubjectFromContext(r.Context()) {
			q, err := store.GetQuiz(r.Context(), a.QuizID)
			if err != nil {
				fail(w, err)
				return
			}
			if !isCourseStaff(r, courses, q.CourseID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/responses/{questionID}/grade  { "points": 4 }
func GradeEssayHandler(store quiz.Store, courses *course.SQLStore, rec *notify.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points float64 `json:"points" validate:"min=0"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		attemptID := pathParam(r, "attemptID")
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			fail(w, err)
			return
		}
		q, err := store.GetQuiz(r.Context(), a.QuizID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, q.CourseID) {
			return
		}
		graded, err := store.GradeEssayResponse(r.Context(), attemptID, pathParam(r, "questionID"), req.Points)
		if err != nil {
			fail(w, err)
			return
		}
		if graded.Score != nil {
			record(r.Context(), rec, notify.Message{
				RecipientID: graded.StudentID,
				EventType:   notify.EventQuizGraded,
				Subject:     "Quiz reviewed",
				Body:        fmt.Sprintf("Your attempt was reviewed and now stands at %.2f%%.", *graded.Score),
			})
		}
		writeJSON(w, http.StatusOK, graded)
	}
}

// GET /quizzes/{quizID}/statistics  (staff)
func QuizStatisticsHandler(store quiz.Store, courses *course.SQLStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := pathParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), quizID)
		if err != nil {
			fail(w, err)
			return
		}
		if !instructorOf(w, r, courses, q.CourseID) {
			return
		}
		st, err := store.Statistics(r.Context(), quizID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
