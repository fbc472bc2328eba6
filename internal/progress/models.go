package progress

// Enrollment statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
	StatusRefunded  = "refunded"
)

// Completion methods recorded on lecture progress rows.
const (
	MethodManual           = "manual"
	MethodVideoWatched     = "video_watched"
	MethodReadingDone      = "reading_done"
	MethodQuizPassed       = "quiz_passed"
	MethodAssignmentGraded = "assignment_graded"
)

type Enrollment struct {
	ID             string  `json:"id"`
	StudentID      string  `json:"student_id"`
	CourseID       string  `json:"course_id"`
	Status         string  `json:"status"`
	ProgressPct    float64 `json:"progress_percentage"`
	EnrolledAt     int64   `json:"enrolled_at"`
	CompletedAt    *int64  `json:"completed_at,omitempty"`
	LastAccessedAt *int64  `json:"last_accessed_at,omitempty"`
}

type LectureProgress struct {
	ID                  string   `json:"id"`
	EnrollmentID        string   `json:"enrollment_id"`
	LectureID           string   `json:"lecture_id"`
	IsCompleted         bool     `json:"is_completed"`
	CompletedAt         *int64   `json:"completed_at,omitempty"`
	CompletionMethod    string   `json:"completion_method,omitempty"`
	WatchSeconds        int      `json:"watch_seconds"`
	LastPosition        int      `json:"last_position"`
	WatchCount          int      `json:"watch_count"`
	QuizAttempts        int      `json:"quiz_attempts"`
	QuizBestScore       *float64 `json:"quiz_best_score,omitempty"`
	AssignmentSubmitted bool     `json:"assignment_submitted"`
	AssignmentGrade     *float64 `json:"assignment_grade,omitempty"`
}

// Summary is a course-level view of one enrollment's progress.
type Summary struct {
	Enrollment        Enrollment        `json:"enrollment"`
	LecturesTotal     int               `json:"lectures_total"`
	LecturesCompleted int               `json:"lectures_completed"`
	Lectures          []LectureProgress `json:"lectures"`
}
