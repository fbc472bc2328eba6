package assignment

type Assignment struct {
	ID                 string   `json:"id"`
	CourseID           string   `json:"course_id"`
	LectureID          string   `json:"lecture_id,omitempty"`
	Title              string   `json:"title"`
	Instructions       string   `json:"instructions"`
	MaxPoints          float64  `json:"max_points"`
	PassingScore       float64  `json:"passing_score"` // percent of max points
	Weight             float64  `json:"weight"`
	DueAt              *int64   `json:"due_at,omitempty"`
	AllowLate          bool     `json:"allow_late"`
	LatePenaltyPercent float64  `json:"late_penalty_percent"`
	IsActive           bool     `json:"is_active"`
	CreatedAt          int64    `json:"created_at"`
}

// PassingPoints is the minimum grade that counts as passing.
func (a Assignment) PassingPoints() float64 {
	return a.PassingScore / 100 * a.MaxPoints
}

type Submission struct {
	ID           string   `json:"id"`
	AssignmentID string   `json:"assignment_id"`
	StudentID    string   `json:"student_id"`
	EnrollmentID string   `json:"enrollment_id"`
	Text         string   `json:"submission_text"`
	FileKey      string   `json:"file_key,omitempty"`
	FileName     string   `json:"file_name,omitempty"`
	SubmittedAt  int64    `json:"submitted_at"`
	IsLate       bool     `json:"is_late"`
	Grade        *float64 `json:"grade,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
	GradedBy     string   `json:"graded_by,omitempty"`
	GradedAt     *int64   `json:"graded_at,omitempty"`
	Superseded   bool     `json:"superseded,omitempty"`
}

// Graded reports whether the submission has received a grade.
func (s Submission) Graded() bool { return s.GradedAt != nil }

// SubmissionInput carries the student-provided parts of a submission. File
// content is stored by the caller; only the blob key and name land here.
type SubmissionInput struct {
	Text     string
	FileKey  string
	FileName string
}

// Statistics aggregates submissions of an assignment for instructors.
type Statistics struct {
	AssignmentID     string  `json:"assignment_id"`
	TotalSubmissions int     `json:"total_submissions"`
	UniqueStudents   int     `json:"unique_students"`
	AverageGrade     float64 `json:"average_grade"` // graded submissions only
	LateSubmissions  int     `json:"late_submissions"`
	Graded           int     `json:"graded_submissions"`
	PendingGrading   int     `json:"pending_grading"`
	SubmissionRate   float64 `json:"submission_rate"` // percent of active enrollments
}
