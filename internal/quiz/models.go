package quiz

// Option is one selectable answer of a choice question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

// Question is stored as part of the quiz JSON document. Types mirror the
// grading strategies: multiple_choice, true_false, multiple_select,
// fill_blank, essay.
type Question struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Prompt         string   `json:"prompt"`
	Points         float64  `json:"points"`
	Options        []Option `json:"options,omitempty"`
	CorrectAnswers []string `json:"correct_answers,omitempty"` // fill_blank accepted answers
}

type Quiz struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	LectureID    string     `json:"lecture_id,omitempty"`
	Title        string     `json:"title"`
	PassingScore float64    `json:"passing_score"`
	TimeLimitMin *int       `json:"time_limit_min,omitempty"`
	MaxAttempts  int        `json:"max_attempts"`
	Weight       float64    `json:"weight"`
	IsActive     bool       `json:"is_active"`
	Questions    []Question `json:"questions"`
	CreatedAt    int64      `json:"created_at"`
}

// StudentView strips the answer key so the quiz can be served to takers.
func (q Quiz) StudentView() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, qu := range q.Questions {
		c := qu
		c.CorrectAnswers = nil
		if len(qu.Options) > 0 {
			c.Options = make([]Option, len(qu.Options))
			for j, o := range qu.Options {
				c.Options[j] = Option{ID: o.ID, Text: o.Text}
			}
		}
		out.Questions[i] = c
	}
	return out
}

// MaxPoints is the sum of all question points.
func (q Quiz) MaxPoints() float64 {
	var total float64
	for _, qu := range q.Questions {
		total += qu.Points
	}
	return total
}

type QuestionResponse struct {
	ID           string   `json:"id"`
	AttemptID    string   `json:"attempt_id"`
	QuestionID   string   `json:"question_id"`
	Selected     []string `json:"selected,omitempty"`
	Text         string   `json:"text,omitempty"`
	IsCorrect    *bool    `json:"is_correct,omitempty"`
	PointsEarned float64  `json:"points_earned"`
	NeedsReview  bool     `json:"needs_review"`
}

type Attempt struct {
	ID            string             `json:"id"`
	QuizID        string             `json:"quiz_id"`
	StudentID     string             `json:"student_id"`
	EnrollmentID  string             `json:"enrollment_id"`
	AttemptNumber int                `json:"attempt_number"`
	StartedAt     int64              `json:"started_at"`
	EndedAt       *int64             `json:"ended_at,omitempty"`
	Score         *float64           `json:"score,omitempty"`
	Passed        bool               `json:"passed"`
	Responses     []QuestionResponse `json:"responses,omitempty"`
}

// Submitted reports whether the attempt has been turned in.
func (a Attempt) Submitted() bool { return a.EndedAt != nil }

// ResponseInput is one answer supplied at submit time.
type ResponseInput struct {
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected,omitempty"`
	Text       string   `json:"text,omitempty"`
}

// Statistics aggregates submitted attempts of a quiz.
type Statistics struct {
	QuizID         string  `json:"quiz_id"`
	TotalAttempts  int     `json:"total_attempts"`
	UniqueStudents int     `json:"unique_students"`
	AverageScore   float64 `json:"average_score"`
	HighestScore   float64 `json:"highest_score"`
	PassRate       float64 `json:"pass_rate"` // percent of submitted attempts passed
}
