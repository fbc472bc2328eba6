package gradebook

// Component is one weighted grade bucket (assignments or quizzes).
type Component struct {
	Type      string  `json:"type"`
	Score     float64 `json:"score"`  // weighted average within the bucket
	Weight    float64 `json:"weight"` // summed weights of the bucket
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
}

// CourseGrade is a student's aggregated standing in one course.
type CourseGrade struct {
	FinalGrade  float64     `json:"final_grade"`
	LetterGrade string      `json:"letter_grade"`
	Components  []Component `json:"components"`
	TotalWeight float64     `json:"total_weight"`
	IsPassing   bool        `json:"is_passing"`
}

// CourseStatistics summarizes grades across a course's active students.
type CourseStatistics struct {
	TotalStudents   int            `json:"total_students"`
	AverageGrade    float64        `json:"average_grade"`
	HighestGrade    float64        `json:"highest_grade"`
	LowestGrade     float64        `json:"lowest_grade"`
	PassingStudents int            `json:"passing_students"`
	FailingStudents int            `json:"failing_students"`
	Distribution    map[string]int `json:"grade_distribution"` // letter family -> count
}

// Entry is one course row in a student's cross-course gradebook.
type Entry struct {
	CourseID    string  `json:"course_id"`
	CourseTitle string  `json:"course_title"`
	EnrolledAt  int64   `json:"enrolled_at"`
	ProgressPct float64 `json:"progress_percentage"`
	CourseGrade
}
