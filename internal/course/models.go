package course

// Course lifecycle states.
const (
	StatusDraft       = "draft"
	StatusPublished   = "published"
	StatusUnpublished = "unpublished"
)

// Course access tiers.
const (
	TypeFree = "free"
	TypePlus = "plus"
)

// Lecture content kinds.
const (
	ContentVideo      = "video"
	ContentReading    = "reading"
	ContentQuiz       = "quiz"
	ContentAssignment = "assignment"
)

type Course struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Type      string `json:"course_type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

type Section struct {
	ID       string    `json:"id"`
	CourseID string    `json:"course_id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Lectures []Lecture `json:"lectures,omitempty"`
}

type Lecture struct {
	ID          string `json:"id"`
	SectionID   string `json:"section_id"`
	CourseID    string `json:"course_id"`
	Title       string `json:"title"`
	ContentType string `json:"content_type"`
	Position    int    `json:"position"`
}
