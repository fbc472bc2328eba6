package quiz

import (
	"context"
	"errors"

	"github.com/course-hub/coursehub-lms/internal/progress"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizUnavailable  = errors.New("quiz is not active")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptLimit     = errors.New("maximum attempts reached")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrTimeLimit        = errors.New("time limit exceeded")
	ErrNotGradable      = errors.New("response does not need manual grading")
)

// Store is the persistence surface of the quiz module.
type Store interface {
	PutQuiz(ctx context.Context, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
	ListQuizzes(ctx context.Context, courseID string) ([]Quiz, error)

	StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error)
	SubmitAttempt(ctx context.Context, attemptID, studentID string, responses []ResponseInput) (Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (Attempt, error)
	ListAttempts(ctx context.Context, quizID, studentID string) ([]Attempt, error)

	GradeEssayResponse(ctx context.Context, attemptID, questionID string, points float64) (Attempt, error)
	Statistics(ctx context.Context, quizID string) (Statistics, error)
}

// ProgressSink receives quiz outcomes so enrollment progress stays current.
// *progress.SQLStore satisfies it.
type ProgressSink interface {
	ActiveEnrollment(ctx context.Context, studentID, courseID string) (progress.Enrollment, error)
	NoteQuizOutcome(ctx context.Context, enrollmentID, lectureID string, score float64, passed bool, attemptNumber int) error
	RecordLectureCompletion(ctx context.Context, enrollmentID, lectureID, method string) (progress.Enrollment, error)
}
