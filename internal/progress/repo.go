package progress

import (
	"context"
	"errors"
)

var (
	// ErrNotEnrolled is returned when no active enrollment exists for the
	// (student, course) pair. Handlers surface it as forbidden.
	ErrNotEnrolled = errors.New("no active enrollment")

	ErrAlreadyEnrolled   = errors.New("already enrolled in this course")
	ErrCourseUnavailable = errors.New("course is not available for enrollment")
	ErrPlusRequired      = errors.New("plus subscription required")
	ErrLectureNotFound   = errors.New("lecture not found in course")
)

type Store interface {
	// Enroll runs the eligibility check and creates an active enrollment.
	Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error)

	// ActiveEnrollment resolves the active enrollment for (student, course).
	ActiveEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)

	// RecordLectureCompletion idempotently marks a lecture complete and
	// recomputes the enrollment's progress percentage. Re-marking an
	// already-completed lecture is a no-op.
	RecordLectureCompletion(ctx context.Context, enrollmentID, lectureID, method string) (Enrollment, error)

	// RecordWatchProgress updates video position/time counters without
	// completing the lecture.
	RecordWatchProgress(ctx context.Context, enrollmentID, lectureID string, position, seconds int) error

	// NoteQuizOutcome folds a submitted quiz attempt into the lecture
	// progress row (attempt count, best score) and triggers completion
	// when the first attempt passes.
	NoteQuizOutcome(ctx context.Context, enrollmentID, lectureID string, score float64, passed bool, attemptNumber int) error

	// NoteAssignmentOutcome folds a submission or grade into the lecture
	// progress row and triggers completion when the grade passes.
	NoteAssignmentOutcome(ctx context.Context, enrollmentID, lectureID string, grade *float64, passed bool) error

	Progress(ctx context.Context, enrollmentID string) (Summary, error)
}
