package assignment

import (
	"context"
	"errors"

	"github.com/course-hub/coursehub-lms/internal/progress"
)

var (
	ErrAssignmentNotFound   = errors.New("assignment not found")
	ErrAssignmentInactive   = errors.New("assignment is not available")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrDeadlinePassed       = errors.New("deadline has passed and late submissions are not allowed")
	ErrAlreadyGraded        = errors.New("submission already graded")
	ErrGradeOutOfRange      = errors.New("grade out of range")
	ErrNothingToUnsubmit    = errors.New("no submission to withdraw")
	ErrUnsubmitAfterGrading = errors.New("cannot withdraw a graded submission")
)

// Store is the persistence surface of the assignment module.
type Store interface {
	PutAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, assignmentID string) (Assignment, error)
	ListAssignments(ctx context.Context, courseID string) ([]Assignment, error)

	Submit(ctx context.Context, assignmentID, studentID string, in SubmissionInput) (Submission, error)
	Unsubmit(ctx context.Context, assignmentID, studentID string) error
	GetSubmission(ctx context.Context, submissionID string) (Submission, error)
	ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
	StudentSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error)

	Grade(ctx context.Context, submissionID, graderID string, points float64, feedback string) (Submission, error)
	Statistics(ctx context.Context, assignmentID string) (Statistics, error)
}

// ProgressSink receives submission and grading outcomes. *progress.SQLStore
// satisfies it.
type ProgressSink interface {
	ActiveEnrollment(ctx context.Context, studentID, courseID string) (progress.Enrollment, error)
	NoteAssignmentOutcome(ctx context.Context, enrollmentID, lectureID string, grade *float64, passed bool) error
}

// BlobDeleter removes stored submission files that were replaced or
// withdrawn. A nil deleter leaves orphaned blobs in place.
type BlobDeleter interface {
	Delete(key string) error
}
