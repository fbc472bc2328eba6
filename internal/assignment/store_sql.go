package assignment

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

type SQLStore struct {
	db     *sql.DB
	driver string
	prog   ProgressSink
	blobs  BlobDeleter
}

func NewSQLStore(db *sql.DB, driver string, prog ProgressSink, blobs BlobDeleter) *SQLStore {
	return &SQLStore{db: db, driver: driver, prog: prog, blobs: blobs}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) PutAssignment(ctx context.Context, a Assignment) (Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = time.Now().Unix()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO assignments (id, course_id, lecture_id, title, instructions, max_points,
			                          passing_score, weight, due_at, allow_late, late_penalty_percent,
			                          is_active, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			a.ID, a.CourseID, nullStr(a.LectureID), a.Title, a.Instructions, a.MaxPoints,
			a.PassingScore, a.Weight, nullInt64Ptr(a.DueAt), a.AllowLate, a.LatePenaltyPercent,
			a.IsActive, a.CreatedAt)
		if err != nil {
			return Assignment{}, err
		}
		return a, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET title=$1, instructions=$2, max_points=$3, passing_score=$4,
		        weight=$5, due_at=$6, allow_late=$7, late_penalty_percent=$8, is_active=$9,
		        lecture_id=$10
		  WHERE id=$11`,
		a.Title, a.Instructions, a.MaxPoints, a.PassingScore, a.Weight, nullInt64Ptr(a.DueAt),
		a.AllowLate, a.LatePenaltyPercent, a.IsActive, nullStr(a.LectureID), a.ID)
	if err != nil {
		return Assignment{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Assignment{}, ErrAssignmentNotFound
	}
	return s.GetAssignment(ctx, a.ID)
}

func (s *SQLStore) GetAssignment(ctx context.Context, assignmentID string) (Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, lecture_id, title, instructions, max_points, passing_score,
		        weight, due_at, allow_late, late_penalty_percent, is_active, created_at
		   FROM assignments WHERE id=$1`, assignmentID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, ErrAssignmentNotFound
	}
	return a, err
}

func (s *SQLStore) ListAssignments(ctx context.Context, courseID string) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, lecture_id, title, instructions, max_points, passing_score,
		        weight, due_at, allow_late, late_penalty_percent, is_active, created_at
		   FROM assignments WHERE course_id=$1 ORDER BY created_at`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) Submit(ctx context.Context, assignmentID, studentID string, in SubmissionInput) (Submission, error) {
	a, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Submission{}, err
	}
	if !a.IsActive {
		return Submission{}, ErrAssignmentInactive
	}
	enr, err := s.prog.ActiveEnrollment(ctx, studentID, a.CourseID)
	if err != nil {
		return Submission{}, err
	}

	now := time.Now().Unix()
	isLate := a.DueAt != nil && now > *a.DueAt
	if isLate && !a.AllowLate {
		return Submission{}, ErrDeadlinePassed
	}

	existing, err := s.StudentSubmission(ctx, assignmentID, studentID)
	switch {
	case err == nil:
		if existing.Graded() {
			// graded work stays in the record; the resubmission is a fresh row
			return s.replaceGraded(ctx, existing, a, enr.ID, in, now, isLate)
		}
		return s.updateOpen(ctx, existing, a, in, now, isLate)
	case errors.Is(err, ErrSubmissionNotFound):
	default:
		return Submission{}, err
	}

	sub := Submission{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		StudentID:    studentID,
		EnrollmentID: enr.ID,
		Text:         in.Text,
		FileKey:      in.FileKey,
		FileName:     in.FileName,
		SubmittedAt:  now,
		IsLate:       isLate,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignment_submissions (id, assignment_id, student_id, enrollment_id,
		        submission_text, file_key, file_name, submitted_at, is_late)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.EnrollmentID,
		sub.Text, sub.FileKey, sub.FileName, sub.SubmittedAt, sub.IsLate)
	if err != nil {
		return Submission{}, err
	}
	return sub, s.noteSubmitted(ctx, a, enr.ID)
}

func (s *SQLStore) replaceGraded(ctx context.Context, old Submission, a Assignment, enrollmentID string, in SubmissionInput, now int64, isLate bool) (Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Submission{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE assignment_submissions SET superseded=$1 WHERE id=$2`, true, old.ID); err != nil {
		return Submission{}, err
	}
	sub := Submission{
		ID:           uuid.NewString(),
		AssignmentID: old.AssignmentID,
		StudentID:    old.StudentID,
		EnrollmentID: enrollmentID,
		Text:         in.Text,
		FileKey:      in.FileKey,
		FileName:     in.FileName,
		SubmittedAt:  now,
		IsLate:       isLate,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO assignment_submissions (id, assignment_id, student_id, enrollment_id,
		        submission_text, file_key, file_name, submitted_at, is_late)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.EnrollmentID,
		sub.Text, sub.FileKey, sub.FileName, sub.SubmittedAt, sub.IsLate); err != nil {
		return Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return Submission{}, err
	}
	return sub, s.noteSubmitted(ctx, a, enrollmentID)
}

func (s *SQLStore) updateOpen(ctx context.Context, old Submission, a Assignment, in SubmissionInput, now int64, isLate bool) (Submission, error) {
	sub := old
	sub.Text = in.Text
	sub.SubmittedAt = now
	sub.IsLate = isLate
	if in.FileKey != "" {
		if old.FileKey != "" {
			s.discardBlob(old.FileKey)
		}
		sub.FileKey = in.FileKey
		sub.FileName = in.FileName
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE assignment_submissions SET submission_text=$1, file_key=$2, file_name=$3,
		        submitted_at=$4, is_late=$5
		  WHERE id=$6`,
		sub.Text, sub.FileKey, sub.FileName, sub.SubmittedAt, sub.IsLate, sub.ID)
	if err != nil {
		return Submission{}, err
	}
	return sub, s.noteSubmitted(ctx, a, sub.EnrollmentID)
}

func (s *SQLStore) noteSubmitted(ctx context.Context, a Assignment, enrollmentID string) error {
	if a.LectureID == "" {
		return nil
	}
	return s.prog.NoteAssignmentOutcome(ctx, enrollmentID, a.LectureID, nil, false)
}

func (s *SQLStore) Unsubmit(ctx context.Context, assignmentID, studentID string) error {
	a, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	sub, err := s.StudentSubmission(ctx, assignmentID, studentID)
	if err != nil {
		if errors.Is(err, ErrSubmissionNotFound) {
			return ErrNothingToUnsubmit
		}
		return err
	}
	if sub.Graded() {
		return ErrUnsubmitAfterGrading
	}
	now := time.Now().Unix()
	if a.DueAt != nil && now > *a.DueAt && !a.AllowLate {
		return ErrDeadlinePassed
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM assignment_submissions WHERE id=$1`, sub.ID); err != nil {
		return err
	}
	if sub.FileKey != "" {
		s.discardBlob(sub.FileKey)
	}
	return nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	row := s.db.QueryRowContext(ctx, selectSubmission+` WHERE id=$1`, submissionID)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, err
}

func (s *SQLStore) StudentSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		selectSubmission+` WHERE assignment_id=$1 AND student_id=$2 AND superseded=$3`,
		assignmentID, studentID, false)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrSubmissionNotFound
	}
	return sub, err
}

func (s *SQLStore) ListSubmissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		selectSubmission+` WHERE assignment_id=$1 ORDER BY submitted_at DESC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Grade records points for a submission, applying the late penalty when the
// submission came in past the deadline.
func (s *SQLStore) Grade(ctx context.Context, submissionID, graderID string, points float64, feedback string) (Submission, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, err
	}
	if sub.Graded() {
		return Submission{}, ErrAlreadyGraded
	}
	a, err := s.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if points < 0 || points > a.MaxPoints {
		return Submission{}, ErrGradeOutOfRange
	}

	final := points
	if sub.IsLate && a.LatePenaltyPercent > 0 {
		final = points - a.LatePenaltyPercent/100*points
		if final < 0 {
			final = 0
		}
	}
	final = round2(final)

	// graded_at IS NULL makes the write conditional, so a concurrent grader
	// cannot overwrite a grade that landed after our read
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignment_submissions SET grade=$1, feedback=$2, graded_by=$3, graded_at=$4
		  WHERE id=$5 AND graded_at IS NULL`,
		final, feedback, graderID, now, sub.ID)
	if err != nil {
		return Submission{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Submission{}, ErrAlreadyGraded
	}
	sub.Grade = &final
	sub.Feedback = feedback
	sub.GradedBy = graderID
	sub.GradedAt = &now

	if a.LectureID != "" {
		passed := final >= a.PassingPoints()
		if err := s.prog.NoteAssignmentOutcome(ctx, sub.EnrollmentID, a.LectureID, &final, passed); err != nil {
			return Submission{}, err
		}
	}
	return sub, nil
}

func (s *SQLStore) Statistics(ctx context.Context, assignmentID string) (Statistics, error) {
	a, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Statistics{}, err
	}
	st := Statistics{AssignmentID: assignmentID}

	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, grade, is_late FROM assignment_submissions WHERE assignment_id=$1`,
		assignmentID)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()
	students := map[string]struct{}{}
	var gradeSum float64
	for rows.Next() {
		var studentID string
		var grade sql.NullFloat64
		var late bool
		if err := rows.Scan(&studentID, &grade, &late); err != nil {
			return Statistics{}, err
		}
		st.TotalSubmissions++
		students[studentID] = struct{}{}
		if late {
			st.LateSubmissions++
		}
		if grade.Valid {
			st.Graded++
			gradeSum += grade.Float64
		} else {
			st.PendingGrading++
		}
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}
	st.UniqueStudents = len(students)
	if st.Graded > 0 {
		st.AverageGrade = round2(gradeSum / float64(st.Graded))
	}

	var enrolled int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE course_id=$1 AND status='active'`,
		a.CourseID).Scan(&enrolled); err != nil {
		return Statistics{}, err
	}
	if enrolled > 0 {
		st.SubmissionRate = round2(float64(st.UniqueStudents) / float64(enrolled) * 100)
	}
	return st, nil
}

// discardBlob removes a replaced or withdrawn file. Blob cleanup is best
// effort; the submission row is the source of truth.
func (s *SQLStore) discardBlob(key string) {
	if s.blobs == nil {
		return
	}
	_ = s.blobs.Delete(key)
}

const selectSubmission = `SELECT id, assignment_id, student_id, enrollment_id, submission_text,
       file_key, file_name, submitted_at, is_late, grade, feedback, graded_by, graded_at, superseded
  FROM assignment_submissions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (Assignment, error) {
	var a Assignment
	var lectureID sql.NullString
	var dueAt sql.NullInt64
	if err := row.Scan(&a.ID, &a.CourseID, &lectureID, &a.Title, &a.Instructions, &a.MaxPoints,
		&a.PassingScore, &a.Weight, &dueAt, &a.AllowLate, &a.LatePenaltyPercent,
		&a.IsActive, &a.CreatedAt); err != nil {
		return Assignment{}, err
	}
	a.LectureID = lectureID.String
	if dueAt.Valid {
		v := dueAt.Int64
		a.DueAt = &v
	}
	return a, nil
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var grade sql.NullFloat64
	var gradedBy sql.NullString
	var gradedAt sql.NullInt64
	if err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.StudentID, &sub.EnrollmentID, &sub.Text,
		&sub.FileKey, &sub.FileName, &sub.SubmittedAt, &sub.IsLate,
		&grade, &sub.Feedback, &gradedBy, &gradedAt, &sub.Superseded); err != nil {
		return Submission{}, err
	}
	if grade.Valid {
		v := grade.Float64
		sub.Grade = &v
	}
	sub.GradedBy = gradedBy.String
	if gradedAt.Valid {
		v := gradedAt.Int64
		sub.GradedAt = &v
	}
	return sub, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64Ptr(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
