package progress

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
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) Enroll(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	var status, courseType string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, course_type FROM courses WHERE id=$1`, courseID).
		Scan(&status, &courseType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrCourseUnavailable
		}
		return Enrollment{}, err
	}
	if status != "published" {
		return Enrollment{}, ErrCourseUnavailable
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id=$1 AND course_id=$2)`,
		studentID, courseID).Scan(&exists); err != nil {
		return Enrollment{}, err
	}
	if exists {
		return Enrollment{}, ErrAlreadyEnrolled
	}

	if courseType == "plus" {
		var plus bool
		err := s.db.QueryRowContext(ctx,
			`SELECT plus_subscriber FROM users WHERE id=$1`, studentID).Scan(&plus)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, err
		}
		if !plus {
			return Enrollment{}, ErrPlusRequired
		}
	}

	e := Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: time.Now().Unix(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, course_id, status, progress_percentage, enrolled_at)
		 VALUES ($1,$2,$3,$4,0,$5)`,
		e.ID, e.StudentID, e.CourseID, e.Status, e.EnrolledAt)
	if err != nil {
		// the unique key on (student_id, course_id) rejects a concurrent
		// enrollment that slipped past the pre-check
		if e2 := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id=$1 AND course_id=$2)`,
			studentID, courseID).Scan(&exists); e2 == nil && exists {
			return Enrollment{}, ErrAlreadyEnrolled
		}
		return Enrollment{}, err
	}
	return e, nil
}

func (s *SQLStore) ActiveEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, course_id, status, progress_percentage, enrolled_at, completed_at, last_accessed_at
		   FROM enrollments WHERE student_id=$1 AND course_id=$2 AND status=$3`,
		studentID, courseID, StatusActive)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, ErrNotEnrolled
	}
	return e, err
}

func (s *SQLStore) getEnrollment(ctx context.Context, q rowQueryer, id string, lock bool) (Enrollment, error) {
	sqlStr := `SELECT id, student_id, course_id, status, progress_percentage, enrolled_at, completed_at, last_accessed_at
		   FROM enrollments WHERE id=$1`
	if lock && s.driver == "postgres" {
		sqlStr += ` FOR UPDATE`
	}
	return scanEnrollment(q.QueryRowContext(ctx, sqlStr, id))
}

func (s *SQLStore) RecordLectureCompletion(ctx context.Context, enrollmentID, lectureID, method string) (Enrollment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Enrollment{}, err
	}
	defer tx.Rollback()

	e, err := s.getEnrollment(ctx, tx, enrollmentID, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, err
	}
	if e.Status != StatusActive && e.Status != StatusCompleted {
		return Enrollment{}, ErrNotEnrolled
	}

	var inCourse bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM lectures WHERE id=$1 AND course_id=$2)`,
		lectureID, e.CourseID).Scan(&inCourse); err != nil {
		return Enrollment{}, err
	}
	if !inCourse {
		return Enrollment{}, ErrLectureNotFound
	}

	if err := s.ensureProgressRow(ctx, tx, enrollmentID, lectureID); err != nil {
		return Enrollment{}, err
	}

	now := time.Now().Unix()
	// Idempotent guard: only the transition from incomplete counts.
	res, err := tx.ExecContext(ctx,
		`UPDATE lecture_progress SET is_completed=$1, completed_at=$2, completion_method=$3
		  WHERE enrollment_id=$4 AND lecture_id=$5 AND is_completed=$6`,
		true, now, method, enrollmentID, lectureID, false)
	if err != nil {
		return Enrollment{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already completed: no-op
		if err := tx.Commit(); err != nil {
			return Enrollment{}, err
		}
		return e, nil
	}

	e, err = s.recomputeProgress(ctx, tx, e, now)
	if err != nil {
		return Enrollment{}, err
	}
	if err := tx.Commit(); err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

// recomputeProgress recalculates the enrollment percentage from completed
// lecture counts and applies the one-way completed transition at 100.
func (s *SQLStore) recomputeProgress(ctx context.Context, tx *sql.Tx, e Enrollment, now int64) (Enrollment, error) {
	var total, completed int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lectures WHERE course_id=$1`, e.CourseID).Scan(&total); err != nil {
		return Enrollment{}, err
	}
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lecture_progress WHERE enrollment_id=$1 AND is_completed=$2`,
		e.ID, true).Scan(&completed); err != nil {
		return Enrollment{}, err
	}

	pct := 0.0
	if total > 0 {
		pct = round2(float64(completed) / float64(total) * 100)
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	e.ProgressPct = pct
	e.LastAccessedAt = &now

	if pct >= 100 && e.Status == StatusActive {
		e.Status = StatusCompleted
		e.CompletedAt = &now
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET progress_percentage=$1, status=$2, completed_at=$3, last_accessed_at=$4 WHERE id=$5`,
		e.ProgressPct, e.Status, e.CompletedAt, e.LastAccessedAt, e.ID)
	if err != nil {
		return Enrollment{}, err
	}
	return e, nil
}

func (s *SQLStore) RecordWatchProgress(ctx context.Context, enrollmentID, lectureID string, position, seconds int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureProgressRow(ctx, tx, enrollmentID, lectureID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE lecture_progress
		    SET last_position=$1, watch_seconds=watch_seconds+$2, watch_count=watch_count+1
		  WHERE enrollment_id=$3 AND lecture_id=$4`,
		position, seconds, enrollmentID, lectureID)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET last_accessed_at=$1 WHERE id=$2`, now, enrollmentID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) NoteQuizOutcome(ctx context.Context, enrollmentID, lectureID string, score float64, passed bool, attemptNumber int) error {
	if lectureID == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureProgressRow(ctx, tx, enrollmentID, lectureID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE lecture_progress
		    SET quiz_attempts=quiz_attempts+1,
		        quiz_best_score=CASE WHEN quiz_best_score IS NULL OR quiz_best_score<$1 THEN $1 ELSE quiz_best_score END
		  WHERE enrollment_id=$2 AND lecture_id=$3`,
		score, enrollmentID, lectureID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Completion is only triggered from a passed first attempt.
	if passed && attemptNumber == 1 {
		_, err = s.RecordLectureCompletion(ctx, enrollmentID, lectureID, MethodQuizPassed)
		return err
	}
	return nil
}

func (s *SQLStore) NoteAssignmentOutcome(ctx context.Context, enrollmentID, lectureID string, grade *float64, passed bool) error {
	if lectureID == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureProgressRow(ctx, tx, enrollmentID, lectureID); err != nil {
		return err
	}
	if grade != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE lecture_progress SET assignment_submitted=$1, assignment_grade=$2
			  WHERE enrollment_id=$3 AND lecture_id=$4`,
			true, *grade, enrollmentID, lectureID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE lecture_progress SET assignment_submitted=$1
			  WHERE enrollment_id=$2 AND lecture_id=$3`,
			true, enrollmentID, lectureID)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if passed {
		_, err = s.RecordLectureCompletion(ctx, enrollmentID, lectureID, MethodAssignmentGraded)
		return err
	}
	return nil
}

func (s *SQLStore) Progress(ctx context.Context, enrollmentID string) (Summary, error) {
	e, err := s.getEnrollment(ctx, s.db, enrollmentID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotEnrolled
		}
		return Summary{}, err
	}

	sum := Summary{Enrollment: e}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lectures WHERE course_id=$1`, e.CourseID).Scan(&sum.LecturesTotal); err != nil {
		return Summary{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, enrollment_id, lecture_id, is_completed, completed_at, completion_method,
		        watch_seconds, last_position, watch_count, quiz_attempts, quiz_best_score,
		        assignment_submitted, assignment_grade
		   FROM lecture_progress WHERE enrollment_id=$1`, enrollmentID)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var lp LectureProgress
		var completedAt sql.NullInt64
		var bestScore, assignGrade sql.NullFloat64
		if err := rows.Scan(&lp.ID, &lp.EnrollmentID, &lp.LectureID, &lp.IsCompleted, &completedAt,
			&lp.CompletionMethod, &lp.WatchSeconds, &lp.LastPosition, &lp.WatchCount,
			&lp.QuizAttempts, &bestScore, &lp.AssignmentSubmitted, &assignGrade); err != nil {
			return Summary{}, err
		}
		if completedAt.Valid {
			v := completedAt.Int64
			lp.CompletedAt = &v
		}
		if bestScore.Valid {
			v := bestScore.Float64
			lp.QuizBestScore = &v
		}
		if assignGrade.Valid {
			v := assignGrade.Float64
			lp.AssignmentGrade = &v
		}
		if lp.IsCompleted {
			sum.LecturesCompleted++
		}
		sum.Lectures = append(sum.Lectures, lp)
	}
	return sum, rows.Err()
}

// ensureProgressRow lazily creates the (enrollment, lecture) row. The unique
// constraint makes concurrent creation race-safe.
func (s *SQLStore) ensureProgressRow(ctx context.Context, tx *sql.Tx, enrollmentID, lectureID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO lecture_progress (id, enrollment_id, lecture_id)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (enrollment_id, lecture_id) DO NOTHING`,
		uuid.NewString(), enrollmentID, lectureID)
	return err
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanEnrollment(row *sql.Row) (Enrollment, error) {
	var e Enrollment
	var completedAt, lastAccessed sql.NullInt64
	if err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.Status, &e.ProgressPct,
		&e.EnrolledAt, &completedAt, &lastAccessed); err != nil {
		return Enrollment{}, err
	}
	if completedAt.Valid {
		v := completedAt.Int64
		e.CompletedAt = &v
	}
	if lastAccessed.Valid {
		v := lastAccessed.Int64
		e.LastAccessedAt = &v
	}
	return e, nil
}

// round2 rounds half-up to two decimals.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
