package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/course-hub/coursehub-lms/internal/grading"
	"github.com/course-hub/coursehub-lms/internal/progress"
)

type SQLStore struct {
	db     *sql.DB
	driver string
	grader grading.Grader
	prog   ProgressSink
}

func NewSQLStore(db *sql.DB, driver string, grader grading.Grader, prog ProgressSink) *SQLStore {
	return &SQLStore{db: db, driver: driver, grader: grader, prog: prog}
}

var _ Store = (*SQLStore)(nil)

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return Quiz{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
		q.CreatedAt = time.Now().Unix()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO quizzes (id, course_id, lecture_id, title, passing_score, time_limit_min,
			                      max_attempts, weight, is_active, questions_json, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			q.ID, q.CourseID, nullStr(q.LectureID), q.Title, q.PassingScore, nullIntPtr(q.TimeLimitMin),
			q.MaxAttempts, q.Weight, q.IsActive, string(questions), q.CreatedAt)
		if err != nil {
			return Quiz{}, err
		}
		return q, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE quizzes SET title=$1, passing_score=$2, time_limit_min=$3, max_attempts=$4,
		        weight=$5, is_active=$6, questions_json=$7, lecture_id=$8
		  WHERE id=$9`,
		q.Title, q.PassingScore, nullIntPtr(q.TimeLimitMin), q.MaxAttempts,
		q.Weight, q.IsActive, string(questions), nullStr(q.LectureID), q.ID)
	if err != nil {
		return Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Quiz{}, ErrQuizNotFound
	}
	return s.GetQuiz(ctx, q.ID)
}

func (s *SQLStore) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, lecture_id, title, passing_score, time_limit_min,
		        max_attempts, weight, is_active, questions_json, created_at
		   FROM quizzes WHERE id=$1`, quizID)
	q, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context, courseID string) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, lecture_id, title, passing_score, time_limit_min,
		        max_attempts, weight, is_active, questions_json, created_at
		   FROM quizzes WHERE course_id=$1 ORDER BY created_at`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) StartAttempt(ctx context.Context, quizID, studentID string) (Attempt, error) {
	q, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if !q.IsActive {
		return Attempt{}, ErrQuizUnavailable
	}
	enr, err := s.prog.ActiveEnrollment(ctx, studentID, q.CourseID)
	if err != nil {
		return Attempt{}, err
	}

	// the unique key on (quiz_id, student_id, attempt_number) rejects the
	// loser of two concurrent starts, so recount and retry before giving up
	for try := 0; ; try++ {
		var used int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM quiz_attempts WHERE quiz_id=$1 AND student_id=$2`,
			quizID, studentID).Scan(&used); err != nil {
			return Attempt{}, err
		}
		if q.MaxAttempts > 0 && used >= q.MaxAttempts {
			return Attempt{}, ErrAttemptLimit
		}

		a := Attempt{
			ID:            uuid.NewString(),
			QuizID:        quizID,
			StudentID:     studentID,
			EnrollmentID:  enr.ID,
			AttemptNumber: used + 1,
			StartedAt:     time.Now().Unix(),
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO quiz_attempts (id, quiz_id, student_id, enrollment_id, attempt_number, started_at, passed)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			a.ID, a.QuizID, a.StudentID, a.EnrollmentID, a.AttemptNumber, a.StartedAt, false)
		if err == nil {
			return a, nil
		}
		if try == 2 {
			return Attempt{}, err
		}
	}
}

func (s *SQLStore) SubmitAttempt(ctx context.Context, attemptID, studentID string, responses []ResponseInput) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if a.StudentID != studentID {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.Submitted() {
		return Attempt{}, ErrAlreadySubmitted
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}

	now := time.Now().Unix()
	if q.TimeLimitMin != nil && now > a.StartedAt+int64(*q.TimeLimitMin)*60 {
		return Attempt{}, ErrTimeLimit
	}

	byQuestion := make(map[string]ResponseInput, len(responses))
	for _, r := range responses {
		byQuestion[r.QuestionID] = r
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	var earned float64
	a.Responses = a.Responses[:0]
	for _, qu := range q.Questions {
		in := byQuestion[qu.ID] // unanswered questions grade as empty responses
		res, err := s.grader.Grade(ctx, toGradingQuestion(qu), grading.Response{Selected: in.Selected, Text: in.Text})
		if err != nil {
			return Attempt{}, err
		}
		qr := QuestionResponse{
			ID:           uuid.NewString(),
			AttemptID:    a.ID,
			QuestionID:   qu.ID,
			Selected:     in.Selected,
			Text:         in.Text,
			IsCorrect:    res.Correct,
			PointsEarned: res.Points,
			NeedsReview:  res.NeedsManual,
		}
		selected, err := json.Marshal(qr.Selected)
		if err != nil {
			return Attempt{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_responses (id, attempt_id, question_id, selected_json, text_answer,
			                                 is_correct, points_earned, needs_review)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			qr.ID, qr.AttemptID, qr.QuestionID, string(selected), qr.Text,
			nullBoolPtr(qr.IsCorrect), qr.PointsEarned, qr.NeedsReview); err != nil {
			return Attempt{}, err
		}
		earned += res.Points
		a.Responses = append(a.Responses, qr)
	}

	// pass/fail is decided on the raw percentage; rounding is display-only
	raw := 0.0
	if max := q.MaxPoints(); max > 0 {
		raw = earned / max * 100
	}
	passed := raw >= q.PassingScore
	score := round2(raw)
	if _, err := tx.ExecContext(ctx,
		`UPDATE quiz_attempts SET ended_at=$1, score=$2, passed=$3 WHERE id=$4`,
		now, score, passed, a.ID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}

	a.EndedAt = &now
	a.Score = &score
	a.Passed = passed
	if q.LectureID != "" {
		if err := s.prog.NoteQuizOutcome(ctx, a.EnrollmentID, q.LectureID, score, passed, a.AttemptNumber); err != nil {
			return Attempt{}, err
		}
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, quiz_id, student_id, enrollment_id, attempt_number, started_at, ended_at, score, passed
		   FROM quiz_attempts WHERE id=$1`, attemptID)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, question_id, selected_json, text_answer, is_correct, points_earned, needs_review
		   FROM question_responses WHERE attempt_id=$1`, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var qr QuestionResponse
		var selectedJSON string
		var isCorrect sql.NullBool
		if err := rows.Scan(&qr.ID, &qr.AttemptID, &qr.QuestionID, &selectedJSON, &qr.Text,
			&isCorrect, &qr.PointsEarned, &qr.NeedsReview); err != nil {
			return Attempt{}, err
		}
		if err := json.Unmarshal([]byte(selectedJSON), &qr.Selected); err != nil {
			return Attempt{}, err
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			qr.IsCorrect = &v
		}
		a.Responses = append(a.Responses, qr)
	}
	return a, rows.Err()
}

func (s *SQLStore) ListAttempts(ctx context.Context, quizID, studentID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quiz_id, student_id, enrollment_id, attempt_number, started_at, ended_at, score, passed
		   FROM quiz_attempts WHERE quiz_id=$1 AND student_id=$2 ORDER BY attempt_number`,
		quizID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GradeEssayResponse awards points for a manually reviewed response and
// recomputes the attempt score.
func (s *SQLStore) GradeEssayResponse(ctx context.Context, attemptID, questionID string, points float64) (Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !a.Submitted() {
		return Attempt{}, ErrAttemptNotFound
	}
	q, err := s.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}

	var question *Question
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			question = &q.Questions[i]
		}
	}
	if question == nil {
		return Attempt{}, ErrNotGradable
	}
	var target *QuestionResponse
	for i := range a.Responses {
		if a.Responses[i].QuestionID == questionID {
			target = &a.Responses[i]
		}
	}
	if target == nil || !target.NeedsReview {
		return Attempt{}, ErrNotGradable
	}

	if points < 0 {
		points = 0
	}
	if points > question.Points {
		points = question.Points
	}
	correct := points > 0

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE question_responses SET points_earned=$1, is_correct=$2, needs_review=$3 WHERE id=$4`,
		points, correct, false, target.ID); err != nil {
		return Attempt{}, err
	}
	target.PointsEarned = points
	target.IsCorrect = &correct
	target.NeedsReview = false

	var earned float64
	for _, r := range a.Responses {
		earned += r.PointsEarned
	}
	raw := 0.0
	if max := q.MaxPoints(); max > 0 {
		raw = earned / max * 100
	}
	passed := raw >= q.PassingScore
	score := round2(raw)
	if _, err := tx.ExecContext(ctx,
		`UPDATE quiz_attempts SET score=$1, passed=$2 WHERE id=$3`,
		score, passed, a.ID); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}

	a.Score = &score
	wasPassed := a.Passed
	a.Passed = passed
	if passed && !wasPassed && a.AttemptNumber == 1 && q.LectureID != "" {
		if _, err := s.prog.RecordLectureCompletion(ctx, a.EnrollmentID, q.LectureID, progress.MethodQuizPassed); err != nil {
			return Attempt{}, err
		}
	}
	return a, nil
}

func (s *SQLStore) Statistics(ctx context.Context, quizID string) (Statistics, error) {
	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return Statistics{}, err
	}
	st := Statistics{QuizID: quizID}
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, score, passed FROM quiz_attempts
		  WHERE quiz_id=$1 AND ended_at IS NOT NULL`, quizID)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()

	students := map[string]struct{}{}
	var sum float64
	var passedCount int
	for rows.Next() {
		var studentID string
		var score sql.NullFloat64
		var passed bool
		if err := rows.Scan(&studentID, &score, &passed); err != nil {
			return Statistics{}, err
		}
		st.TotalAttempts++
		students[studentID] = struct{}{}
		if score.Valid {
			sum += score.Float64
			if score.Float64 > st.HighestScore {
				st.HighestScore = score.Float64
			}
		}
		if passed {
			passedCount++
		}
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}
	st.UniqueStudents = len(students)
	if st.TotalAttempts > 0 {
		st.AverageScore = round2(sum / float64(st.TotalAttempts))
		st.PassRate = round2(float64(passedCount) / float64(st.TotalAttempts) * 100)
	}
	return st, nil
}

func toGradingQuestion(q Question) grading.Q {
	gq := grading.Q{Type: q.Type, Points: q.Points, AcceptedAnswers: q.CorrectAnswers}
	for _, o := range q.Options {
		if o.Correct {
			gq.CorrectOptions = append(gq.CorrectOptions, o.ID)
		}
	}
	sort.Strings(gq.CorrectOptions)
	return gq
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row rowScanner) (Quiz, error) {
	var q Quiz
	var lectureID sql.NullString
	var timeLimit sql.NullInt64
	var questionsJSON string
	if err := row.Scan(&q.ID, &q.CourseID, &lectureID, &q.Title, &q.PassingScore, &timeLimit,
		&q.MaxAttempts, &q.Weight, &q.IsActive, &questionsJSON, &q.CreatedAt); err != nil {
		return Quiz{}, err
	}
	q.LectureID = lectureID.String
	if timeLimit.Valid {
		v := int(timeLimit.Int64)
		q.TimeLimitMin = &v
	}
	if err := json.Unmarshal([]byte(questionsJSON), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var endedAt sql.NullInt64
	var score sql.NullFloat64
	if err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.EnrollmentID, &a.AttemptNumber,
		&a.StartedAt, &endedAt, &score, &a.Passed); err != nil {
		return Attempt{}, err
	}
	if endedAt.Valid {
		v := endedAt.Int64
		a.EndedAt = &v
	}
	if score.Valid {
		v := score.Float64
		a.Score = &v
	}
	return a, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIntPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullBoolPtr(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
