package gradebook

import (
	"context"
	"database/sql"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// StudentCourseGrade aggregates a student's weighted grade in a course. A nil
// grade means the student has no active enrollment there.
//
// Work without a grade on file keeps its weight in the denominator and
// contributes nothing to the numerator, so a fresh enrollment starts at 0 and
// climbs as work is graded.
func (s *SQLStore) StudentCourseGrade(ctx context.Context, studentID, courseID string) (*CourseGrade, error) {
	var enrolled bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id=$1 AND course_id=$2 AND status='active')`,
		studentID, courseID).Scan(&enrolled); err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, nil
	}

	var components []Component
	var totalWeight, weightedSum float64

	ac, err := s.assignmentComponent(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if ac.Weight > 0 {
		components = append(components, ac)
		totalWeight += ac.Weight
		weightedSum += ac.Score * ac.Weight
	}

	qc, err := s.quizComponent(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if qc.Weight > 0 {
		components = append(components, qc)
		totalWeight += qc.Weight
		weightedSum += qc.Score * qc.Weight
	}

	final := 0.0
	if totalWeight > 0 {
		final = round2(weightedSum / totalWeight)
	}
	return &CourseGrade{
		FinalGrade:  final,
		LetterGrade: LetterGrade(final),
		Components:  components,
		TotalWeight: totalWeight,
		IsPassing:   final >= PassingThreshold,
	}, nil
}

func (s *SQLStore) assignmentComponent(ctx context.Context, studentID, courseID string) (Component, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.max_points, a.weight, sub.grade
		   FROM assignments a
		   LEFT JOIN assignment_submissions sub
		     ON sub.assignment_id = a.id AND sub.student_id = $1 AND NOT sub.superseded
		  WHERE a.course_id = $2 AND a.is_active`, studentID, courseID)
	if err != nil {
		return Component{}, err
	}
	defer rows.Close()

	c := Component{Type: "assignments"}
	var score, weight float64
	for rows.Next() {
		var maxPoints, w float64
		var grade sql.NullFloat64
		if err := rows.Scan(&maxPoints, &w, &grade); err != nil {
			return Component{}, err
		}
		c.Total++
		weight += w
		if grade.Valid && maxPoints > 0 {
			score += grade.Float64 / maxPoints * 100 * w
			c.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return Component{}, err
	}
	if weight > 0 {
		c.Score = score / weight
		c.Weight = weight
	}
	return c, nil
}

func (s *SQLStore) quizComponent(ctx context.Context, studentID, courseID string) (Component, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.weight, MAX(at.score)
		   FROM quizzes q
		   LEFT JOIN quiz_attempts at
		     ON at.quiz_id = q.id AND at.student_id = $1 AND at.ended_at IS NOT NULL
		  WHERE q.course_id = $2 AND q.is_active
		  GROUP BY q.id, q.weight`, studentID, courseID)
	if err != nil {
		return Component{}, err
	}
	defer rows.Close()

	c := Component{Type: "quizzes"}
	var score, weight float64
	for rows.Next() {
		var w float64
		var best sql.NullFloat64
		if err := rows.Scan(&w, &best); err != nil {
			return Component{}, err
		}
		c.Total++
		weight += w
		if best.Valid {
			score += best.Float64 * w
			c.Completed++
		}
	}
	if err := rows.Err(); err != nil {
		return Component{}, err
	}
	if weight > 0 {
		c.Score = score / weight
		c.Weight = weight
	}
	return c, nil
}

// CourseStatistics computes grade statistics across a course's active
// students. Returns nil when nobody is enrolled.
func (s *SQLStore) CourseStatistics(ctx context.Context, courseID string) (*CourseStatistics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM enrollments WHERE course_id=$1 AND status='active'`, courseID)
	if err != nil {
		return nil, err
	}
	var students []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		students = append(students, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, nil
	}

	st := &CourseStatistics{
		Distribution: map[string]int{"A": 0, "B": 0, "C": 0, "D": 0, "F": 0},
		LowestGrade:  101,
	}
	var sum float64
	for _, studentID := range students {
		g, err := s.StudentCourseGrade(ctx, studentID, courseID)
		if err != nil {
			return nil, err
		}
		if g == nil {
			continue
		}
		st.TotalStudents++
		sum += g.FinalGrade
		if g.FinalGrade > st.HighestGrade {
			st.HighestGrade = g.FinalGrade
		}
		if g.FinalGrade < st.LowestGrade {
			st.LowestGrade = g.FinalGrade
		}
		if g.IsPassing {
			st.PassingStudents++
		} else {
			st.FailingStudents++
		}
		st.Distribution[letterFamily(g.FinalGrade)]++
	}
	if st.TotalStudents == 0 {
		return nil, nil
	}
	st.AverageGrade = round2(sum / float64(st.TotalStudents))
	return st, nil
}

// StudentGradebook lists a student's grades across all active enrollments.
func (s *SQLStore) StudentGradebook(ctx context.Context, studentID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.course_id, c.title, e.enrolled_at, e.progress_percentage
		   FROM enrollments e
		   JOIN courses c ON c.id = e.course_id
		  WHERE e.student_id=$1 AND e.status='active'
		  ORDER BY e.enrolled_at`, studentID)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CourseID, &e.CourseTitle, &e.EnrolledAt, &e.ProgressPct); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		g, err := s.StudentCourseGrade(ctx, studentID, entries[i].CourseID)
		if err != nil {
			return nil, err
		}
		if g != nil {
			entries[i].CourseGrade = *g
		}
	}
	return entries, nil
}

// RefreshCourseStats recomputes the course_stats rollup for every published
// course. The scheduler runs it periodically so instructor dashboards read a
// cheap snapshot instead of recomputing per request.
func (s *SQLStore) RefreshCourseStats(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM courses WHERE status='published'`)
	if err != nil {
		return err
	}
	var courses []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		courses = append(courses, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, courseID := range courses {
		st, err := s.CourseStatistics(ctx, courseID)
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO course_stats (course_id, total_students, average_grade, highest_grade,
			        lowest_grade, passing_students, failing_students, refreshed_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			 ON CONFLICT (course_id) DO UPDATE SET
			        total_students=EXCLUDED.total_students,
			        average_grade=EXCLUDED.average_grade,
			        highest_grade=EXCLUDED.highest_grade,
			        lowest_grade=EXCLUDED.lowest_grade,
			        passing_students=EXCLUDED.passing_students,
			        failing_students=EXCLUDED.failing_students,
			        refreshed_at=EXCLUDED.refreshed_at`,
			courseID, st.TotalStudents, st.AverageGrade, st.HighestGrade,
			st.LowestGrade, st.PassingStudents, st.FailingStudents, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// CachedCourseStats reads the last rollup written by RefreshCourseStats.
func (s *SQLStore) CachedCourseStats(ctx context.Context, courseID string) (*CourseStatistics, int64, error) {
	st := &CourseStatistics{}
	var refreshedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT total_students, average_grade, highest_grade, lowest_grade,
		        passing_students, failing_students, refreshed_at
		   FROM course_stats WHERE course_id=$1`, courseID).
		Scan(&st.TotalStudents, &st.AverageGrade, &st.HighestGrade, &st.LowestGrade,
			&st.PassingStudents, &st.FailingStudents, &refreshedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	return st, refreshedAt, nil
}
