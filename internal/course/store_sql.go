package course

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCourseNotFound  = errors.New("course not found")
	ErrSectionNotFound = errors.New("section not found")
	ErrLectureNotFound = errors.New("lecture not found")
	ErrBadStatus       = errors.New("unknown course status")
)

type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) Create(ctx context.Context, title, courseType, creatorID string) (Course, error) {
	if courseType != TypePlus {
		courseType = TypeFree
	}
	c := Course{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    StatusDraft,
		Type:      courseType,
		CreatedBy: creatorID,
		CreatedAt: time.Now().Unix(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Course{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courses (id, title, status, course_type, created_by, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.Title, c.Status, c.Type, c.CreatedBy, c.CreatedAt); err != nil {
		return Course{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO course_instructors (course_id, instructor_id, role) VALUES ($1,$2,'owner')`,
		c.ID, creatorID); err != nil {
		return Course{}, err
	}
	return c, tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, courseID string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, course_type, created_by, created_at FROM courses WHERE id=$1`,
		courseID).Scan(&c.ID, &c.Title, &c.Status, &c.Type, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrCourseNotFound
	}
	return c, err
}

// List returns published courses; instructors and admins pass all=true to
// include drafts.
func (s *SQLStore) List(ctx context.Context, all bool) ([]Course, error) {
	q := `SELECT id, title, status, course_type, created_by, created_at FROM courses`
	if !all {
		q += ` WHERE status='published'`
	}
	q += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Title, &c.Status, &c.Type, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetStatus(ctx context.Context, courseID, status string) error {
	switch status {
	case StatusDraft, StatusPublished, StatusUnpublished:
	default:
		return ErrBadStatus
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE courses SET status=$1 WHERE id=$2`, status, courseID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCourseNotFound
	}
	return nil
}

// IsInstructor reports whether the user owns or co-teaches the course.
func (s *SQLStore) IsInstructor(ctx context.Context, courseID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM course_instructors WHERE course_id=$1 AND instructor_id=$2)`,
		courseID, userID).Scan(&ok)
	return ok, err
}

func (s *SQLStore) AddInstructor(ctx context.Context, courseID, userID, role string) error {
	if role != "owner" {
		role = "co"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO course_instructors (course_id, instructor_id, role) VALUES ($1,$2,$3)
		 ON CONFLICT (course_id, instructor_id) DO NOTHING`,
		courseID, userID, role)
	return err
}

func (s *SQLStore) AddSection(ctx context.Context, courseID, title string, position int) (Section, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return Section{}, err
	}
	sec := Section{ID: uuid.NewString(), CourseID: courseID, Title: title, Position: position}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sections (id, course_id, title, position) VALUES ($1,$2,$3,$4)`,
		sec.ID, sec.CourseID, sec.Title, sec.Position)
	return sec, err
}

// SectionCourse resolves the course a section belongs to.
func (s *SQLStore) SectionCourse(ctx context.Context, sectionID string) (string, error) {
	var courseID string
	err := s.db.QueryRowContext(ctx,
		`SELECT course_id FROM sections WHERE id=$1`, sectionID).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSectionNotFound
	}
	return courseID, err
}

func (s *SQLStore) AddLecture(ctx context.Context, sectionID, title, contentType string, position int) (Lecture, error) {
	var courseID string
	err := s.db.QueryRowContext(ctx,
		`SELECT course_id FROM sections WHERE id=$1`, sectionID).Scan(&courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lecture{}, ErrSectionNotFound
		}
		return Lecture{}, err
	}
	switch contentType {
	case ContentVideo, ContentReading, ContentQuiz, ContentAssignment:
	default:
		contentType = ContentReading
	}
	l := Lecture{
		ID:          uuid.NewString(),
		SectionID:   sectionID,
		CourseID:    courseID,
		Title:       title,
		ContentType: contentType,
		Position:    position,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lectures (id, section_id, course_id, title, content_type, position)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.SectionID, l.CourseID, l.Title, l.ContentType, l.Position)
	return l, err
}

func (s *SQLStore) GetLecture(ctx context.Context, lectureID string) (Lecture, error) {
	var l Lecture
	err := s.db.QueryRowContext(ctx,
		`SELECT id, section_id, course_id, title, content_type, position FROM lectures WHERE id=$1`,
		lectureID).Scan(&l.ID, &l.SectionID, &l.CourseID, &l.Title, &l.ContentType, &l.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return Lecture{}, ErrLectureNotFound
	}
	return l, err
}

// Outline returns the course's sections with their lectures in position
// order.
func (s *SQLStore) Outline(ctx context.Context, courseID string) ([]Section, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, title, position FROM sections
		  WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, err
	}
	var sections []Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.CourseID, &sec.Title, &sec.Position); err != nil {
			rows.Close()
			return nil, err
		}
		sections = append(sections, sec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lrows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, course_id, title, content_type, position FROM lectures
		  WHERE course_id=$1 ORDER BY position, id`, courseID)
	if err != nil {
		return nil, err
	}
	defer lrows.Close()
	bySection := map[string][]Lecture{}
	for lrows.Next() {
		var l Lecture
		if err := lrows.Scan(&l.ID, &l.SectionID, &l.CourseID, &l.Title, &l.ContentType, &l.Position); err != nil {
			return nil, err
		}
		bySection[l.SectionID] = append(bySection[l.SectionID], l)
	}
	if err := lrows.Err(); err != nil {
		return nil, err
	}
	for i := range sections {
		sections[i].Lectures = bySection[sections[i].ID]
	}
	return sections, nil
}
