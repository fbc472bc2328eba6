package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:coursehub.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/coursehub?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student', -- student|instructor|admin
  plus_subscriber INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',    -- draft|published|unpublished
  course_type TEXT NOT NULL DEFAULT 'free', -- free|plus
  created_by TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS course_instructors (
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  instructor_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'owner', -- owner|co
  PRIMARY KEY (course_id, instructor_id)
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lectures (
  id TEXT PRIMARY KEY,
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  content_type TEXT NOT NULL, -- video|reading|quiz|assignment
  position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'active', -- active|completed|expired|refunded
  progress_percentage REAL NOT NULL DEFAULT 0,
  enrolled_at INTEGER NOT NULL,
  completed_at INTEGER,
  last_accessed_at INTEGER,
  UNIQUE (student_id, course_id)
);
CREATE INDEX IF NOT EXISTS idx_enrollments_course_status ON enrollments(course_id, status);

CREATE TABLE IF NOT EXISTS lecture_progress (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  lecture_id TEXT NOT NULL REFERENCES lectures(id) ON DELETE CASCADE,
  is_completed INTEGER NOT NULL DEFAULT 0,
  completed_at INTEGER,
  completion_method TEXT NOT NULL DEFAULT '',
  watch_seconds INTEGER NOT NULL DEFAULT 0,
  last_position INTEGER NOT NULL DEFAULT 0,
  watch_count INTEGER NOT NULL DEFAULT 0,
  quiz_attempts INTEGER NOT NULL DEFAULT 0,
  quiz_best_score REAL,
  assignment_submitted INTEGER NOT NULL DEFAULT 0,
  assignment_grade REAL,
  UNIQUE (enrollment_id, lecture_id)
);
CREATE INDEX IF NOT EXISTS idx_lecture_progress_done ON lecture_progress(enrollment_id, is_completed);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  lecture_id TEXT REFERENCES lectures(id) ON DELETE SET NULL,
  title TEXT NOT NULL,
  passing_score REAL NOT NULL DEFAULT 60,
  time_limit_min INTEGER,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  weight REAL NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  questions_json TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  attempt_number INTEGER NOT NULL,
  started_at INTEGER NOT NULL,
  ended_at INTEGER,
  score REAL,
  passed INTEGER NOT NULL DEFAULT 0,
  UNIQUE (quiz_id, student_id, attempt_number)
);
CREATE INDEX IF NOT EXISTS idx_quiz_attempts_student ON quiz_attempts(quiz_id, student_id);

CREATE TABLE IF NOT EXISTS question_responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  selected_json TEXT NOT NULL DEFAULT '[]',
  text_answer TEXT NOT NULL DEFAULT '',
  is_correct INTEGER,            -- NULL until graded (essay)
  points_earned REAL NOT NULL DEFAULT 0,
  needs_review INTEGER NOT NULL DEFAULT 0,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  lecture_id TEXT REFERENCES lectures(id) ON DELETE SET NULL,
  title TEXT NOT NULL,
  instructions TEXT NOT NULL DEFAULT '',
  max_points REAL NOT NULL DEFAULT 100,
  passing_score REAL NOT NULL DEFAULT 60,
  weight REAL NOT NULL DEFAULT 0,
  due_at INTEGER,
  allow_late INTEGER NOT NULL DEFAULT 1,
  late_penalty_percent REAL NOT NULL DEFAULT 10,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assignment_submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  submission_text TEXT NOT NULL DEFAULT '',
  file_key TEXT NOT NULL DEFAULT '',
  file_name TEXT NOT NULL DEFAULT '',
  submitted_at INTEGER NOT NULL,
  is_late INTEGER NOT NULL DEFAULT 0,
  grade REAL,
  feedback TEXT NOT NULL DEFAULT '',
  graded_by TEXT,
  graded_at INTEGER,
  superseded INTEGER NOT NULL DEFAULT 0
);
-- one open submission per (assignment, student); graded history is superseded
CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_open
  ON assignment_submissions(assignment_id, student_id) WHERE superseded=0;

CREATE TABLE IF NOT EXISTS notifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  recipient_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  subject TEXT NOT NULL,
  body TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending', -- pending|sent|failed
  attempts INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  sent_at INTEGER
);

CREATE TABLE IF NOT EXISTS event_log (
  offset INTEGER PRIMARY KEY AUTOINCREMENT,
  typ TEXT NOT NULL,        -- e.g., LectureCompleted, AttemptSubmitted
  key TEXT NOT NULL,        -- natural key: enrollmentID/attemptID/submissionID
  data TEXT NOT NULL,       -- JSON payload
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS course_stats (
  course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
  total_students INTEGER NOT NULL DEFAULT 0,
  average_grade REAL NOT NULL DEFAULT 0,
  highest_grade REAL NOT NULL DEFAULT 0,
  lowest_grade REAL NOT NULL DEFAULT 0,
  passing_students INTEGER NOT NULL DEFAULT 0,
  failing_students INTEGER NOT NULL DEFAULT 0,
  refreshed_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'student',
  plus_subscriber BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  course_type TEXT NOT NULL DEFAULT 'free',
  created_by TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS course_instructors (
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  instructor_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'owner',
  PRIMARY KEY (course_id, instructor_id)
);

CREATE TABLE IF NOT EXISTS sections (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS lectures (
  id TEXT PRIMARY KEY,
  section_id TEXT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  content_type TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  student_id TEXT NOT NULL,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'active',
  progress_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
  enrolled_at BIGINT NOT NULL,
  completed_at BIGINT,
  last_accessed_at BIGINT,
  UNIQUE (student_id, course_id)
);
CREATE INDEX IF NOT EXISTS idx_enrollments_course_status ON enrollments(course_id, status);

CREATE TABLE IF NOT EXISTS lecture_progress (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  lecture_id TEXT NOT NULL REFERENCES lectures(id) ON DELETE CASCADE,
  is_completed BOOLEAN NOT NULL DEFAULT FALSE,
  completed_at BIGINT,
  completion_method TEXT NOT NULL DEFAULT '',
  watch_seconds INTEGER NOT NULL DEFAULT 0,
  last_position INTEGER NOT NULL DEFAULT 0,
  watch_count INTEGER NOT NULL DEFAULT 0,
  quiz_attempts INTEGER NOT NULL DEFAULT 0,
  quiz_best_score DOUBLE PRECISION,
  assignment_submitted BOOLEAN NOT NULL DEFAULT FALSE,
  assignment_grade DOUBLE PRECISION,
  UNIQUE (enrollment_id, lecture_id)
);
CREATE INDEX IF NOT EXISTS idx_lecture_progress_done ON lecture_progress(enrollment_id, is_completed);

CREATE TABLE IF NOT EXISTS quizzes (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  lecture_id TEXT REFERENCES lectures(id) ON DELETE SET NULL,
  title TEXT NOT NULL,
  passing_score DOUBLE PRECISION NOT NULL DEFAULT 60,
  time_limit_min INTEGER,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  questions_json TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  attempt_number INTEGER NOT NULL,
  started_at BIGINT NOT NULL,
  ended_at BIGINT,
  score DOUBLE PRECISION,
  passed BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (quiz_id, student_id, attempt_number)
);
CREATE INDEX IF NOT EXISTS idx_quiz_attempts_student ON quiz_attempts(quiz_id, student_id);

CREATE TABLE IF NOT EXISTS question_responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES quiz_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  selected_json TEXT NOT NULL DEFAULT '[]',
  text_answer TEXT NOT NULL DEFAULT '',
  is_correct BOOLEAN,
  points_earned DOUBLE PRECISION NOT NULL DEFAULT 0,
  needs_review BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS assignments (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  lecture_id TEXT REFERENCES lectures(id) ON DELETE SET NULL,
  title TEXT NOT NULL,
  instructions TEXT NOT NULL DEFAULT '',
  max_points DOUBLE PRECISION NOT NULL DEFAULT 100,
  passing_score DOUBLE PRECISION NOT NULL DEFAULT 60,
  weight DOUBLE PRECISION NOT NULL DEFAULT 0,
  due_at BIGINT,
  allow_late BOOLEAN NOT NULL DEFAULT TRUE,
  late_penalty_percent DOUBLE PRECISION NOT NULL DEFAULT 10,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS assignment_submissions (
  id TEXT PRIMARY KEY,
  assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  submission_text TEXT NOT NULL DEFAULT '',
  file_key TEXT NOT NULL DEFAULT '',
  file_name TEXT NOT NULL DEFAULT '',
  submitted_at BIGINT NOT NULL,
  is_late BOOLEAN NOT NULL DEFAULT FALSE,
  grade DOUBLE PRECISION,
  feedback TEXT NOT NULL DEFAULT '',
  graded_by TEXT,
  graded_at BIGINT,
  superseded BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_open
  ON assignment_submissions(assignment_id, student_id) WHERE NOT superseded;

CREATE TABLE IF NOT EXISTS notifications (
  id BIGSERIAL PRIMARY KEY,
  recipient_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  subject TEXT NOT NULL,
  body TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  sent_at BIGINT
);

CREATE TABLE IF NOT EXISTS event_log (
  "offset" BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS course_stats (
  course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
  total_students INTEGER NOT NULL DEFAULT 0,
  average_grade DOUBLE PRECISION NOT NULL DEFAULT 0,
  highest_grade DOUBLE PRECISION NOT NULL DEFAULT 0,
  lowest_grade DOUBLE PRECISION NOT NULL DEFAULT 0,
  passing_students INTEGER NOT NULL DEFAULT 0,
  failing_students INTEGER NOT NULL DEFAULT 0,
  refreshed_at BIGINT NOT NULL
);
`
