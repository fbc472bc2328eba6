package progress

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/course-hub/coursehub-lms/internal/db"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewSQLStore(conn, "sqlite")
}

func seedUser(t *testing.T, s *SQLStore, id string, plus bool) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		 VALUES ($1,$2,'x','student',$3,$4)`,
		id, id, plus, time.Now().Unix())
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedCourse(t *testing.T, s *SQLStore, id, status, courseType string, lectures int) {
	t.Helper()
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO courses (id, title, status, course_type, created_by, created_at)
		 VALUES ($1,$2,$3,$4,'inst-1',$5)`,
		id, "Course "+id, status, courseType, now)
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	secID := id + "-s1"
	if _, err := s.db.Exec(
		`INSERT INTO sections (id, course_id, title, position) VALUES ($1,$2,'Week 1',0)`,
		secID, id); err != nil {
		t.Fatalf("seed section: %v", err)
	}
	for i := 0; i < lectures; i++ {
		if _, err := s.db.Exec(
			`INSERT INTO lectures (id, section_id, course_id, title, content_type, position)
			 VALUES ($1,$2,$3,$4,'video',$5)`,
			fmt.Sprintf("%s-l%d", id, i+1), secID, id, fmt.Sprintf("Lecture %d", i+1), i); err != nil {
			t.Fatalf("seed lecture: %v", err)
		}
	}
}

func TestEnroll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 2)

	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if e.Status != StatusActive || e.ProgressPct != 0 {
		t.Fatalf("unexpected enrollment: %+v", e)
	}

	if _, err := s.Enroll(ctx, "stu-1", "c1"); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("want ErrAlreadyEnrolled, got %v", err)
	}
}

func TestEnrollConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 1)

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Enroll(ctx, "stu-1", "c1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrAlreadyEnrolled):
			t.Fatalf("enroll %d: %v", i, err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful enrollments = %d, want 1", ok)
	}
}

func TestEnrollUnpublishedCourse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "draft", "free", 1)

	if _, err := s.Enroll(ctx, "stu-1", "c1"); !errors.Is(err, ErrCourseUnavailable) {
		t.Fatalf("want ErrCourseUnavailable, got %v", err)
	}
	if _, err := s.Enroll(ctx, "stu-1", "missing"); !errors.Is(err, ErrCourseUnavailable) {
		t.Fatalf("want ErrCourseUnavailable for unknown course, got %v", err)
	}
}

func TestEnrollPlusCourse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "free-stu", false)
	seedUser(t, s, "plus-stu", true)
	seedCourse(t, s, "c1", "published", "plus", 1)

	if _, err := s.Enroll(ctx, "free-stu", "c1"); !errors.Is(err, ErrPlusRequired) {
		t.Fatalf("want ErrPlusRequired, got %v", err)
	}
	if _, err := s.Enroll(ctx, "plus-stu", "c1"); err != nil {
		t.Fatalf("plus subscriber should enroll: %v", err)
	}
}

func TestRecordLectureCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 4)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	got, err := s.RecordLectureCompletion(ctx, e.ID, "c1-l1", MethodManual)
	if err != nil {
		t.Fatalf("RecordLectureCompletion: %v", err)
	}
	if got.ProgressPct != 25 {
		t.Fatalf("progress = %v, want 25", got.ProgressPct)
	}

	// marking the same lecture again is a no-op
	got, err = s.RecordLectureCompletion(ctx, e.ID, "c1-l1", MethodManual)
	if err != nil {
		t.Fatalf("repeat completion: %v", err)
	}
	if got.ProgressPct != 25 {
		t.Fatalf("repeat progress = %v, want 25", got.ProgressPct)
	}

	if _, err := s.RecordLectureCompletion(ctx, e.ID, "other-lecture", MethodManual); !errors.Is(err, ErrLectureNotFound) {
		t.Fatalf("want ErrLectureNotFound, got %v", err)
	}
	if _, err := s.RecordLectureCompletion(ctx, "no-such-enrollment", "c1-l1", MethodManual); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled, got %v", err)
	}
}

func TestProgressRounding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 3)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	got, err := s.RecordLectureCompletion(ctx, e.ID, "c1-l1", MethodManual)
	if err != nil {
		t.Fatalf("RecordLectureCompletion: %v", err)
	}
	if got.ProgressPct != 33.33 {
		t.Fatalf("progress = %v, want 33.33", got.ProgressPct)
	}
	got, err = s.RecordLectureCompletion(ctx, e.ID, "c1-l2", MethodManual)
	if err != nil {
		t.Fatalf("RecordLectureCompletion: %v", err)
	}
	if got.ProgressPct != 66.67 {
		t.Fatalf("progress = %v, want 66.67", got.ProgressPct)
	}
}

func TestCourseCompletionTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 2)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if _, err := s.RecordLectureCompletion(ctx, e.ID, "c1-l1", MethodVideoWatched); err != nil {
		t.Fatalf("first lecture: %v", err)
	}
	got, err := s.RecordLectureCompletion(ctx, e.ID, "c1-l2", MethodVideoWatched)
	if err != nil {
		t.Fatalf("second lecture: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.ProgressPct != 100 {
		t.Fatalf("progress = %v, want 100", got.ProgressPct)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestRecordWatchProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 2)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if err := s.RecordWatchProgress(ctx, e.ID, "c1-l1", 120, 60); err != nil {
		t.Fatalf("RecordWatchProgress: %v", err)
	}
	if err := s.RecordWatchProgress(ctx, e.ID, "c1-l1", 300, 90); err != nil {
		t.Fatalf("RecordWatchProgress: %v", err)
	}

	sum, err := s.Progress(ctx, e.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if len(sum.Lectures) != 1 {
		t.Fatalf("lecture rows = %d, want 1", len(sum.Lectures))
	}
	lp := sum.Lectures[0]
	if lp.LastPosition != 300 || lp.WatchSeconds != 150 || lp.WatchCount != 2 {
		t.Fatalf("unexpected watch state: %+v", lp)
	}
	if lp.IsCompleted {
		t.Fatal("watch progress alone must not complete a lecture")
	}
}

func TestNoteQuizOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 2)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	// failed first attempt records state but does not complete
	if err := s.NoteQuizOutcome(ctx, e.ID, "c1-l1", 40, false, 1); err != nil {
		t.Fatalf("NoteQuizOutcome: %v", err)
	}
	sum, err := s.Progress(ctx, e.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if sum.Lectures[0].IsCompleted {
		t.Fatal("failed attempt must not complete lecture")
	}
	if sum.Lectures[0].QuizAttempts != 1 || *sum.Lectures[0].QuizBestScore != 40 {
		t.Fatalf("unexpected quiz state: %+v", sum.Lectures[0])
	}

	// passed retry does not complete either, only a passed first attempt does
	if err := s.NoteQuizOutcome(ctx, e.ID, "c1-l1", 90, true, 2); err != nil {
		t.Fatalf("NoteQuizOutcome: %v", err)
	}
	sum, _ = s.Progress(ctx, e.ID)
	if sum.Lectures[0].IsCompleted {
		t.Fatal("passed retry must not complete lecture")
	}
	if *sum.Lectures[0].QuizBestScore != 90 {
		t.Fatalf("best score = %v, want 90", *sum.Lectures[0].QuizBestScore)
	}

	if err := s.NoteQuizOutcome(ctx, e.ID, "c1-l2", 80, true, 1); err != nil {
		t.Fatalf("NoteQuizOutcome: %v", err)
	}
	sum, _ = s.Progress(ctx, e.ID)
	for _, lp := range sum.Lectures {
		if lp.LectureID == "c1-l2" {
			if !lp.IsCompleted || lp.CompletionMethod != MethodQuizPassed {
				t.Fatalf("passed first attempt should complete lecture: %+v", lp)
			}
		}
	}
}

func TestNoteAssignmentOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 2)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if err := s.NoteAssignmentOutcome(ctx, e.ID, "c1-l1", nil, false); err != nil {
		t.Fatalf("NoteAssignmentOutcome: %v", err)
	}
	sum, _ := s.Progress(ctx, e.ID)
	if !sum.Lectures[0].AssignmentSubmitted || sum.Lectures[0].IsCompleted {
		t.Fatalf("submission should be recorded without completion: %+v", sum.Lectures[0])
	}

	g := 85.0
	if err := s.NoteAssignmentOutcome(ctx, e.ID, "c1-l1", &g, true); err != nil {
		t.Fatalf("NoteAssignmentOutcome: %v", err)
	}
	sum, _ = s.Progress(ctx, e.ID)
	lp := sum.Lectures[0]
	if !lp.IsCompleted || lp.CompletionMethod != MethodAssignmentGraded {
		t.Fatalf("passing grade should complete lecture: %+v", lp)
	}
	if lp.AssignmentGrade == nil || *lp.AssignmentGrade != 85 {
		t.Fatalf("assignment grade not stored: %+v", lp)
	}
}

func TestProgressSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "stu-1", false)
	seedCourse(t, s, "c1", "published", "free", 3)
	e, err := s.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if _, err := s.RecordLectureCompletion(ctx, e.ID, "c1-l1", MethodManual); err != nil {
		t.Fatalf("RecordLectureCompletion: %v", err)
	}

	sum, err := s.Progress(ctx, e.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if sum.LecturesTotal != 3 || sum.LecturesCompleted != 1 {
		t.Fatalf("counts = %d/%d, want 1/3", sum.LecturesCompleted, sum.LecturesTotal)
	}

	if _, err := s.Progress(ctx, "nope"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled, got %v", err)
	}
}
