package assignment

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/course-hub/coursehub-lms/internal/db"
	"github.com/course-hub/coursehub-lms/internal/progress"
)

type fakeBlobs struct {
	deleted []string
}

func (f *fakeBlobs) Delete(key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestStore(t *testing.T) (*SQLStore, *progress.SQLStore, *sql.DB, *fakeBlobs) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	prog := progress.NewSQLStore(conn, "sqlite")
	blobs := &fakeBlobs{}
	return NewSQLStore(conn, "sqlite", prog, blobs), prog, conn, blobs
}

func seedCourse(t *testing.T, conn *sql.DB, courseID, studentID string) {
	t.Helper()
	now := time.Now().Unix()
	mustExec(t, conn, `INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		VALUES ($1,$2,'x','student',0,$3)`, studentID, studentID, now)
	mustExec(t, conn, `INSERT INTO courses (id, title, status, course_type, created_by, created_at)
		VALUES ($1,'Go 101','published','free','inst-1',$2)`, courseID, now)
	mustExec(t, conn, `INSERT INTO sections (id, course_id, title, position) VALUES ($1,$2,'Week 1',0)`,
		courseID+"-s1", courseID)
	mustExec(t, conn, `INSERT INTO lectures (id, section_id, course_id, title, content_type, position)
		VALUES ($1,$2,$3,'Project','assignment',0)`, courseID+"-l1", courseID+"-s1", courseID)
}

func mustExec(t *testing.T, conn *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func basicAssignment(courseID string) Assignment {
	return Assignment{
		CourseID:           courseID,
		LectureID:          courseID + "-l1",
		Title:              "Final project",
		MaxPoints:          100,
		PassingScore:       60,
		Weight:             50,
		AllowLate:          true,
		LatePenaltyPercent: 10,
		IsActive:           true,
	}
}

func TestValidateFile(t *testing.T) {
	cases := []struct {
		name string
		size int64
		ok   bool
	}{
		{"", 0, true}, // no file attached
		{"report.pdf", 1024, true},
		{"main.py", 1024, true},
		{"demo.mp4", 1024, true},
		{"huge.pdf", MaxFileSize + 1, false},
		{"script.sh", 1024, false},
		{"no-extension", 1024, false},
		{"bad name.pdf", 1024, false},
		{"../escape.pdf", 1024, false},
	}
	for _, tc := range cases {
		err := ValidateFile(tc.name, tc.size)
		if tc.ok && err != nil {
			t.Errorf("ValidateFile(%q, %d) = %v, want nil", tc.name, tc.size, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidateFile(%q, %d) = nil, want error", tc.name, tc.size)
		}
	}
}

func TestSubmitAndResubmitUngraded(t *testing.T) {
	s, prog, conn, blobs := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	enr, err := prog.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	a, err := s.PutAssignment(ctx, basicAssignment("c1"))
	if err != nil {
		t.Fatalf("PutAssignment: %v", err)
	}

	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "draft", FileKey: "blob-1", FileName: "draft.pdf"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.IsLate || sub.Graded() {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	// resubmitting before grading replaces the open submission and discards
	// the previous file
	sub2, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "final", FileKey: "blob-2", FileName: "final.pdf"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub2.ID != sub.ID {
		t.Fatalf("ungraded resubmission must update in place: %s vs %s", sub2.ID, sub.ID)
	}
	if sub2.Text != "final" || sub2.FileKey != "blob-2" {
		t.Fatalf("unexpected resubmission: %+v", sub2)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "blob-1" {
		t.Fatalf("old file not discarded: %v", blobs.deleted)
	}

	all, err := s.ListSubmissions(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("submissions = %d, want 1", len(all))
	}

	sum, _ := prog.Progress(ctx, enr.ID)
	if !sum.Lectures[0].AssignmentSubmitted {
		t.Fatalf("progress not updated: %+v", sum.Lectures[0])
	}
}

func TestResubmitAfterGradingCreatesNewRecord(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	a, _ := s.PutAssignment(ctx, basicAssignment("c1"))

	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "v1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Grade(ctx, sub.ID, "inst-1", 40, "needs work"); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	sub2, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "v2"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub2.ID == sub.ID {
		t.Fatal("graded resubmission must create a new record")
	}
	if sub2.Graded() {
		t.Fatalf("new submission must be ungraded: %+v", sub2)
	}

	old, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if !old.Superseded || *old.Grade != 40 {
		t.Fatalf("graded record must be kept and superseded: %+v", old)
	}

	open, err := s.StudentSubmission(ctx, a.ID, "stu-1")
	if err != nil {
		t.Fatalf("StudentSubmission: %v", err)
	}
	if open.ID != sub2.ID {
		t.Fatalf("open submission = %s, want %s", open.ID, sub2.ID)
	}
}

func TestDeadlines(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	past := time.Now().Add(-time.Hour).Unix()
	strict := basicAssignment("c1")
	strict.DueAt = &past
	strict.AllowLate = false
	sa, _ := s.PutAssignment(ctx, strict)
	if _, err := s.Submit(ctx, sa.ID, "stu-1", SubmissionInput{Text: "late"}); !errors.Is(err, ErrDeadlinePassed) {
		t.Fatalf("want ErrDeadlinePassed, got %v", err)
	}

	lenient := basicAssignment("c1")
	lenient.LectureID = ""
	lenient.DueAt = &past
	la, _ := s.PutAssignment(ctx, lenient)
	sub, err := s.Submit(ctx, la.ID, "stu-1", SubmissionInput{Text: "late"})
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if !sub.IsLate {
		t.Fatal("submission past the deadline must be flagged late")
	}
}

func TestGradeWithLatePenalty(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	enr, err := prog.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	past := time.Now().Add(-time.Hour).Unix()
	a := basicAssignment("c1")
	a.DueAt = &past
	a, _ = s.PutAssignment(ctx, a)

	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "late work"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// 80 points with a 10% late penalty lands at 72
	graded, err := s.Grade(ctx, sub.ID, "inst-1", 80, "good")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if *graded.Grade != 72 {
		t.Fatalf("grade = %v, want 72", *graded.Grade)
	}
	if graded.GradedBy != "inst-1" || graded.Feedback != "good" {
		t.Fatalf("unexpected graded submission: %+v", graded)
	}

	// 72 >= 60% of 100, so the lecture completes
	sum, _ := prog.Progress(ctx, enr.ID)
	lp := sum.Lectures[0]
	if !lp.IsCompleted || lp.CompletionMethod != progress.MethodAssignmentGraded {
		t.Fatalf("lecture not completed: %+v", lp)
	}
	if *lp.AssignmentGrade != 72 {
		t.Fatalf("progress grade = %v, want 72", *lp.AssignmentGrade)
	}

	if _, err := s.Grade(ctx, sub.ID, "inst-1", 90, ""); !errors.Is(err, ErrAlreadyGraded) {
		t.Fatalf("want ErrAlreadyGraded, got %v", err)
	}
	if _, err := s.Grade(ctx, sub.ID, "inst-1", 101, ""); err == nil {
		t.Fatal("grade above max points must be rejected")
	}
}

func TestGradeConcurrentSingleWinner(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	a, _ := s.PutAssignment(ctx, basicAssignment("c1"))
	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "work"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	points := []float64{70, 90}
	errs := make([]error, len(points))
	var wg sync.WaitGroup
	for i := range points {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Grade(ctx, sub.ID, "inst-1", points[i], "")
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner >= 0 {
				t.Fatal("both graders succeeded")
			}
			winner = i
		case !errors.Is(err, ErrAlreadyGraded):
			t.Fatalf("grader %d: %v", i, err)
		}
	}
	if winner < 0 {
		t.Fatalf("no grader succeeded: %v", errs)
	}

	got, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got.Grade == nil || *got.Grade != points[winner] {
		t.Fatalf("grade = %v, want %v", got.Grade, points[winner])
	}
}

func TestGradeOutOfRange(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	a, _ := s.PutAssignment(ctx, basicAssignment("c1"))
	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "work"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Grade(ctx, sub.ID, "inst-1", -1, ""); !errors.Is(err, ErrGradeOutOfRange) {
		t.Fatalf("want ErrGradeOutOfRange, got %v", err)
	}
	if _, err := s.Grade(ctx, sub.ID, "inst-1", 101, ""); !errors.Is(err, ErrGradeOutOfRange) {
		t.Fatalf("want ErrGradeOutOfRange, got %v", err)
	}
}

func TestUnsubmit(t *testing.T) {
	s, prog, conn, blobs := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	a, _ := s.PutAssignment(ctx, basicAssignment("c1"))

	if err := s.Unsubmit(ctx, a.ID, "stu-1"); !errors.Is(err, ErrNothingToUnsubmit) {
		t.Fatalf("want ErrNothingToUnsubmit, got %v", err)
	}

	sub, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "v1", FileKey: "blob-1", FileName: "v1.pdf"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Unsubmit(ctx, a.ID, "stu-1"); err != nil {
		t.Fatalf("Unsubmit: %v", err)
	}
	if _, err := s.StudentSubmission(ctx, a.ID, "stu-1"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("submission should be gone, got %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "blob-1" {
		t.Fatalf("file not discarded: %v", blobs.deleted)
	}

	// graded submissions cannot be withdrawn
	sub, err = s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "v2"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Grade(ctx, sub.ID, "inst-1", 90, ""); err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if err := s.Unsubmit(ctx, a.ID, "stu-1"); !errors.Is(err, ErrUnsubmitAfterGrading) {
		t.Fatalf("want ErrUnsubmitAfterGrading, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	s, prog, conn, _ := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	now := time.Now().Unix()
	mustExec(t, conn, `INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		VALUES ('stu-2','stu-2','x','student',0,$1)`, now)
	mustExec(t, conn, `INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		VALUES ('stu-3','stu-3','x','student',0,$1)`, now)
	for _, id := range []string{"stu-1", "stu-2", "stu-3"} {
		if _, err := prog.Enroll(ctx, id, "c1"); err != nil {
			t.Fatalf("Enroll %s: %v", id, err)
		}
	}
	a, _ := s.PutAssignment(ctx, basicAssignment("c1"))

	s1, err := s.Submit(ctx, a.ID, "stu-1", SubmissionInput{Text: "a"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Submit(ctx, a.ID, "stu-2", SubmissionInput{Text: "b"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := s.Grade(ctx, s1.ID, "inst-1", 90, ""); err != nil {
		t.Fatalf("Grade: %v", err)
	}

	st, err := s.Statistics(ctx, a.ID)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalSubmissions != 2 || st.UniqueStudents != 2 {
		t.Fatalf("counts: %+v", st)
	}
	if st.Graded != 1 || st.PendingGrading != 1 || st.AverageGrade != 90 {
		t.Fatalf("grading: %+v", st)
	}
	// 2 of 3 active enrollments submitted
	if st.SubmissionRate != 66.67 {
		t.Fatalf("submission rate = %v, want 66.67", st.SubmissionRate)
	}
}
