package quiz

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/course-hub/coursehub-lms/internal/db"
	"github.com/course-hub/coursehub-lms/internal/grading"
	"github.com/course-hub/coursehub-lms/internal/progress"
)

func newTestStore(t *testing.T) (*SQLStore, *progress.SQLStore, *sql.DB) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	conn, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	prog := progress.NewSQLStore(conn, "sqlite")
	return NewSQLStore(conn, "sqlite", grading.NewDefaultGrader(), prog), prog, conn
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
		VALUES ($1,$2,$3,'Quiz lecture','quiz',0)`, courseID+"-l1", courseID+"-s1", courseID)
}

func mustExec(t *testing.T, conn *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func twoQuestionQuiz(courseID string) Quiz {
	return Quiz{
		CourseID:     courseID,
		LectureID:    courseID + "-l1",
		Title:        "Basics check",
		PassingScore: 60,
		MaxAttempts:  3,
		Weight:       50,
		IsActive:     true,
		Questions: []Question{
			{ID: "q1", Type: grading.TypeMultipleChoice, Prompt: "Pick one", Points: 5,
				Options: []Option{{ID: "a", Text: "right", Correct: true}, {ID: "b", Text: "wrong"}}},
			{ID: "q2", Type: grading.TypeMultipleChoice, Prompt: "Pick another", Points: 5,
				Options: []Option{{ID: "a", Text: "wrong"}, {ID: "b", Text: "right", Correct: true}}},
		},
	}
}

func TestStudentViewStripsAnswerKey(t *testing.T) {
	q := twoQuestionQuiz("c1")
	q.Questions = append(q.Questions, Question{
		ID: "q3", Type: grading.TypeFillBlank, Prompt: "Name it", Points: 5,
		CorrectAnswers: []string{"gopher"},
	})
	v := q.StudentView()
	for _, qu := range v.Questions {
		if qu.CorrectAnswers != nil {
			t.Fatalf("correct answers leaked: %+v", qu)
		}
		for _, o := range qu.Options {
			if o.Correct {
				t.Fatalf("correct flag leaked: %+v", o)
			}
		}
	}
	// the original is untouched
	if !q.Questions[0].Options[0].Correct {
		t.Fatal("StudentView mutated the source quiz")
	}
}

func TestSubmitScoring(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	enr, err := prog.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	q, err := s.PutQuiz(ctx, twoQuestionQuiz("c1"))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	a, err := s.StartAttempt(ctx, q.ID, "stu-1")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if a.AttemptNumber != 1 || a.EnrollmentID != enr.ID {
		t.Fatalf("unexpected attempt: %+v", a)
	}

	// one of two five-point questions correct: 50%, below the 60 passing score
	got, err := s.SubmitAttempt(ctx, a.ID, "stu-1", []ResponseInput{
		{QuestionID: "q1", Selected: []string{"a"}},
		{QuestionID: "q2", Selected: []string{"a"}},
	})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if got.Score == nil || *got.Score != 50 {
		t.Fatalf("score = %v, want 50", got.Score)
	}
	if got.Passed {
		t.Fatal("50 must not pass with passing score 60")
	}
	if len(got.Responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(got.Responses))
	}

	// failed first attempt leaves the lecture open but records the outcome
	sum, err := prog.Progress(ctx, enr.ID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	lp := sum.Lectures[0]
	if lp.IsCompleted || lp.QuizAttempts != 1 || *lp.QuizBestScore != 50 {
		t.Fatalf("unexpected lecture state: %+v", lp)
	}

	if _, err := s.SubmitAttempt(ctx, a.ID, "stu-1", nil); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("want ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitPassDecisionUsesUnroundedScore(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	makeQuiz := func(p1, p2 float64) Quiz {
		return Quiz{
			CourseID: "c1", Title: "Threshold check",
			PassingScore: 60, MaxAttempts: 1, IsActive: true,
			Questions: []Question{
				{ID: "q1", Type: grading.TypeMultipleChoice, Prompt: "Pick one", Points: p1,
					Options: []Option{{ID: "a", Text: "right", Correct: true}, {ID: "b", Text: "wrong"}}},
				{ID: "q2", Type: grading.TypeMultipleChoice, Prompt: "Pick another", Points: p2,
					Options: []Option{{ID: "a", Text: "wrong"}, {ID: "b", Text: "right", Correct: true}}},
			},
		}
	}
	answerFirst := []ResponseInput{{QuestionID: "q1", Selected: []string{"a"}}}

	// 59.996 of 100 points rounds up to a stored 60 but must not pass
	q, err := s.PutQuiz(ctx, makeQuiz(59.996, 40.004))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}
	a, err := s.StartAttempt(ctx, q.ID, "stu-1")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	got, err := s.SubmitAttempt(ctx, a.ID, "stu-1", answerFirst)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if *got.Score != 60 {
		t.Fatalf("stored score = %v, want 60", *got.Score)
	}
	if got.Passed {
		t.Fatal("raw 59.996 must not pass with passing score 60")
	}

	// exactly 60 passes
	q, err = s.PutQuiz(ctx, makeQuiz(60, 40))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}
	a, err = s.StartAttempt(ctx, q.ID, "stu-1")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	got, err = s.SubmitAttempt(ctx, a.ID, "stu-1", answerFirst)
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if *got.Score != 60 || !got.Passed {
		t.Fatalf("raw 60 should pass, got %+v", got)
	}
}

func TestSubmitPassedFirstAttemptCompletesLecture(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	enr, err := prog.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	q, err := s.PutQuiz(ctx, twoQuestionQuiz("c1"))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	a, _ := s.StartAttempt(ctx, q.ID, "stu-1")
	got, err := s.SubmitAttempt(ctx, a.ID, "stu-1", []ResponseInput{
		{QuestionID: "q1", Selected: []string{"a"}},
		{QuestionID: "q2", Selected: []string{"b"}},
	})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if *got.Score != 100 || !got.Passed {
		t.Fatalf("want passed 100, got %+v", got)
	}

	sum, _ := prog.Progress(ctx, enr.ID)
	lp := sum.Lectures[0]
	if !lp.IsCompleted || lp.CompletionMethod != progress.MethodQuizPassed {
		t.Fatalf("lecture not completed by passed first attempt: %+v", lp)
	}
}

func TestAttemptLimit(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	quiz := twoQuestionQuiz("c1")
	quiz.MaxAttempts = 2
	q, err := s.PutQuiz(ctx, quiz)
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	for want := 1; want <= 2; want++ {
		a, err := s.StartAttempt(ctx, q.ID, "stu-1")
		if err != nil {
			t.Fatalf("StartAttempt %d: %v", want, err)
		}
		if a.AttemptNumber != want {
			t.Fatalf("attempt number = %d, want %d", a.AttemptNumber, want)
		}
		if _, err := s.SubmitAttempt(ctx, a.ID, "stu-1", nil); err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
	}
	if _, err := s.StartAttempt(ctx, q.ID, "stu-1"); !errors.Is(err, ErrAttemptLimit) {
		t.Fatalf("want ErrAttemptLimit, got %v", err)
	}
}

func TestStartAttemptConcurrentRespectsLimit(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	quiz := twoQuestionQuiz("c1")
	quiz.MaxAttempts = 1
	q, err := s.PutQuiz(ctx, quiz)
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.StartAttempt(ctx, q.ID, "stu-1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for i, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrAttemptLimit):
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful starts = %d, want 1", ok)
	}
}

func TestStartAttemptGuards(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")

	q, err := s.PutQuiz(ctx, twoQuestionQuiz("c1"))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}
	if _, err := s.StartAttempt(ctx, q.ID, "stu-1"); !errors.Is(err, progress.ErrNotEnrolled) {
		t.Fatalf("want ErrNotEnrolled, got %v", err)
	}

	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	q.IsActive = false
	if _, err := s.PutQuiz(ctx, q); err != nil {
		t.Fatalf("PutQuiz update: %v", err)
	}
	if _, err := s.StartAttempt(ctx, q.ID, "stu-1"); !errors.Is(err, ErrQuizUnavailable) {
		t.Fatalf("want ErrQuizUnavailable, got %v", err)
	}
}

func TestTimeLimit(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	quiz := twoQuestionQuiz("c1")
	limit := 10
	quiz.TimeLimitMin = &limit
	q, err := s.PutQuiz(ctx, quiz)
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	a, err := s.StartAttempt(ctx, q.ID, "stu-1")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	// backdate the attempt past the limit
	mustExec(t, conn, `UPDATE quiz_attempts SET started_at=$1 WHERE id=$2`,
		time.Now().Unix()-11*60, a.ID)

	if _, err := s.SubmitAttempt(ctx, a.ID, "stu-1", nil); !errors.Is(err, ErrTimeLimit) {
		t.Fatalf("want ErrTimeLimit, got %v", err)
	}
}

func TestEssayManualGrading(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	enr, err := prog.Enroll(ctx, "stu-1", "c1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	q, err := s.PutQuiz(ctx, Quiz{
		CourseID: "c1", LectureID: "c1-l1", Title: "Essay quiz",
		PassingScore: 60, MaxAttempts: 3, IsActive: true,
		Questions: []Question{
			{ID: "q1", Type: grading.TypeMultipleChoice, Points: 5,
				Options: []Option{{ID: "a", Correct: true}, {ID: "b"}}},
			{ID: "q2", Type: grading.TypeEssay, Prompt: "Discuss", Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	a, _ := s.StartAttempt(ctx, q.ID, "stu-1")
	got, err := s.SubmitAttempt(ctx, a.ID, "stu-1", []ResponseInput{
		{QuestionID: "q1", Selected: []string{"a"}},
		{QuestionID: "q2", Text: "Channels share memory by communicating."},
	})
	if err != nil {
		t.Fatalf("SubmitAttempt: %v", err)
	}
	if *got.Score != 50 || got.Passed {
		t.Fatalf("essay must not auto-grade: %+v", got)
	}

	graded, err := s.GradeEssayResponse(ctx, a.ID, "q2", 5)
	if err != nil {
		t.Fatalf("GradeEssayResponse: %v", err)
	}
	if *graded.Score != 100 || !graded.Passed {
		t.Fatalf("want passed 100 after manual grade, got %+v", graded)
	}

	// manual pass of the first attempt completes the lecture
	sum, _ := prog.Progress(ctx, enr.ID)
	if !sum.Lectures[0].IsCompleted {
		t.Fatalf("lecture not completed after manual grade: %+v", sum.Lectures[0])
	}

	if _, err := s.GradeEssayResponse(ctx, a.ID, "q1", 5); !errors.Is(err, ErrNotGradable) {
		t.Fatalf("want ErrNotGradable for auto-graded question, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	s, prog, conn := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, conn, "c1", "stu-1")
	now := time.Now().Unix()
	mustExec(t, conn, `INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		VALUES ('stu-2','stu-2','x','student',0,$1)`, now)
	if _, err := prog.Enroll(ctx, "stu-1", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if _, err := prog.Enroll(ctx, "stu-2", "c1"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	q, err := s.PutQuiz(ctx, twoQuestionQuiz("c1"))
	if err != nil {
		t.Fatalf("PutQuiz: %v", err)
	}

	submit := func(student string, answers []ResponseInput) {
		a, err := s.StartAttempt(ctx, q.ID, student)
		if err != nil {
			t.Fatalf("StartAttempt: %v", err)
		}
		if _, err := s.SubmitAttempt(ctx, a.ID, student, answers); err != nil {
			t.Fatalf("SubmitAttempt: %v", err)
		}
	}
	submit("stu-1", []ResponseInput{{QuestionID: "q1", Selected: []string{"a"}}, {QuestionID: "q2", Selected: []string{"b"}}}) // 100
	submit("stu-2", []ResponseInput{{QuestionID: "q1", Selected: []string{"a"}}})                                             // 50

	st, err := s.Statistics(ctx, q.ID)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.TotalAttempts != 2 || st.UniqueStudents != 2 {
		t.Fatalf("counts: %+v", st)
	}
	if st.AverageScore != 75 || st.HighestScore != 100 || st.PassRate != 50 {
		t.Fatalf("aggregates: %+v", st)
	}
}
