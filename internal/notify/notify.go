package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Event types recorded in the outbox and the event log.
const (
	EventEnrolled          = "Enrolled"
	EventCourseCompleted   = "CourseCompleted"
	EventQuizGraded        = "QuizGraded"
	EventAssignmentGraded  = "AssignmentGraded"
	EventSubmissionArrived = "SubmissionReceived"
)

type Message struct {
	RecipientID string
	EventType   string
	Subject     string
	Body        string
}

// Recorder appends notifications to the outbox and mirrors them into the
// event log. Delivery happens later through the Dispatcher, so request
// handlers never block on a mail provider.
type Recorder struct{ db *sql.DB }

func NewRecorder(db *sql.DB) *Recorder { return &Recorder{db: db} }

func (r *Recorder) Record(ctx context.Context, m Message) error {
	now := time.Now().Unix()
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (recipient_id, event_type, subject, body, status, created_at)
		 VALUES ($1,$2,$3,$4,'pending',$5)`,
		m.RecipientID, m.EventType, m.Subject, m.Body, now); err != nil {
		return err
	}
	data, err := json.Marshal(map[string]string{
		"recipient": m.RecipientID,
		"subject":   m.Subject,
	})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at) VALUES ($1,$2,$3,$4)`,
		m.EventType, m.RecipientID, string(data), now)
	return err
}
