package notify

import (
	"context"
	"database/sql"
	"log"
	"time"
)

const maxDeliveryAttempts = 3

// Dispatcher drains the notification outbox. The scheduler calls Flush on an
// interval; a row is retried until it is sent or exhausts its attempts.
type Dispatcher struct {
	db     *sql.DB
	mailer Mailer
	batch  int
}

func NewDispatcher(db *sql.DB, mailer Mailer, batch int) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{db: db, mailer: mailer, batch: batch}
}

type pendingRow struct {
	id       int64
	to       string
	subject  string
	body     string
	attempts int
}

// Flush delivers up to one batch of pending notifications. Returns the number
// delivered.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT n.id, u.username, n.subject, n.body, n.attempts
		   FROM notifications n
		   JOIN users u ON u.id = n.recipient_id
		  WHERE n.status = 'pending'
		  ORDER BY n.id
		  LIMIT $1`, d.batch)
	if err != nil {
		return 0, err
	}
	var pending []pendingRow
	for rows.Next() {
		var p pendingRow
		if err := rows.Scan(&p.id, &p.to, &p.subject, &p.body, &p.attempts); err != nil {
			rows.Close()
			return 0, err
		}
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range pending {
		if err := d.mailer.Send(ctx, p.to, p.subject, p.body); err != nil {
			log.Printf("notify: delivery %d failed (attempt %d): %v", p.id, p.attempts+1, err)
			status := "pending"
			if p.attempts+1 >= maxDeliveryAttempts {
				status = "failed"
			}
			if _, err := d.db.ExecContext(ctx,
				`UPDATE notifications SET attempts=attempts+1, status=$1 WHERE id=$2`,
				status, p.id); err != nil {
				return sent, err
			}
			continue
		}
		if _, err := d.db.ExecContext(ctx,
			`UPDATE notifications SET status='sent', attempts=attempts+1, sent_at=$1 WHERE id=$2`,
			time.Now().Unix(), p.id); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
