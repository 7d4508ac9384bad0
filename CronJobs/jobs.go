package CronJobs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"Voltway/Models"
	"Voltway/email"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// MailDispatcher flushes the queued_emails table on a schedule, sending
// at most batchSize messages per run. Queuing plus the per-run cap is the
// rate limit: delivery is best-effort and a failed message just waits for
// the next flush.
type MailDispatcher struct {
	db            *gorm.DB
	config        Models.EmailConfig
	cronScheduler *cron.Cron
	batchSize     int
	maxAttempts   int
	jobID         cron.EntryID
}

// NewMailDispatcher creates a dispatcher flushing batchSize mails per run.
func NewMailDispatcher(db *gorm.DB, config Models.EmailConfig, batchSize int) *MailDispatcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &MailDispatcher{
		db:            db,
		config:        config,
		cronScheduler: cron.New(cron.WithSeconds()),
		batchSize:     batchSize,
		maxAttempts:   5,
	}
}

// Start schedules the queue flush every minute.
func (m *MailDispatcher) Start() error {
	var err error
	m.jobID, err = m.cronScheduler.AddFunc("0 * * * * *", func() {
		m.FlushQueue()
	})
	if err != nil {
		return fmt.Errorf("error scheduling mail dispatcher: %w", err)
	}
	m.cronScheduler.Start()
	log.Println("Mail dispatcher started - flushing queue every minute")
	return nil
}

// Stop terminates the dispatcher.
func (m *MailDispatcher) Stop() {
	if m.cronScheduler != nil {
		m.cronScheduler.Stop()
		log.Println("Mail dispatcher stopped")
	}
}

// FlushQueue sends up to batchSize pending mails. Exported so operators
// can trigger an immediate flush.
func (m *MailDispatcher) FlushQueue() {
	var pending []Models.QueuedEmail
	err := m.db.Where("sent = ? AND attempts < ?", false, m.maxAttempts).
		Order("id asc").
		Limit(m.batchSize).
		Find(&pending).Error
	if err != nil {
		log.Printf("Mail dispatcher: failed to read queue: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	for i := range pending {
		queued := &pending[i]
		queued.Attempts++

		message := Models.EmailMessage{
			To:      []string{queued.Recipient},
			Subject: queued.Subject,
			Body:    queued.Body,
			IsHTML:  queued.IsHTML,
		}
		if queued.AttachmentPath != "" {
			if data, err := os.ReadFile(queued.AttachmentPath); err != nil {
				log.Printf("Mail dispatcher: cannot read attachment %s: %v", queued.AttachmentPath, err)
			} else {
				message.Attachments = []Models.Attachment{{
					Filename: filepath.Base(queued.AttachmentPath),
					Data:     data,
				}}
			}
		}

		if err := email.SendEmail(m.config, message); err != nil {
			queued.LastError = err.Error()
			log.Printf("Mail dispatcher: send to %s failed (attempt %d): %v", queued.Recipient, queued.Attempts, err)
		} else {
			queued.Sent = true
			queued.LastError = ""
		}
		if err := m.db.Save(queued).Error; err != nil {
			log.Printf("Mail dispatcher: failed to update queue row %d: %v", queued.ID, err)
		}
	}
}
