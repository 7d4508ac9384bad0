package Slack

import (
	"fmt"
	"log"
	"strings"
	"time"

	"Voltway/Models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DigestTask posts a daily dispatch summary to the operations channel:
// bookings waiting for an agent, live jobs per service line, escalations
// and mail that gave up retrying.
type DigestTask struct {
	db            *gorm.DB
	client        *Client
	cronScheduler *cron.Cron
}

func NewDigestTask(db *gorm.DB, client *Client) *DigestTask {
	return &DigestTask{
		db:            db,
		client:        client,
		cronScheduler: cron.New(cron.WithSeconds()),
	}
}

// Start schedules the digest every morning at 06:00.
func (d *DigestTask) Start() error {
	_, err := d.cronScheduler.AddFunc("0 0 6 * * *", func() {
		d.PostDigest()
	})
	if err != nil {
		return fmt.Errorf("error scheduling slack digest: %w", err)
	}
	d.cronScheduler.Start()
	log.Println("Slack digest started - posting daily at 06:00")
	return nil
}

func (d *DigestTask) Stop() {
	if d.cronScheduler != nil {
		d.cronScheduler.Stop()
	}
}

// PostDigest builds and posts the summary. Exported so operators can
// trigger one on demand.
func (d *DigestTask) PostDigest() {
	message, err := d.BuildDigest()
	if err != nil {
		log.Printf("Slack digest: failed to build summary: %v", err)
		return
	}
	if err := d.client.Post(message); err != nil {
		log.Printf("Slack digest: post failed: %v", err)
	}
}

// BuildDigest assembles the dispatch summary message.
func (d *DigestTask) BuildDigest() (string, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("*Dispatch digest - %s*\n", time.Now().Format("January 2, 2006")))

	lines := []Models.ServiceLine{Models.ValetCharging, Models.PortableCharger, Models.Roadside}
	terminal := []Models.Status{
		Models.StatusWorkComplete,
		Models.StatusReturnedToDepot,
		Models.StatusClosed,
		Models.StatusCancelled,
	}

	for _, line := range lines {
		var waiting, live int64
		if err := d.db.Model(&Models.Booking{}).
			Where("service_line = ? AND status IN ? AND agent_id IS NULL",
				line, []Models.Status{Models.StatusDraft, Models.StatusConfirmed}).
			Count(&waiting).Error; err != nil {
			return "", err
		}
		if err := d.db.Model(&Models.Booking{}).
			Where("service_line = ? AND agent_id IS NOT NULL AND status NOT IN ?", line, terminal).
			Count(&live).Error; err != nil {
			return "", err
		}
		b.WriteString(fmt.Sprintf("• %s: %d waiting for dispatch, %d live\n", line, waiting, live))
	}

	var escalated int64
	if err := d.db.Model(&Models.Booking{}).
		Where("status = ?", Models.StatusEscalated).
		Count(&escalated).Error; err != nil {
		return "", err
	}
	if escalated > 0 {
		b.WriteString(fmt.Sprintf(":rotating_light: %d roadside job(s) escalated\n", escalated))
	}

	var staleOffers int64
	if err := d.db.Model(&Models.Assignment{}).
		Where("status = ? AND created_at < ?", Models.AssignmentPending, time.Now().Add(-2*time.Hour)).
		Count(&staleOffers).Error; err != nil {
		return "", err
	}
	if staleOffers > 0 {
		b.WriteString(fmt.Sprintf(":hourglass: %d offer(s) pending for over 2 hours\n", staleOffers))
	}

	var deadMail int64
	if err := d.db.Model(&Models.QueuedEmail{}).
		Where("sent = ? AND attempts >= ?", false, 5).
		Count(&deadMail).Error; err != nil {
		return "", err
	}
	if deadMail > 0 {
		b.WriteString(fmt.Sprintf(":email: %d invoice mail(s) gave up retrying\n", deadMail))
	}

	return b.String(), nil
}
