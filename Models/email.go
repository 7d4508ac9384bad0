package Models

import "gorm.io/gorm"

type EmailConfig struct {
	SMTPServer   string
	SMTPPort     int
	Username     string
	Password     string
	FromEmail    string
	FromName     string
	TLSEnabled   bool
	SkipTLSCheck bool
}

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	IsHTML      bool
	Attachments []Attachment
}

// Attachment represents a file attachment
type Attachment struct {
	Filename string
	Data     []byte
	MimeType string
}

// QueuedEmail is an outbound mail waiting for the rate-limited dispatcher
// (CronJobs.MailDispatcher). AttachmentPath points at a stored document,
// typically a rendered invoice.
type QueuedEmail struct {
	gorm.Model
	Recipient      string `json:"recipient" gorm:"size:255;not null"`
	Subject        string `json:"subject" gorm:"size:255;not null"`
	Body           string `json:"body" gorm:"type:text"`
	IsHTML         bool   `json:"is_html" gorm:"default:true"`
	AttachmentPath string `json:"attachment_path" gorm:"size:255"`
	Sent           bool   `json:"sent" gorm:"default:false;index"`
	Attempts       int    `json:"attempts" gorm:"default:0"`
	LastError      string `json:"last_error" gorm:"type:text"`
}

func (QueuedEmail) TableName() string {
	return "queued_emails"
}
