package email

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"path/filepath"
	"strings"

	"Voltway/Models"
)

// SendEmail sends an email using the provided configuration and message
// details. Attachments are encoded inline as a multipart/mixed body.
func SendEmail(config Models.EmailConfig, message Models.EmailMessage) error {
	messageBody := buildMessage(config, message)

	// Set up authentication
	auth := smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer)

	// Create recipient list (to, cc, bcc)
	var recipients []string
	recipients = append(recipients, message.To...)
	recipients = append(recipients, message.CC...)
	recipients = append(recipients, message.BCC...)

	serverAddr := fmt.Sprintf("%s:%d", config.SMTPServer, config.SMTPPort)

	if !config.TLSEnabled {
		return smtp.SendMail(serverAddr, auth, config.FromEmail, recipients, []byte(messageBody))
	}

	tlsConfig := &tls.Config{
		ServerName:         config.SMTPServer,
		InsecureSkipVerify: config.SkipTLSCheck,
	}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %v", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, config.SMTPServer)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %v", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %v", err)
	}
	if err = client.Mail(config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %v", err)
	}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient %s: %v", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data connection: %v", err)
	}
	if _, err = w.Write([]byte(messageBody)); err != nil {
		return fmt.Errorf("failed to write email body: %v", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data connection: %v", err)
	}
	return client.Quit()
}

// buildMessage assembles headers and body, switching to multipart/mixed
// when attachments are present.
func buildMessage(config Models.EmailConfig, message Models.EmailMessage) string {
	headers := make([]string, 0, 8)
	headers = append(headers, fmt.Sprintf("From: %s <%s>", config.FromName, config.FromEmail))
	headers = append(headers, "To: "+strings.Join(message.To, ", "))
	headers = append(headers, "Subject: "+message.Subject)
	if len(message.CC) > 0 {
		headers = append(headers, "Cc: "+strings.Join(message.CC, ", "))
	}
	headers = append(headers, "MIME-Version: 1.0")

	contentType := "text/plain; charset=UTF-8"
	if message.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}

	var body strings.Builder
	if len(message.Attachments) == 0 {
		headers = append(headers, "Content-Type: "+contentType)
		body.WriteString(strings.Join(headers, "\r\n"))
		body.WriteString("\r\n\r\n")
		body.WriteString(message.Body)
		return body.String()
	}

	const boundary = "voltway-mail-boundary"
	headers = append(headers, `Content-Type: multipart/mixed; boundary="`+boundary+`"`)
	body.WriteString(strings.Join(headers, "\r\n"))
	body.WriteString("\r\n\r\n")

	body.WriteString("--" + boundary + "\r\n")
	body.WriteString("Content-Type: " + contentType + "\r\n\r\n")
	body.WriteString(message.Body)
	body.WriteString("\r\n")

	for _, attachment := range message.Attachments {
		mimeType := attachment.MimeType
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(attachment.Filename))
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		body.WriteString("--" + boundary + "\r\n")
		body.WriteString("Content-Type: " + mimeType + "\r\n")
		body.WriteString("Content-Transfer-Encoding: base64\r\n")
		body.WriteString(`Content-Disposition: attachment; filename="` + attachment.Filename + `"` + "\r\n\r\n")
		body.WriteString(base64.StdEncoding.EncodeToString(attachment.Data))
		body.WriteString("\r\n")
	}
	body.WriteString("--" + boundary + "--\r\n")
	return body.String()
}
