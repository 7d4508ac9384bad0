package Slack

import (
	"fmt"

	"github.com/slack-go/slack"
)

// Client posts operations alerts to a single Slack channel. All posting
// is best-effort; callers log failures and move on.
type Client struct {
	api     *slack.Client
	channel string
}

func NewClient(token, channel string) *Client {
	return &Client{
		api:     slack.New(token),
		channel: channel,
	}
}

// Post sends a plain-text message to the operations channel.
func (c *Client) Post(message string) error {
	_, _, err := c.api.PostMessage(c.channel, slack.MsgOptionText(message, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

// NotifyEscalation alerts the operations channel that a roadside job
// could not be completed in the field and needs a follow-up.
func (c *Client) NotifyEscalation(bookingNo, reason string) error {
	message := fmt.Sprintf(":rotating_light: *Roadside escalation* - booking %s needs follow-up", bookingNo)
	if reason != "" {
		message += "\n> " + reason
	}
	return c.Post(message)
}
