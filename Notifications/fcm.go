package Notifications

import (
	"context"
	"fmt"
	"log"

	"Voltway/Models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

// FCMDispatcher sends push notifications through Firebase Cloud
// Messaging, resolving device tokens from the fcm_tokens table.
type FCMDispatcher struct {
	DB     *gorm.DB
	client *messaging.Client
	ctx    context.Context
}

// NewFCMDispatcher initialises the Firebase app from a service account
// key file. Call once at startup.
func NewFCMDispatcher(db *gorm.DB, credentialsFile string) (*FCMDispatcher, error) {
	ctx := context.Background()
	opt := option.WithCredentialsFile(credentialsFile)

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %v", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %v", err)
	}
	log.Println("Firebase initialized successfully")
	return &FCMDispatcher{DB: db, client: client, ctx: ctx}, nil
}

// PushToUser sends one notification to the user's registered device.
// Users without a token are skipped silently; agents and customers
// register tokens on app start.
func (d *FCMDispatcher) PushToUser(userID uint, title, body, category, deepLink string) error {
	var token Models.FCMToken
	if err := d.DB.Where("user_id = ?", userID).First(&token).Error; err != nil {
		return nil
	}
	return d.send(token.Value, title, body, category, deepLink)
}

// PushToOperators fans out to every operator-level account.
func (d *FCMDispatcher) PushToOperators(title, body, category, deepLink string) error {
	var tokens []Models.FCMToken
	err := d.DB.
		Joins("JOIN users ON users.id = fcm_tokens.user_id").
		Where("users.permission >= ?", Models.PermissionOperator).
		Find(&tokens).Error
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if err := d.send(t.Value, title, body, category, deepLink); err != nil {
			log.Printf("Push to operator token failed: %v", err)
		}
	}
	return nil
}

func (d *FCMDispatcher) send(token, title, body, category, deepLink string) error {
	message := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"category":  category,
			"deep_link": deepLink,
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
			Priority: "high",
		},
	}

	response, err := d.client.Send(d.ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %v", err)
	}
	log.Printf("Successfully sent notification: %s", response)
	return nil
}
