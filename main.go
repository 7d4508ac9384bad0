package main

import (
	"log"
	"os"
	"strconv"

	"Voltway/Billing"
	"Voltway/CronJobs"
	"Voltway/Documents"
	"Voltway/FiberConfig"
	"Voltway/Invoices"
	"Voltway/Ledger"
	"Voltway/Lifecycle"
	"Voltway/Models"
	"Voltway/Notifications"
	"Voltway/Payments"
	"Voltway/Slack"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

func main() {
	setupLogging()

	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using process environment")
	}

	db, err := Models.Connect(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatal(err)
	}

	ledgerStore := Ledger.NewStore(db)

	rates, err := Billing.LoadRates(envOr("PRICING_FILE", "pricing.json5"))
	if err != nil {
		log.Fatal(err)
	}
	billingEngine := Billing.NewEngine(rates)

	var notifier Lifecycle.Notifier
	if credentials := os.Getenv("FIREBASE_CREDENTIALS"); credentials != "" {
		fcm, err := Notifications.NewFCMDispatcher(db, credentials)
		if err != nil {
			log.Fatal("Failed to initialize Firebase:", err)
		}
		notifier = fcm
	} else {
		log.Println("FIREBASE_CREDENTIALS not set, push notifications disabled")
	}

	var processor Payments.Processor
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		processor = Payments.NewStripeProcessor(key)
	} else {
		log.Println("STRIPE_SECRET_KEY not set, payment captures will stay pending")
	}

	renderer, err := Documents.NewRenderer(envOr("TEMPLATES_DIR", "./Templates"), envOr("DOCUMENTS_DIR", "static/invoices"))
	if err != nil {
		log.Fatal(err)
	}

	reconciler := Invoices.NewReconciler(db, billingEngine, processor, renderer, notifier)
	engine := Lifecycle.NewEngine(db, ledgerStore, notifier, reconciler)

	mailDispatcher := CronJobs.NewMailDispatcher(db, mailConfig(), envInt("MAIL_BATCH_SIZE", 10))
	if err := mailDispatcher.Start(); err != nil {
		log.Printf("Failed to start mail dispatcher: %v", err)
	}
	defer mailDispatcher.Stop()

	var slackClient *Slack.Client
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		slackClient = Slack.NewClient(token, envOr("SLACK_CHANNEL", "#dispatch"))
		digest := Slack.NewDigestTask(db, slackClient)
		if err := digest.Start(); err != nil {
			log.Printf("Failed to start slack digest: %v", err)
		}
		defer digest.Stop()
	} else {
		log.Println("SLACK_BOT_TOKEN not set, operations alerts disabled")
	}

	FiberConfig.Serve(FiberConfig.Deps{
		DB:         db,
		Ledger:     ledgerStore,
		Engine:     engine,
		Billing:    billingEngine,
		Reconciler: reconciler,
		Slack:      slackClient,
		MediaDir:   envOr("MEDIA_DIR", "static/media"),
	}, envOr("LISTEN_ADDR", ":3000"))
}

func mailConfig() Models.EmailConfig {
	return Models.EmailConfig{
		SMTPServer: os.Getenv("SMTP_SERVER"),
		SMTPPort:   envInt("SMTP_PORT", 587),
		Username:   os.Getenv("SMTP_USERNAME"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		FromEmail:  os.Getenv("SMTP_FROM_EMAIL"),
		FromName:   envOr("SMTP_FROM_NAME", "Voltway"),
		TLSEnabled: os.Getenv("SMTP_TLS") != "false",
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func setupLogging() {
	// Create logs directory if it doesn't exist
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Error creating logs directory: %v\n", err)
		return
	}

	logFile, err := os.OpenFile("logs/application.log",
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Error opening log file: %v\n", err)
		return
	}

	log.SetOutput(logFile)
	log.SetFlags(log.Ldate | log.Ltime)
}
