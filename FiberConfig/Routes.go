package FiberConfig

import (
	"fmt"
	"log"

	"Voltway/Billing"
	"Voltway/Controllers"
	"Voltway/Invoices"
	"Voltway/Ledger"
	"Voltway/Lifecycle"
	"Voltway/Models"
	"Voltway/Slack"
	"Voltway/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

// Deps are the constructed engines and stores the routes hang off.
type Deps struct {
	DB         *gorm.DB
	Ledger     *Ledger.Store
	Engine     *Lifecycle.Engine
	Billing    *Billing.Engine
	Reconciler *Invoices.Reconciler
	Slack      *Slack.Client // nil when no bot token is configured
	MediaDir   string
}

// SetupRoutes wires every handler group onto the app.
func SetupRoutes(app *fiber.App, deps Deps) {
	// Initialize handlers
	authHandler := Controllers.NewAuthHandler(deps.DB, deps.Ledger)
	bookingHandler := Controllers.NewBookingHandler(deps.DB, deps.Engine, deps.Ledger, deps.Billing)
	agentHandler := Controllers.NewAgentHandler(deps.DB, deps.Engine, deps.Slack)
	invoiceHandler := Controllers.NewInvoiceHandler(deps.DB, deps.Reconciler)
	reportHandler := Controllers.NewReportHandler(deps.DB)
	mediaHandler := Controllers.NewMediaHandler(deps.MediaDir)

	api := app.Group("/api")

	// Account routes
	api.Post("/Register", authHandler.Register)
	api.Post("/Login", authHandler.Login)
	api.Post("/Logout", authHandler.Logout)
	api.Get("/validate-token", middleware.Verify(deps.DB, Models.PermissionCustomer), authHandler.ValidateToken)
	api.Post("/UpdateToken", middleware.Verify(deps.DB, Models.PermissionCustomer), authHandler.UpdateFCMToken)
	api.Delete("/DeleteAccount", middleware.Verify(deps.DB, Models.PermissionCustomer), authHandler.DeleteAccount)

	// Customer booking routes
	bookings := api.Group("/bookings", middleware.Verify(deps.DB, Models.PermissionCustomer))
	bookings.Post("/", bookingHandler.CreateBooking)
	bookings.Get("/", bookingHandler.GetMyBookings)
	bookings.Get("/:id", bookingHandler.GetBooking)
	bookings.Post("/:id/cancel", bookingHandler.CancelBooking)

	// Operator dispatch routes
	dispatch := api.Group("/dispatch", middleware.Verify(deps.DB, Models.PermissionOperator))
	dispatch.Get("/unassigned", bookingHandler.GetUnassignedBookings)
	dispatch.Get("/:id/candidates", bookingHandler.GetCandidates)
	dispatch.Post("/:id/assign", bookingHandler.AssignAgent)

	// Field-agent routes
	agent := api.Group("/agent", middleware.Verify(deps.DB, Models.PermissionAgent))
	agent.Get("/assignments", agentHandler.MyAssignments)
	agent.Post("/bookings/:id/accept", agentHandler.AcceptAssignment)
	agent.Post("/bookings/:id/reject", agentHandler.RejectAssignment)
	agent.Post("/bookings/:id/transition", agentHandler.ApplyTransition)
	agent.Post("/media", mediaHandler.UploadProofPhoto)

	// Invoice routes
	invoices := api.Group("/invoices", middleware.Verify(deps.DB, Models.PermissionCustomer))
	invoices.Get("/", invoiceHandler.GetMyInvoices)
	invoices.Get("/:invoice_no", invoiceHandler.GetInvoice)
	invoices.Get("/:invoice_no/document", invoiceHandler.DownloadDocument)
	api.Post("/invoices/:invoice_no/backfill", middleware.Verify(deps.DB, Models.PermissionOperator), invoiceHandler.BackfillCapture)

	// Operator reports
	api.Get("/reports/invoices", middleware.Verify(deps.DB, Models.PermissionOperator), reportHandler.ExportInvoices)
}

// Serve configures the Fiber app and blocks on listen.
func Serve(deps Deps, addr string) {
	fmt.Println("Server Up...")
	app := fiber.New()
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestCompression,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           300,
	}))

	SetupRoutes(app, deps)
	app.Static("/static", "static/")

	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}
