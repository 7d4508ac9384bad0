package Controllers

import (
	"fmt"
	"time"

	"Voltway/Models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ReportHandler contains handler methods for operator exports
type ReportHandler struct {
	DB *gorm.DB
}

func NewReportHandler(db *gorm.DB) *ReportHandler {
	return &ReportHandler{DB: db}
}

// ExportInvoices streams an XLSX of invoices in a date range.
// GET /api/reports/invoices?start_date=2026-08-01&end_date=2026-08-31
func (h *ReportHandler) ExportInvoices(c *fiber.Ctx) error {
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")

	query := h.DB.Model(&Models.Invoice{}).Preload("Booking")
	if startDate != "" && endDate != "" {
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid date format",
				"message": "Dates must be in YYYY-MM-DD format",
			})
		}
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid date format",
				"message": "Dates must be in YYYY-MM-DD format",
			})
		}
		query = query.Where("generated_at >= ? AND generated_at < ?", start, end.AddDate(0, 0, 1))
	}

	var invoices []Models.Invoice
	if err := query.Order("id asc").Find(&invoices).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch invoices",
		})
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Invoices"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Invoice No", "Booking No", "Service Line", "Status", "Amount", "Currency", "Captured", "Transaction ID", "Generated At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, invoice := range invoices {
		values := []interface{}{
			invoice.InvoiceNo,
			invoice.Booking.BookingNo,
			string(invoice.Booking.ServiceLine),
			string(invoice.Status),
			invoice.Amount,
			invoice.Currency,
			invoice.CapturedAmount,
			invoice.TransactionID,
			invoice.GeneratedAt.Format("2006-01-02 15:04"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to write report",
		})
	}

	filename := fmt.Sprintf("invoices_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}
