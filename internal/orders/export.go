package orders

import (
	"fmt"
	"io"

	"github.com/tealeg/xlsx"
)

var orderHeaders = []string{
	"Order ID", "Created At", "Status", "Flow", "Customer", "Phone",
	"Item", "Unit", "Quantity", "Unit Price", "Line Total", "Order Subtotal", "Order Tax", "Order Total",
}

// ExportXLSX writes the report as a workbook with one row per order line.
func ExportXLSX(w io.Writer, r Report) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Sales")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range orderHeaders {
		header.AddCell().SetString(h)
	}

	for _, o := range r.Orders {
		for _, item := range o.Items {
			row := sheet.AddRow()
			row.AddCell().SetString(o.ID)
			row.AddCell().SetString(o.CreatedAt.Format("2006-01-02 15:04:05"))
			row.AddCell().SetString(string(o.Status))
			row.AddCell().SetString(string(o.Flow))
			row.AddCell().SetString(o.CustomerName)
			row.AddCell().SetString(o.CustomerPhone)
			row.AddCell().SetString(item.Name)
			row.AddCell().SetString(string(item.Unit))
			row.AddCell().SetInt(item.Quantity)
			row.AddCell().SetString(item.UnitPrice.StringFixed(2))
			row.AddCell().SetString(item.LineTotal.StringFixed(2))
			row.AddCell().SetString(o.Subtotal.StringFixed(2))
			row.AddCell().SetString(o.Tax.StringFixed(2))
			row.AddCell().SetString(o.Total.StringFixed(2))
		}
	}

	totals := sheet.AddRow()
	totals.AddCell().SetString("Total")
	totals.AddCell().SetInt(r.Summary.SalesCount)
	totals.AddCell().SetString(r.Summary.Revenue.StringFixed(2))

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
