package excel

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nurpe/finops/internal/model"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the payment register: a summary sheet over the period
// plus one detail sheet per batch.
func (g *Generator) Generate(register model.PaymentRegister) ([]byte, error) {
	file := excelize.NewFile()

	summarySheet := "Summary"
	file.SetSheetName("Sheet1", summarySheet)
	if err := g.writeSummary(file, summarySheet, register); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, batch := range register.Batches {
		sheetName := buildSheetName(batch, usedNames)
		usedNames[sheetName] = struct{}{}

		file.NewSheet(sheetName)
		if err := g.writeDetail(file, sheetName, batch); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, register model.PaymentRegister) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	totals := make(map[model.Currency]float64)
	paid := 0
	for _, batch := range register.Batches {
		if batch.Status == model.PaymentStatusPaid {
			totals[batch.Currency] += batch.Amount
			paid++
		}
	}

	set("A1", "Period start")
	set("B1", formatDate(register.PeriodStart))
	set("A2", "Period end")
	set("B2", formatDate(register.PeriodEnd))
	set("A3", "Batches")
	set("B3", len(register.Batches))
	set("A4", "Paid batches")
	set("B4", paid)

	row := 5
	for currency, total := range totals {
		set(fmt.Sprintf("A%d", row), fmt.Sprintf("Total paid, %s", currency))
		set(fmt.Sprintf("B%d", row), formatAmount(total))
		row++
	}

	tableRow := row + 1
	headers := []string{"Batch", "Status", "Method", "Amount", "Currency", "Items", "Created", "Processed"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, batch := range register.Batches {
		r := tableRow + 1 + i
		set(fmt.Sprintf("A%d", r), shortID(batch.ID.String()))
		set(fmt.Sprintf("B%d", r), string(batch.Status))
		set(fmt.Sprintf("C%d", r), string(batch.Method))
		set(fmt.Sprintf("D%d", r), formatAmount(batch.Amount))
		set(fmt.Sprintf("E%d", r), string(batch.Currency))
		set(fmt.Sprintf("F%d", r), len(batch.Items))
		set(fmt.Sprintf("G%d", r), formatDate(batch.CreatedAt))
		set(fmt.Sprintf("H%d", r), formatDatePtr(batch.ProcessedAt))
	}

	_ = file.SetColWidth(sheet, "A", "A", 14)
	_ = file.SetColWidth(sheet, "B", "C", 22)
	_ = file.SetColWidth(sheet, "D", "F", 12)
	_ = file.SetColWidth(sheet, "G", "H", 14)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, batch model.PaymentBatch) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Batch")
	set("B1", batch.ID.String())
	set("A2", "Status")
	set("B2", string(batch.Status))
	set("A3", "Method")
	set("B3", string(batch.Method))
	set("A4", "Amount")
	set("B4", formatAmount(batch.Amount))
	set("A5", "Currency")
	set("B5", string(batch.Currency))
	set("A6", "Created")
	set("B6", formatDate(batch.CreatedAt))
	set("A7", "Processed")
	set("B7", formatDatePtr(batch.ProcessedAt))

	tableRow := 9
	headers := []string{"Type", "Reference", "Title", "Amount", "Currency"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, item := range batch.Items {
		r := tableRow + 1 + i
		set(fmt.Sprintf("A%d", r), string(item.Kind))
		set(fmt.Sprintf("B%d", r), item.ID.String())
		set(fmt.Sprintf("C%d", r), item.Title)
		set(fmt.Sprintf("D%d", r), formatAmount(item.Amount))
		set(fmt.Sprintf("E%d", r), string(item.Currency))
	}

	_ = file.SetColWidth(sheet, "A", "A", 18)
	_ = file.SetColWidth(sheet, "B", "B", 40)
	_ = file.SetColWidth(sheet, "C", "C", 36)
	_ = file.SetColWidth(sheet, "D", "E", 12)
	return nil
}

// Sheet names cap at 31 characters and must be unique within the workbook.
func buildSheetName(batch model.PaymentBatch, used map[string]struct{}) string {
	base := fmt.Sprintf("Batch %s", shortID(batch.ID.String()))

	candidate := base
	counter := 2
	for {
		if _, exists := used[candidate]; !exists {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", base, counter)
		counter++
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
