package voucher

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/finops/internal/model"
)

type Generator struct {
	fontName string
}

func NewGenerator() *Generator {
	return &Generator{fontName: "Helvetica"}
}

func (g *Generator) Generate(doc model.PaymentVoucher) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 14)
	pdf.CellFormat(0, 10, "PAYMENT VOUCHER", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Voucher No. %s", doc.Batch.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Disbursed on %s via %s", formatDate(doc.Batch.ProcessedAt), methodLabel(doc.Batch.Method)), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	addPartyBlock(pdf, g.fontName, "Prepared by", doc.Maker.Name, doc.Maker.Email, formatDate(&doc.Batch.CreatedAt))
	pdf.Ln(2)
	if doc.Checker != nil {
		addPartyBlock(pdf, g.fontName, "Authorized by", doc.Checker.Name, doc.Checker.Email, formatDate(doc.Batch.AuthorizedAt))
		pdf.Ln(4)
	}

	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Items paid", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)

	headers := []string{"Type", "Reference", "Description", "Amount"}
	colWidths := []float64{30, 45, 70, 35}
	drawTableRow(pdf, g.fontName, headers, colWidths, true)

	for _, item := range doc.Items {
		drawTableRow(pdf, g.fontName, []string{
			string(item.Kind),
			shortID(item.ID.String()),
			item.Title,
			formatAmount(item.Amount),
		}, colWidths, false)
	}

	pdf.Ln(2)
	pdf.SetFont(g.fontName, "B", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total: %s %s", formatAmount(doc.Batch.Amount), doc.Batch.Currency), "", 1, "R", false, 0, "")

	if doc.Batch.ProofURL != nil && strings.TrimSpace(*doc.Batch.ProofURL) != "" {
		pdf.SetFont(g.fontName, "", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("Proof of payment: %s", *doc.Batch.ProofURL), "", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont(g.fontName, "B", 12)
	pdf.CellFormat(0, 8, "Signatures", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 11)
	signatureBlock(pdf, g.fontName, "Maker", doc.Maker.Name)
	if doc.Checker != nil {
		signatureBlock(pdf, g.fontName, "Checker", doc.Checker.Name)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addPartyBlock(pdf *gofpdf.Fpdf, fontName, title, name, email, when string) {
	pdf.SetFont(fontName, "B", 11)
	pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	lines := []string{
		safeValue(name),
		fmt.Sprintf("Email: %s", safeValue(email)),
		fmt.Sprintf("Date: %s", safeValue(when)),
	}
	for _, line := range lines {
		pdf.MultiCell(0, 5, line, "", "L", false)
	}
}

func drawTableRow(pdf *gofpdf.Fpdf, fontName string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i == len(cols)-1 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, col, "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, fontName, label, name string) {
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s: ______________________ /%s/", label, safeValue(name)), "", 1, "L", false, 0, "")
}

func methodLabel(method model.PaymentMethod) string {
	switch method {
	case model.MethodBankTransfer:
		return "bank transfer"
	case model.MethodMobileMoney:
		return "mobile money"
	case model.MethodCheque:
		return "cheque"
	case model.MethodCash:
		return "cash"
	default:
		return strings.ToLower(string(method))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAmount(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("02.01.2006")
}
