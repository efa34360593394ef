package payroll

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Sealer encrypts archived documents. *crypto.Service satisfies it.
type Sealer interface {
	Configured() bool
	Encrypt(plain []byte) ([]byte, error)
}

// DocumentService renders payslip PDFs and archives them on disk.
type DocumentService struct {
	store  StoreAPI
	sealer Sealer
	dir    string
}

func NewDocumentService(store StoreAPI, sealer Sealer, dir string) *DocumentService {
	if dir == "" {
		dir = "storage/payslips"
	}
	return &DocumentService{store: store, sealer: sealer, dir: dir}
}

func (d *DocumentService) Render(ctx context.Context, orgID, payslipID string) ([]byte, error) {
	doc, err := d.store.PayslipDocument(ctx, orgID, payslipID)
	if err != nil {
		return nil, err
	}
	return RenderPayslipPDF(doc)
}

// Archive writes the payslip PDF under the storage directory and returns its
// path. The file is sealed and gets a .enc suffix when a key is configured.
func (d *DocumentService) Archive(ctx context.Context, orgID, payslipID string) (string, error) {
	data, err := d.Render(ctx, orgID, payslipID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", err
	}
	filePath := filepath.Join(d.dir, payslipID+".pdf")
	if d.sealer != nil && d.sealer.Configured() {
		sealed, err := d.sealer.Encrypt(data)
		if err != nil {
			return "", err
		}
		filePath += ".enc"
		data = sealed
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return "", err
	}
	return filePath, nil
}

// ArchiveRun archives every payslip of a run. It is shaped as a background
// job body and reports what it wrote.
func (d *DocumentService) ArchiveRun(ctx context.Context, orgID, runID string) (any, error) {
	payslips, err := d.store.ListPayslipsByRun(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(payslips))
	for _, payslip := range payslips {
		path, err := d.Archive(ctx, orgID, payslip.ID)
		if err != nil {
			return map[string]any{"runId": runID, "archived": len(paths)}, fmt.Errorf("archive payslip %s: %w", payslip.ID, err)
		}
		paths = append(paths, path)
	}
	return map[string]any{"runId": runID, "archived": len(paths)}, nil
}

func RenderPayslipPDF(doc PayslipDocument) ([]byte, error) {
	slip := doc.Payslip
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payslip "+slip.ID, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s %s", doc.FirstName, doc.LastName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Email: %s", doc.Email))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s (%s to %s)", doc.PeriodName,
		doc.StartDate.Format(time.DateOnly), doc.EndDate.Format(time.DateOnly)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Payment date: %s", doc.PaymentDate.Format(time.DateOnly)))
	pdf.Ln(10)

	lines := []struct {
		label string
		value string
	}{
		{"Gross pay", slip.GrossPay.StringFixed(moneyPlaces)},
		{"Benefit deductions", slip.Deductions.StringFixed(moneyPlaces)},
		{"Tax withheld", slip.Tax.StringFixed(moneyPlaces)},
		{"Net pay", slip.NetPay.StringFixed(moneyPlaces)},
	}
	for _, line := range lines {
		pdf.CellFormat(70, 8, line.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, line.value+" "+slip.Currency, "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
