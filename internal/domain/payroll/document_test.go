package payroll_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/domain/payroll/payrolltest"
	cryptoutil "hrpayroll/internal/platform/crypto"
)

func completedRun(t *testing.T) (*payrolltest.MemStore, payroll.RunSummary) {
	t.Helper()
	fx := newRunFixture(t)
	employee := fx.store.AddEmployee(orgID, "Ada", "Lovelace", payroll.EmployeeStatusActive)
	fx.store.AddSalary(employee.ID, "72000", payroll.FrequencyAnnual, day("2023-01-01"))
	summary, err := fx.orchestrator.CreateRun(context.Background(), orgID, fx.period.ID, payroll.RunOptions{})
	require.NoError(t, err)
	return fx.store, summary
}

func TestRenderPayslipPDF(t *testing.T) {
	data, err := payroll.RenderPayslipPDF(payroll.PayslipDocument{
		Payslip: payroll.Payslip{
			ID:       "slip-1",
			GrossPay: decimal.RequireFromString("6000"),
			NetPay:   decimal.RequireFromString("4800"),
			Tax:      decimal.RequireFromString("1200"),
			Currency: "USD",
		},
		FirstName:  "Ada",
		LastName:   "Lovelace",
		PeriodName: "January 2024",
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-01-31"),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestArchivePlainAndSealed(t *testing.T) {
	store, summary := completedRun(t)
	payslipID := summary.Payslips[0].ID

	plainDir := t.TempDir()
	plain := payroll.NewDocumentService(store, nil, plainDir)
	path, err := plain.Archive(context.Background(), orgID, payslipID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(plainDir, payslipID+".pdf"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF-")))

	sealer, err := cryptoutil.New(strings.Repeat("ab", 32))
	require.NoError(t, err)
	sealedDir := t.TempDir()
	sealed := payroll.NewDocumentService(store, sealer, sealedDir)
	path, err = sealed.Archive(context.Background(), orgID, payslipID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf.enc"))
	ciphertext, err := os.ReadFile(path)
	require.NoError(t, err)
	opened, err := sealer.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(opened, []byte("%PDF-")))
}

func TestArchiveRunWritesEveryPayslip(t *testing.T) {
	store, summary := completedRun(t)
	docs := payroll.NewDocumentService(store, nil, t.TempDir())

	details, err := docs.ArchiveRun(context.Background(), orgID, summary.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, details.(map[string]any)["archived"])
}

func TestRenderUnknownPayslip(t *testing.T) {
	docs := payroll.NewDocumentService(payrolltest.New(), nil, t.TempDir())
	_, err := docs.Render(context.Background(), orgID, "missing")
	assert.ErrorIs(t, err, payroll.ErrNotFound)
}
