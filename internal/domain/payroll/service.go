package payroll

import "log/slog"

// Service groups the payroll components behind one handle for the transport
// layers.
type Service struct {
	Periods      *PeriodManager
	Compensation *CompensationResolver
	Payslips     *PayslipStore
	Runs         *Orchestrator
	Documents    *DocumentService
}

func NewService(store StoreAPI, tx Transactor, tax TaxFunc, logger *slog.Logger) *Service {
	return &Service{
		Periods:      NewPeriodManager(store, logger),
		Compensation: NewCompensationResolver(store),
		Payslips:     NewPayslipStore(store),
		Runs:         NewOrchestrator(tx, store, tax, logger),
		Documents:    NewDocumentService(store, nil, ""),
	}
}
