package auth

import "context"

const (
	RoleViewer       = "payroll_viewer"
	RolePayrollClerk = "payroll_clerk"
	RolePayrollAdmin = "payroll_admin"
)

const (
	PermPayrollRead     = "payroll.read"
	PermPayrollWrite    = "payroll.write"
	PermPayrollRun      = "payroll.run"
	PermPayrollClose    = "payroll.close"
	PermPayslipDownload = "payroll.payslips.download"
	PermAuditRead       = "payroll.audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollRun,
	PermPayrollClose,
	PermPayslipDownload,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermPayrollRead,
	},
	RolePayrollClerk: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayslipDownload,
	},
	RolePayrollAdmin: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollRun,
		PermPayrollClose,
		PermPayslipDownload,
		PermAuditRead,
	},
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct {
	grants map[string]map[string]struct{}
}

func NewStaticPermissions(roles map[string][]string) *StaticPermissions {
	grants := make(map[string]map[string]struct{}, len(roles))
	for role, perms := range roles {
		set := make(map[string]struct{}, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		grants[role] = set
	}
	return &StaticPermissions{grants: grants}
}

func (p *StaticPermissions) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	_, ok := p.grants[role][permission]
	return ok, nil
}
