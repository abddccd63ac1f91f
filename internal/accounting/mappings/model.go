package mappings

import "time"

// Role names an account the ledger's collaborators post to without knowing its code.
type Role string

const (
	RoleCash        Role = "cash"
	RoleBank        Role = "bank"
	RoleReceivables Role = "receivables"
	RoleInventory   Role = "inventory"
	RolePayables    Role = "payables"
	RoleVAT         Role = "vat"
	RoleCapital     Role = "capital"
	RoleProfitLoss  Role = "profit_loss"
	RoleSales       Role = "sales"
	RoleCOGS        Role = "cogs"
	RoleDiscount    Role = "discount"
	RoleSalaries    Role = "salaries"
)

// defaultCodes binds each role to its account in the default chart.
var defaultCodes = map[Role]string{
	RoleCash:        "1101",
	RoleBank:        "1102",
	RoleReceivables: "1103",
	RoleInventory:   "1104",
	RolePayables:    "2101",
	RoleVAT:         "2102",
	RoleCapital:     "31",
	RoleProfitLoss:  "32",
	RoleSales:       "41",
	RoleCOGS:        "5101",
	RoleDiscount:    "5103",
	RoleSalaries:    "5201",
}

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{
		RoleCash, RoleBank, RoleReceivables, RoleInventory, RolePayables, RoleVAT,
		RoleCapital, RoleProfitLoss, RoleSales, RoleCOGS, RoleDiscount, RoleSalaries,
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := defaultCodes[r]
	return ok
}

// DefaultCode returns the default chart code for r.
func (r Role) DefaultCode() string {
	return defaultCodes[r]
}

// AccountMapping overrides the default account of a role for one tenant.
type AccountMapping struct {
	TenantID  string
	Role      Role
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
