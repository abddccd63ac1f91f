package shared

import "fmt"

// TenantCloseLockKey builds the redis key guarding a tenant's fiscal year close.
func TenantCloseLockKey(tenantID string) string {
	return fmt.Sprintf("ledger:tenant:%s:close", tenantID)
}

// RoleCacheKey builds the redis key holding a tenant's resolved account roles.
func RoleCacheKey(tenantID string) string {
	return fmt.Sprintf("ledger:tenant:%s:roles", tenantID)
}
