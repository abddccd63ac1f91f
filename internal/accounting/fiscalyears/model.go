package fiscalyears

import (
	"strconv"
	"time"
)

// FiscalYear represents a tenant scoped accounting year. At most one is open per tenant.
type FiscalYear struct {
	ID        int64
	TenantID  string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	IsClosed  bool
	CreatedAt time.Time
}

// CalendarYear builds an open fiscal year spanning 1 January to 31 December.
func CalendarYear(tenantID string, year int) FiscalYear {
	return FiscalYear{
		TenantID:  tenantID,
		Name:      strconv.Itoa(year),
		StartDate: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// NextYear returns the calendar year following fy. Names that are not a year fall back to
// the year of now.
func NextYear(fy FiscalYear, now time.Time) int {
	year, err := strconv.Atoi(fy.Name)
	if err != nil || year <= 0 {
		year = now.Year()
	}
	return year + 1
}
