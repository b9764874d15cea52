package processors

import "time"

// AssignTaxYear maps a timestamp to its fiscal tax year label. If the
// timestamp's (month, day) falls on or after the fiscal start, the tax year is
// the calendar year; otherwise it is the previous calendar year. With the Irish
// default (April 6), 2024-03-31 belongs to tax year 2023 and 2024-04-06 to 2024.
func AssignTaxYear(ts time.Time, fiscalStartMonth time.Month, fiscalStartDay int) int {
	ts = ts.UTC()
	if ts.Month() > fiscalStartMonth ||
		(ts.Month() == fiscalStartMonth && ts.Day() >= fiscalStartDay) {
		return ts.Year()
	}
	return ts.Year() - 1
}

// FiscalYearRange returns the inclusive start and end dates of a tax year
// under the given fiscal boundary. The end date is the day before the next
// fiscal start.
func FiscalYearRange(taxYear int, fiscalStartMonth time.Month, fiscalStartDay int) (time.Time, time.Time) {
	start := time.Date(taxYear, fiscalStartMonth, fiscalStartDay, 0, 0, 0, 0, time.UTC)
	end := time.Date(taxYear+1, fiscalStartMonth, fiscalStartDay, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return start, end
}
