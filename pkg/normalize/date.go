package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})?(\d{2})?$`)
	isoDate     = regexp.MustCompile(`^(\d{4})(?:-([0-9]{2}|UNK|UN|--|XX))?(?:-([0-9]{2}|UNK|UN|--|XX))?$`)
	monthDate   = regexp.MustCompile(`^(\d{1,2}|UNK|UN)[- /]?([A-Z]{3})[- /]?(\d{4})$`)
	clockTime   = regexp.MustCompile(`^(\d{1,2}):?(\d{2})(?::?(\d{2}))?$`)
	iso8601     = regexp.MustCompile(`^(\d{4})(?:-(\d{2})(?:-(\d{2})(?:T(\d{2})(?::(\d{2})(?::(\d{2}))?)?)?)?)?$`)
)

var monthAbbrev = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// Date converts an EDC date to its minimal-precision ISO 8601 form (YYYY-MM-DD, YYYY-MM or YYYY).
// A day or month that was not collected is never invented. Empty input means "not known yet"
// and yields "" without error.
func Date(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", nil
	}

	var year, month, day string
	switch {
	case compactDate.MatchString(s):
		m := compactDate.FindStringSubmatch(s)
		year, month, day = m[1], m[2], m[3]
	case isoDate.MatchString(s):
		m := isoDate.FindStringSubmatch(s)
		year, month, day = m[1], known(m[2]), known(m[3])
	case monthDate.MatchString(s):
		m := monthDate.FindStringSubmatch(s)
		mon, ok := monthAbbrev[m[2]]
		if !ok {
			if m[2] != "UNK" {
				return "", newError("date", raw, "unknown month "+m[2])
			}
			year = m[3]
			break
		}
		year, month = m[3], twoDigits(mon)
		if d := known(m[1]); d != "" {
			n, _ := strconv.Atoi(d)
			day = twoDigits(n)
		}
	default:
		return "", newError("date", raw, "unrecognized date format")
	}

	// An unknown month makes any collected day meaningless.
	if month == "" {
		day = ""
	}
	if err := checkCalendar(raw, year, month, day); err != nil {
		return "", err
	}

	out := year
	if month != "" {
		out += "-" + month
		if day != "" {
			out += "-" + day
		}
	}
	return out, nil
}

// DateTime attaches a collection time to a full-precision date. A time is never attached to a
// partial date, because that would imply a precision that was not collected.
func DateTime(date, clock string) (string, error) {
	clock = strings.TrimSpace(clock)
	if clock == "" || len(date) != len("2006-01-02") {
		return date, nil
	}
	m := clockTime.FindStringSubmatch(clock)
	if m == nil {
		return date, newError("time", clock, "unrecognized time format")
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	if h > 23 || mi > 59 {
		return date, newError("time", clock, "out of range")
	}
	out := date + "T" + twoDigits(h) + ":" + twoDigits(mi)
	if m[3] != "" {
		sec, _ := strconv.Atoi(m[3])
		if sec > 59 {
			return date, newError("time", clock, "out of range")
		}
		out += ":" + twoDigits(sec)
	}
	return out, nil
}

// ValidISO8601 reports whether s is a full or partial ISO 8601 date or date-time
// that names a real calendar day.
func ValidISO8601(s string) bool {
	m := iso8601.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	if checkCalendar(s, m[1], m[2], m[3]) != nil {
		return false
	}
	if m[4] != "" {
		h, _ := strconv.Atoi(m[4])
		if h > 23 {
			return false
		}
	}
	if m[5] != "" {
		mi, _ := strconv.Atoi(m[5])
		if mi > 59 {
			return false
		}
	}
	if m[6] != "" {
		sec, _ := strconv.Atoi(m[6])
		if sec > 59 {
			return false
		}
	}
	return true
}

// CompareDates compares two ISO dates at their shared precision. ok is false when either
// value is empty or invalid.
func CompareDates(a, b string) (cmp int, ok bool) {
	if !ValidISO8601(a) || !ValidISO8601(b) {
		return 0, false
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return strings.Compare(a[:n], b[:n]), true
}

// StudyDay returns the SDTM study day of dtc relative to the reference start date.
// There is no day 0: the reference date is day 1 and the day before is -1.
func StudyDay(dtc, refStart string) (int, bool) {
	if len(dtc) < 10 || len(refStart) < 10 {
		return 0, false
	}
	d, err := time.Parse("2006-01-02", dtc[:10])
	if err != nil {
		return 0, false
	}
	r, err := time.Parse("2006-01-02", refStart[:10])
	if err != nil {
		return 0, false
	}
	days := int(d.Sub(r).Hours() / 24)
	if days >= 0 {
		days++
	}
	return days, true
}

func known(part string) string {
	switch part {
	case "UN", "UNK", "--", "XX":
		return ""
	}
	return part
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func checkCalendar(raw, year, month, day string) error {
	y, _ := strconv.Atoi(year)
	if y < 1800 || y > 2999 {
		return newError("date", raw, "year out of range")
	}
	if month == "" {
		return nil
	}
	m, _ := strconv.Atoi(month)
	if m < 1 || m > 12 {
		return newError("date", raw, "month out of range")
	}
	if day == "" {
		return nil
	}
	d, _ := strconv.Atoi(day)
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if d < 1 || t.Month() != time.Month(m) {
		return newError("date", raw, "day out of range")
	}
	return nil
}
