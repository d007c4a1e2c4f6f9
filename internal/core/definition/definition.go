package definition

import (
	"fmt"
	"strings"
)

// ScheduleKind is how often an entity is sent.
type ScheduleKind string

const (
	Monthly ScheduleKind = "monthly"
	Yearly  ScheduleKind = "yearly"
)

// ParseSchedule accepts monthly or yearly in any case. An empty value means monthly.
func ParseSchedule(s string) (ScheduleKind, error) {
	switch ScheduleKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", Monthly:
		return Monthly, nil
	case Yearly:
		return Yearly, nil
	}
	return "", fmt.Errorf("unsupported schedule %q (monthly, yearly)", s)
}

// ReportType selects how a template is filled.
type ReportType string

const (
	DataListSequential ReportType = "DataListSequential"
	DataListParallel   ReportType = "DataListParallel"
	DataEntry          ReportType = "DataEntry"
)

// IsTable reports whether the template is column bound.
func (t ReportType) IsTable() bool {
	return t == DataListSequential || t == DataListParallel
}

func validReportType(t ReportType) bool {
	return t.IsTable() || t == DataEntry
}

// FileType is the output format.
type FileType string

const (
	FileCSV  FileType = "csv"
	FileXLSX FileType = "xlsx"
	FileXLS  FileType = "xls"
)

// IsSpreadsheet reports whether the output is a workbook.
func (f FileType) IsSpreadsheet() bool {
	return f == FileXLSX || f == FileXLS
}

// EntityKind distinguishes the two schedulable entities.
type EntityKind string

const (
	KindReport EntityKind = "report"
	KindUser   EntityKind = "user"
)

// Report is one report definition. Immutable for the cycle it was loaded in.
type Report struct {
	Name         string
	Schedule     ScheduleKind
	Type         ReportType
	Template     string
	Sheet        string
	FileType     FileType
	Separator    string
	FirstRow     int
	FromTemplate bool
	Recipients   []string
	BlindCopy    []string
	FillPolicy   string
	Subject      string
	Content      string
	Fingerprint  string
}

// User bundles several reports into one mail to one recipient.
type User struct {
	Name        string
	Email       string
	Reports     []string
	BlindCopy   []string
	Schedule    ScheduleKind
	Subject     string
	Content     string
	Fingerprint string
}

// Set is the full definition set of one control-loop cycle.
type Set struct {
	Reports []Report
	Users   []User
}

// Report returns the report named name.
func (s *Set) Report(name string) (Report, bool) {
	for _, r := range s.Reports {
		if r.Name == name {
			return r, true
		}
	}
	return Report{}, false
}

// User returns the user named name.
func (s *Set) User(name string) (User, bool) {
	for _, u := range s.Users {
		if u.Name == name {
			return u, true
		}
	}
	return User{}, false
}

// ResolveReports looks up the reports bundled by u, in order.
// Names without a matching report are returned in missing.
func (s *Set) ResolveReports(u User) (found []Report, missing []string) {
	for _, name := range u.Reports {
		if r, ok := s.Report(name); ok {
			found = append(found, r)
		} else {
			missing = append(missing, name)
		}
	}
	return found, missing
}
