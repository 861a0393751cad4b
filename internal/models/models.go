package models

import (
	"time"
)

// Status is the attendance outcome recorded for a student on a date.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Method is the capture method that produced an attendance mark.
type Method string

const (
	MethodManual Method = "manual"
	MethodFacial Method = "facial"
	MethodRFID   Method = "rfid"
)

// SyncState tracks where an attendance event is in the sync lifecycle.
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncInFlight SyncState = "in-flight"
	SyncSynced   SyncState = "synced"
	SyncFailed   SyncState = "failed"
)

// ActiveStates are the states that make up the pending event queue.
var ActiveStates = []SyncState{SyncPending, SyncInFlight, SyncFailed}

// DateLayout is the calendar date format used for attendance dates.
const DateLayout = "2006-01-02"

// AttendanceEvent is one student/date/period attendance fact waiting for,
// or already communicated to, the server.
type AttendanceEvent struct {
	LocalID    string    `json:"local_id"`
	StudentID  string    `json:"student_id" validate:"notblank"`
	TeacherID  string    `json:"teacher_id,omitempty"`
	ClassID    string    `json:"class_id" validate:"notblank"`
	Subject    string    `json:"subject,omitempty"`
	Period     string    `json:"period,omitempty"`
	Date       string    `json:"date" validate:"required,calendar_date"`
	Status     Status    `json:"status" validate:"required,oneof=present absent"`
	Method     Method    `json:"method" validate:"required,oneof=manual facial rfid"`
	CapturedAt time.Time `json:"captured_at"`
	SyncState  SyncState `json:"sync_state"`
	Attempts   int       `json:"attempts"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Student is the roster data needed to label and validate marks offline.
type Student struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	RollNumber  string    `json:"roll_number,omitempty" yaml:"roll_number"`
	ClassID     string    `json:"class_id" yaml:"class_id"`
	RFIDTag     string    `json:"rfid_tag,omitempty" yaml:"rfid_tag"`
	PhotoURI    string    `json:"photo_uri,omitempty" yaml:"photo_uri"`
	LastUpdated time.Time `json:"last_updated" yaml:"-"`
}

// Class is a roster class (homeroom or section).
type Class struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Grade       string    `json:"grade,omitempty" yaml:"grade"`
	TeacherID   string    `json:"teacher_id,omitempty" yaml:"teacher_id"`
	LastUpdated time.Time `json:"last_updated" yaml:"-"`
}

// RosterSnapshot is a wholesale copy of the roster as last fetched.
type RosterSnapshot struct {
	ClassID   string    `json:"class_id,omitempty"` // empty = all classes
	Students  []Student `json:"students"`
	Classes   []Class   `json:"classes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SyncMetadata is the singleton record written at the end of each reconciliation pass.
type SyncMetadata struct {
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastPassAt    *time.Time `json:"last_pass_at,omitempty"`
	PendingCount  int        `json:"pending_count"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// SyncOutcome is the per-record result of a reconciliation pass.
type SyncOutcome string

const (
	OutcomeSynced   SyncOutcome = "synced"
	OutcomeRejected SyncOutcome = "rejected"
	OutcomeRetried  SyncOutcome = "retried"
	OutcomeFailed   SyncOutcome = "failed"
)
