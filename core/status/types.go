// Package status defines the operational and administrative status values of
// charging infrastructure together with a bounded, timestamped history.
package status

import (
	"fmt"
	"strings"
)

// AdminStatus is the availability intent set by the operator.
type AdminStatus int

const (
	AdminUnknown AdminStatus = iota
	AdminUnspecified
	AdminPlanned
	AdminInDeployment
	AdminInternalUse
	AdminOutOfService
	AdminOperational
	AdminDeleted
)

var adminNames = [...]string{
	"Unknown", "Unspecified", "Planned", "InDeployment",
	"InternalUse", "OutOfService", "Operational", "Deleted",
}

func (a AdminStatus) String() string {
	if a < 0 || int(a) >= len(adminNames) {
		return fmt.Sprintf("AdminStatus(%d)", int(a))
	}
	return adminNames[a]
}

// AcceptsRequests reports whether reservations and remote starts may be
// forwarded to an entity with this admin status.
func (a AdminStatus) AcceptsRequests() bool {
	return a == AdminOperational || a == AdminInternalUse
}

// ParseAdminStatus is case-insensitive.
func ParseAdminStatus(s string) (AdminStatus, error) {
	for i, n := range adminNames {
		if strings.EqualFold(n, s) {
			return AdminStatus(i), nil
		}
	}
	return AdminUnknown, fmt.Errorf("unknown admin status %q", s)
}

func (a AdminStatus) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AdminStatus) UnmarshalText(b []byte) error {
	v, err := ParseAdminStatus(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Status is the observed operational state.
type Status int

const (
	Unknown Status = iota
	Unspecified
	Planned
	InDeployment
	Offline
	Available
	Reserved
	Charging
	OutOfService
	Faulted
)

var statusNames = [...]string{
	"Unknown", "Unspecified", "Planned", "InDeployment", "Offline",
	"Available", "Reserved", "Charging", "OutOfService", "Faulted",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus is case-insensitive.
func ParseStatus(s string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, s) {
			return Status(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// All returns every status value in declaration order.
func All() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}
