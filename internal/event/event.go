// Package event defines the fixed layout record describing one captured crash or error.
//
// A Report embeds every sub-structure by value and holds no pointers, slices or maps, so its
// size is known at compile time and it can be preallocated and reused. Nothing in this
// package allocates. A Report is owned by a single writer; it must not be mutated while it
// is being serialized.
package event

import (
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/fixed"
)

// User is the user affected by the event.
type User struct {
	ID    fixed.String64
	Email fixed.String64
	Name  fixed.String64
}

// App describes the application in which the event happened.
//
// The identity part and the metadata part are filled by different producers: no field
// belongs to both.
type App struct {
	// Identity.
	Version      fixed.String32
	ID           fixed.String64
	Type         fixed.String32
	ReleaseStage fixed.String64
	// VersionCode is unset when 0.
	VersionCode int64
	BuildUUID   fixed.String64
	BinaryArch  fixed.String32
	// Duration and DurationInForeground are in milliseconds.
	Duration             fixed.Int
	DurationInForeground fixed.Int
	InForeground         fixed.Bool

	// Metadata.
	PackageName  fixed.String64
	VersionName  fixed.String32
	ActiveScreen fixed.String64
	Name         fixed.String64
	LowMemory    fixed.Bool
}

// Device describes the device on which the event happened.
type Device struct {
	// Identity.
	ID           fixed.String64
	OSVersion    fixed.String64
	Manufacturer fixed.String64
	Model        fixed.String64
	Orientation  fixed.String32
	OSBuild      fixed.String64
	// TotalMemory is in bytes, unset when 0.
	TotalMemory int64
	// APILevel is unset when 0.
	APILevel int64

	CPUABI      [constants.MaxABIs]fixed.String32
	CPUABICount int

	// Metadata.
	Brand            fixed.String64
	Locale           fixed.String32
	LocationStatus   fixed.String32
	NetworkAccess    fixed.String32
	ScreenResolution fixed.String32
	Emulator         fixed.Bool
	Jailbroken       fixed.Bool
	// DPI is unset when 0.
	DPI           int64
	ScreenDensity fixed.Float
	// Time is the device time in unix seconds, unset when 0.
	Time int64
}

// AddABI appends an ABI to the device list.
// It returns false, and drops the value, when the list is full.
func (d *Device) AddABI(abi string) (added, truncated bool) {
	if d.CPUABICount >= len(d.CPUABI) {
		return false, false
	}
	_, truncated = d.CPUABI[d.CPUABICount].Set(abi)
	d.CPUABICount++
	return true, truncated
}

// ABIs calls fn for each recorded ABI, in insertion order.
func (d *Device) ABIs(fn func(abi *fixed.String32)) {
	for i := range min(d.CPUABICount, len(d.CPUABI)) {
		fn(&d.CPUABI[i])
	}
}

// Severity is the severity of an event.
type Severity uint8

const (
	// SeverityError is the default severity, used for crashes and unhandled errors.
	SeverityError Severity = iota
	// SeverityWarning is used for handled errors.
	SeverityWarning
	// SeverityInfo is used for informational events.
	SeverityInfo
)

// String returns the schema name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "error"
	}
}

// ParseSeverity returns the severity named s, and false if s is not a known severity.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "error":
		return SeverityError, true
	case "warning":
		return SeverityWarning, true
	case "info":
		return SeverityInfo, true
	}
	return SeverityError, false
}

// HandledState records whether the error was caught by the application or was fatal.
type HandledState struct {
	Severity  Severity
	Unhandled bool

	// ReasonType explains why the severity was picked, for example "signal" or "handledError".
	ReasonType fixed.String32
	// ReasonKey and ReasonValue hold the single attribute of the reason, like signalType=SIGSEGV.
	ReasonKey   fixed.String32
	ReasonValue fixed.String64
}

// Session links the event to the session in which it happened.
type Session struct {
	ID fixed.String64
	// StartedAt is in unix milliseconds, unset when 0.
	StartedAt int64
	Handled   int64
	Unhandled int64
}

// Report is one captured event.
type Report struct {
	Context fixed.String64

	App    App
	Device Device
	User   User

	Metadata    Metadata
	Breadcrumbs Breadcrumbs

	Handled   HandledState
	Exception Exception
	Session   Session
}

// Reset zeroes the report in place.
func (r *Report) Reset() {
	*r = Report{}
}
