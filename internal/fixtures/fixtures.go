// Package fixtures holds canonical event parts and the JSON they are expected to serialize to.
//
// Fixtures are built through the populate producers and checked against the serializer,
// which makes them usable both from tests and from the command line as a self check.
package fixtures

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ubuntu/crash-insights/internal/event"
	"github.com/ubuntu/crash-insights/internal/populate"
	"github.com/ubuntu/crash-insights/internal/serializer"
	"gopkg.in/guregu/null.v3"
)

var (
	// ErrMismatch is returned when the serialized fixture differs from its expected JSON.
	ErrMismatch = errors.New("serialized fixture does not match the expected JSON")
	// ErrUnknownKind is returned for a kind that has no fixture.
	ErrUnknownKind = errors.New("unknown fixture kind")
	// ErrUnknownCase is returned for a case number that has no fixture.
	ErrUnknownCase = errors.New("unknown fixture case")
)

// Case selects one of the canonical instances.
type Case int

const (
	// CaseDefault is the first instance of every kind.
	CaseDefault Case = iota
	// CaseAlternate only differs from CaseDefault for users.
	CaseAlternate
)

// Cases returns the known cases.
func Cases() []Case {
	return []Case{CaseDefault, CaseAlternate}
}

// Kind is the part of the event a fixture covers.
type Kind string

// Fixture kinds.
const (
	KindUser           Kind = "user"
	KindApp            Kind = "app"
	KindAppMetadata    Kind = "app-metadata"
	KindDevice         Kind = "device"
	KindDeviceMetadata Kind = "device-metadata"
	KindCustomMetadata Kind = "custom-metadata"
	KindContext        Kind = "context"
	KindHandledState   Kind = "handled-state"
)

var kinds = []Kind{
	KindUser,
	KindApp,
	KindAppMetadata,
	KindDevice,
	KindDeviceMetadata,
	KindCustomMetadata,
	KindContext,
	KindHandledState,
}

// Kinds returns the fixture kinds, in a stable order.
func Kinds() []Kind {
	return slices.Clone(kinds)
}

// deviceTime is 00:00 on the first day of 2029, in UTC.
var deviceTime = time.Date(2029, time.January, 1, 0, 0, 0, 0, time.UTC)

// User returns the user of case c.
func User(c Case) *event.User {
	src := populate.UserSource{
		ID:    null.StringFrom("1234"),
		Email: null.StringFrom("fenton@io.example.com"),
		Name:  null.StringFrom("Fenton"),
	}
	if c == CaseAlternate {
		src = populate.UserSource{
			ID:    null.StringFrom("456"),
			Email: null.StringFrom("jamie@bugsnag.com"),
			Name:  null.StringFrom("Jamie"),
		}
	}

	var u event.User
	populate.User(&u, &src)
	return &u
}

// App returns an app with its identity part filled.
func App(Case) *event.App {
	var a event.App
	populate.App(&a, &populate.AppSource{
		Version:              null.StringFrom("22"),
		ID:                   null.StringFrom("com.bugsnag.example"),
		Type:                 null.StringFrom("android"),
		ReleaseStage:         null.StringFrom("prod"),
		VersionCode:          null.IntFrom(55),
		BuildUUID:            null.StringFrom("1234-uuid"),
		BinaryArch:           null.StringFrom("x86"),
		Duration:             null.IntFrom(6502),
		DurationInForeground: null.IntFrom(6502),
		InForeground:         null.BoolFrom(true),
	})
	return &a
}

// AppMetadata returns an app with its metadata part filled.
func AppMetadata(Case) *event.App {
	var a event.App
	populate.AppMetadata(&a, &populate.AppMetadataSource{
		PackageName:  null.StringFrom("com.bugsnag.example"),
		VersionName:  null.StringFrom("5.0"),
		ActiveScreen: null.StringFrom("MainActivity"),
		Name:         null.StringFrom("PhotoSnap"),
		LowMemory:    null.BoolFrom(true),
	})
	return &a
}

// Device returns a device with its identity part filled.
func Device(Case) *event.Device {
	var d event.Device
	populate.Device(&d, &populate.DeviceSource{
		ID:           null.StringFrom("f5gh7"),
		OSVersion:    null.StringFrom("8.1"),
		Manufacturer: null.StringFrom("Samsung"),
		Model:        null.StringFrom("S7"),
		Orientation:  null.StringFrom("portrait"),
		OSBuild:      null.StringFrom("BullDog 5.2"),
		TotalMemory:  null.IntFrom(512340922),
		APILevel:     null.IntFrom(29),
		CPUABIs:      []string{"x86"},
	})
	return &d
}

// DeviceMetadata returns a device with its metadata part filled.
func DeviceMetadata(Case) *event.Device {
	var d event.Device
	populate.DeviceMetadata(&d, &populate.DeviceMetadataSource{
		Brand:            null.StringFrom("Samsung"),
		Locale:           null.StringFrom("En"),
		LocationStatus:   null.StringFrom("cellular"),
		NetworkAccess:    null.StringFrom("full"),
		ScreenResolution: null.StringFrom("1024x768"),
		Emulator:         null.BoolFrom(false),
		Jailbroken:       null.BoolFrom(false),
		DPI:              null.IntFrom(320),
		ScreenDensity:    null.FloatFrom(3.5),
		Time:             null.TimeFrom(deviceTime),
	})
	return &d
}

// CustomMetadata returns an empty metadata table.
func CustomMetadata(Case) *event.Metadata {
	return &event.Metadata{}
}

// Context returns a report with only its context and active screen.
func Context(Case) *event.Report {
	var r event.Report
	populate.Context(&r, null.StringFrom("CustomContext"))
	populate.AppMetadata(&r.App, &populate.AppMetadataSource{ActiveScreen: null.StringFrom("ExampleActivity")})
	return &r
}

// HandledState returns a report left to its default handled state.
func HandledState(Case) *event.Report {
	return &event.Report{}
}

var expected = map[Kind]map[Case]string{
	KindUser: {
		CaseDefault:   `{"id":"1234","email":"fenton@io.example.com","name":"Fenton"}`,
		CaseAlternate: `{"id":"456","email":"jamie@bugsnag.com","name":"Jamie"}`,
	},
	KindApp: {
		CaseDefault: `{"version":"22","id":"com.bugsnag.example","type":"android","releaseStage":"prod","versionCode":55,` +
			`"buildUUID":"1234-uuid","binaryArch":"x86","inForeground":true,"duration":6502,"durationInForeground":6502}`,
	},
	KindAppMetadata: {
		CaseDefault: `{"packageName":"com.bugsnag.example","versionName":"5.0","activeScreen":"MainActivity","name":"PhotoSnap","lowMemory":true}`,
	},
	KindDevice: {
		CaseDefault: `{"id":"f5gh7","osVersion":"8.1","manufacturer":"Samsung","model":"S7","orientation":"portrait",` +
			`"osBuild":"BullDog 5.2","totalMemory":512340922,"apiLevel":29,"cpuAbi":["x86"]}`,
	},
	KindDeviceMetadata: {
		CaseDefault: `{"brand":"Samsung","locale":"En","locationStatus":"cellular","networkAccess":"full","screenResolution":"1024x768",` +
			`"emulator":false,"jailbroken":false,"dpi":320,"screenDensity":3.5,"time":"2029-01-01T00:00:00Z"}`,
	},
	KindCustomMetadata: {
		CaseDefault: `{}`,
	},
	KindContext: {
		CaseDefault: `{"context":"CustomContext","app":{"activeScreen":"ExampleActivity"},"severity":"error","unhandled":false,"exceptions":[]}`,
	},
	KindHandledState: {
		CaseDefault: `{"severity":"error","unhandled":false,"exceptions":[]}`,
	},
}

func checkCase(c Case) error {
	if !slices.Contains(Cases(), c) {
		return fmt.Errorf("%w: %d", ErrUnknownCase, c)
	}
	return nil
}

// Expected returns the JSON the fixture of kind k and case c serializes to.
func Expected(k Kind, c Case) (string, error) {
	if err := checkCase(c); err != nil {
		return "", err
	}
	cases, ok := expected[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if want, ok := cases[c]; ok {
		return want, nil
	}
	// Only users have per case content.
	return cases[CaseDefault], nil
}

// Serialize builds the fixture of kind k and case c, and serializes it.
func Serialize(k Kind, c Case) ([]byte, error) {
	if err := checkCase(c); err != nil {
		return nil, err
	}

	switch k {
	case KindUser:
		return serializer.User(User(c)), nil
	case KindApp:
		return serializer.App(App(c)), nil
	case KindAppMetadata:
		return serializer.AppMetadata(AppMetadata(c)), nil
	case KindDevice:
		return serializer.Device(Device(c)), nil
	case KindDeviceMetadata:
		return serializer.DeviceMetadata(DeviceMetadata(c)), nil
	case KindCustomMetadata:
		return serializer.Metadata(CustomMetadata(c)), nil
	case KindContext:
		return serializer.Marshal(Context(c), nil)
	case KindHandledState:
		return serializer.Marshal(HandledState(c), nil)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Validate serializes the fixture of kind k and case c and compares it with its expected JSON.
func Validate(k Kind, c Case) error {
	want, err := Expected(k, c)
	if err != nil {
		return err
	}
	got, err := Serialize(k, c)
	if err != nil {
		return fmt.Errorf("could not serialize %s fixture %d: %v", k, c, err)
	}
	if string(got) != want {
		return fmt.Errorf("%w for %s fixture %d:\n got: %s\nwant: %s", ErrMismatch, k, c, got, want)
	}
	return nil
}
