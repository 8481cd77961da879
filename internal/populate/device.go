package populate

import (
	"github.com/ubuntu/crash-insights/internal/event"
	"gopkg.in/guregu/null.v3"
)

// DeviceSource holds the identity of the device.
type DeviceSource struct {
	ID           null.String
	OSVersion    null.String
	Manufacturer null.String
	Model        null.String
	Orientation  null.String
	OSBuild      null.String
	// TotalMemory is in bytes.
	TotalMemory null.Int
	APILevel    null.Int
	// CPUABIs are appended to the ABIs already recorded.
	CPUABIs []string
}

// Device fills the identity part of the device.
func Device(d *event.Device, src *DeviceSource) (st Status) {
	setText(&st, &d.ID, src.ID)
	setText(&st, &d.OSVersion, src.OSVersion)
	setText(&st, &d.Manufacturer, src.Manufacturer)
	setText(&st, &d.Model, src.Model)
	setText(&st, &d.Orientation, src.Orientation)
	setText(&st, &d.OSBuild, src.OSBuild)
	if src.TotalMemory.Valid {
		d.TotalMemory = src.TotalMemory.Int64
	}
	if src.APILevel.Valid {
		d.APILevel = src.APILevel.Int64
	}
	for _, abi := range src.CPUABIs {
		st.stored(d.AddABI(abi))
	}
	return st
}

// DeviceMetadataSource holds the device state, known when the event happens.
type DeviceMetadataSource struct {
	Brand            null.String
	Locale           null.String
	LocationStatus   null.String
	NetworkAccess    null.String
	ScreenResolution null.String
	Emulator         null.Bool
	Jailbroken       null.Bool
	DPI              null.Int
	ScreenDensity    null.Float
	Time             null.Time
}

// DeviceMetadata fills the metadata part of the device.
func DeviceMetadata(d *event.Device, src *DeviceMetadataSource) (st Status) {
	setText(&st, &d.Brand, src.Brand)
	setText(&st, &d.Locale, src.Locale)
	setText(&st, &d.LocationStatus, src.LocationStatus)
	setText(&st, &d.NetworkAccess, src.NetworkAccess)
	setText(&st, &d.ScreenResolution, src.ScreenResolution)
	setBool(&d.Emulator, src.Emulator)
	setBool(&d.Jailbroken, src.Jailbroken)
	if src.DPI.Valid {
		d.DPI = src.DPI.Int64
	}
	if src.ScreenDensity.Valid {
		d.ScreenDensity.Set(src.ScreenDensity.Float64)
	}
	if src.Time.Valid {
		d.Time = src.Time.Time.Unix()
	}
	return st
}
