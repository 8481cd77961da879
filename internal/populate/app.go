package populate

import (
	"github.com/ubuntu/crash-insights/internal/event"
	"gopkg.in/guregu/null.v3"
)

// AppSource holds the identity of the application, known when the agent starts.
type AppSource struct {
	Version      null.String
	ID           null.String
	Type         null.String
	ReleaseStage null.String
	VersionCode  null.Int
	BuildUUID    null.String
	BinaryArch   null.String
	// Durations are in milliseconds.
	Duration             null.Int
	DurationInForeground null.Int
	InForeground         null.Bool
}

// App fills the identity part of the app.
func App(a *event.App, src *AppSource) (st Status) {
	setText(&st, &a.Version, src.Version)
	setText(&st, &a.ID, src.ID)
	setText(&st, &a.Type, src.Type)
	setText(&st, &a.ReleaseStage, src.ReleaseStage)
	if src.VersionCode.Valid {
		a.VersionCode = src.VersionCode.Int64
	}
	setText(&st, &a.BuildUUID, src.BuildUUID)
	setText(&st, &a.BinaryArch, src.BinaryArch)
	setInt(&a.Duration, src.Duration)
	setInt(&a.DurationInForeground, src.DurationInForeground)
	setBool(&a.InForeground, src.InForeground)
	return st
}

// AppMetadataSource holds the application state, known when the event happens.
type AppMetadataSource struct {
	PackageName  null.String
	VersionName  null.String
	ActiveScreen null.String
	Name         null.String
	LowMemory    null.Bool
}

// AppMetadata fills the metadata part of the app.
func AppMetadata(a *event.App, src *AppMetadataSource) (st Status) {
	setText(&st, &a.PackageName, src.PackageName)
	setText(&st, &a.VersionName, src.VersionName)
	setText(&st, &a.ActiveScreen, src.ActiveScreen)
	setText(&st, &a.Name, src.Name)
	setBool(&a.LowMemory, src.LowMemory)
	return st
}
