package event

import (
	"github.com/ubuntu/crash-insights/internal/constants"
	"github.com/ubuntu/crash-insights/internal/fixed"
)

// BreadcrumbType categorizes a breadcrumb.
type BreadcrumbType uint8

// Breadcrumb types, as accepted by the ingestion schema.
const (
	BreadcrumbManual BreadcrumbType = iota
	BreadcrumbError
	BreadcrumbLog
	BreadcrumbNavigation
	BreadcrumbProcess
	BreadcrumbRequest
	BreadcrumbState
	BreadcrumbUser
)

var breadcrumbTypeNames = [...]string{
	BreadcrumbManual:     "manual",
	BreadcrumbError:      "error",
	BreadcrumbLog:        "log",
	BreadcrumbNavigation: "navigation",
	BreadcrumbProcess:    "process",
	BreadcrumbRequest:    "request",
	BreadcrumbState:      "state",
	BreadcrumbUser:       "user",
}

// String returns the schema name of the breadcrumb type.
func (t BreadcrumbType) String() string {
	if int(t) < len(breadcrumbTypeNames) {
		return breadcrumbTypeNames[t]
	}
	return breadcrumbTypeNames[BreadcrumbManual]
}

// ParseBreadcrumbType returns the type named s, and false when s is unknown.
func ParseBreadcrumbType(s string) (BreadcrumbType, bool) {
	for i, name := range breadcrumbTypeNames {
		if name == s {
			return BreadcrumbType(i), true
		}
	}
	return BreadcrumbManual, false
}

// BreadcrumbPair is a key/value attached to a breadcrumb.
type BreadcrumbPair struct {
	Key   fixed.String64
	Value fixed.String64
}

// Breadcrumb is a timestamped trail entry preceding an event.
type Breadcrumb struct {
	Name fixed.String64
	Type BreadcrumbType
	// Timestamp is in unix milliseconds.
	Timestamp int64

	Metadata      [constants.MaxBreadcrumbMetadata]BreadcrumbPair
	MetadataCount int
}

// AddMetadata attaches a key/value. It returns false, dropping the pair, when the breadcrumb is full.
func (b *Breadcrumb) AddMetadata(key, value string) (added, truncated bool) {
	if b.MetadataCount >= len(b.Metadata) {
		return false, false
	}
	p := &b.Metadata[b.MetadataCount]
	_, tk := p.Key.Set(key)
	_, tv := p.Value.Set(value)
	b.MetadataCount++
	return true, tk || tv
}

// Breadcrumbs is a ring of the most recent breadcrumbs.
type Breadcrumbs struct {
	Crumbs [constants.MaxBreadcrumbs]Breadcrumb
	// First is the index of the oldest crumb.
	First int
	Count int
}

// Add returns the slot for a new breadcrumb, overwriting the oldest one when the ring is full.
// It reports whether a breadcrumb was evicted. The returned slot is cleared.
func (bs *Breadcrumbs) Add() (b *Breadcrumb, evicted bool) {
	var i int
	if bs.Count < len(bs.Crumbs) {
		i = (bs.First + bs.Count) % len(bs.Crumbs)
		bs.Count++
	} else {
		i = bs.First
		bs.First = (bs.First + 1) % len(bs.Crumbs)
		evicted = true
	}

	bs.Crumbs[i] = Breadcrumb{}
	return &bs.Crumbs[i], evicted
}

// Len returns the number of stored breadcrumbs.
func (bs *Breadcrumbs) Len() int {
	return bs.Count
}

// At returns the i-th breadcrumb, oldest first.
func (bs *Breadcrumbs) At(i int) *Breadcrumb {
	return &bs.Crumbs[(bs.First+i)%len(bs.Crumbs)]
}
