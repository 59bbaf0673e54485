package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// the external catalog could not be read, or its response is malformed.
	ErrSourceUnavailable = errors.New("asset source unavailable")

	// a reconciliation pass is aborted. The mirror is left as it was before the pass.
	ErrSyncFailed = errors.New("sync failed")

	// requested record is not found.
	ErrMissing = errors.New("missing")
)

// Week is a label attached to assets locally.
//
// It is opaque: neither range nor uniqueness is assumed.
type Week string

func (w Week) String() string {
	return string(w)
}

// Asset is a record in the local mirror of the external catalog.
type Asset struct {
	// surrogate id assigned by the mirror on insert.
	Id int64

	// id assigned by the external catalog. Unique in the mirror.
	ExternalId string

	// display filename. It is not updated after insert.
	Name string

	// location of the binary. It is not updated after insert.
	Url string

	// creation timestamp reported by the external catalog.
	CreatedAt time.Time

	// nil means "not tagged yet". Once set, it is never overwritten.
	Week *Week
}

func (a *Asset) Tagged() bool {
	return a != nil && a.Week != nil
}

func (a *Asset) Equal(o *Asset) bool {
	if a == nil || o == nil {
		return a == nil && o == nil
	}

	sameWeek := (a.Week == nil && o.Week == nil) ||
		(a.Week != nil && o.Week != nil && *a.Week == *o.Week)

	return sameWeek &&
		a.Id == o.Id &&
		a.ExternalId == o.ExternalId &&
		a.Name == o.Name &&
		a.Url == o.Url &&
		a.CreatedAt.Equal(o.CreatedAt)
}

// RemoteAsset is an item of the external catalog.
type RemoteAsset struct {
	ExternalId string
	FileName   string
	Url        string
	CreatedAt  time.Time
}

func (r RemoteAsset) Equal(o RemoteAsset) bool {
	return r.ExternalId == o.ExternalId &&
		r.FileName == o.FileName &&
		r.Url == o.Url &&
		r.CreatedAt.Equal(o.CreatedAt)
}

// ReconcileReport counts mutations applied by one reconciliation pass.
type ReconcileReport struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// SyncStatus describes a reconciliation pass which has been finished.
type SyncStatus struct {
	PassId     string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     ReconcileReport

	// nil if the pass succeeded.
	Err error
}

func (s SyncStatus) Succeeded() bool {
	return s.Err == nil
}

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return ErrMissing
}
