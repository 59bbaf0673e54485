// Package gallery defines JSON payloads of the gallery API.
package gallery

import "time"

type Asset struct {
	Id         int64     `json:"id"`
	ExternalId string    `json:"externalId"`
	Name       string    `json:"name"`
	Url        string    `json:"url"`
	CreatedAt  time.Time `json:"createdAt"`

	// null when the asset is not tagged yet.
	Week *string `json:"week"`
}

func (a Asset) Equal(b Asset) bool {
	sameWeek := (a.Week == nil && b.Week == nil) ||
		(a.Week != nil && b.Week != nil && *a.Week == *b.Week)
	return sameWeek &&
		a.Id == b.Id &&
		a.ExternalId == b.ExternalId &&
		a.Name == b.Name &&
		a.Url == b.Url &&
		a.CreatedAt.Equal(b.CreatedAt)
}

// Gallery is the response of the gallery view.
type Gallery struct {
	Assets []Asset  `json:"assets"`
	Weeks  []string `json:"weeks"`

	// null when the mirror is empty.
	Background *Asset `json:"background"`
}

type Report struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// SyncStatus is the result of the last reconciliation pass.
type SyncStatus struct {
	PassId     string    `json:"passId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Report     Report    `json:"report"`

	// empty when the pass succeeded.
	Error string `json:"error,omitempty"`
}

type TagRequest struct {
	Week string `json:"week" form:"week"`
}

type TagResult struct {
	Tagged int `json:"tagged"`
}
