package gallery

import (
	"errors"

	apigallery "github.com/opst/gallerysync/pkg/api/types/gallery"
	"github.com/opst/gallerysync/pkg/domain"
)

func ComposeAsset(a domain.Asset) apigallery.Asset {
	var week *string
	if a.Week != nil {
		w := a.Week.String()
		week = &w
	}
	return apigallery.Asset{
		Id:         a.Id,
		ExternalId: a.ExternalId,
		Name:       a.Name,
		Url:        a.Url,
		CreatedAt:  a.CreatedAt,
		Week:       week,
	}
}

// ComposeGallery builds the gallery view.
//
// background is ignored unless hasBackground is true.
func ComposeGallery(assets []domain.Asset, weeks []domain.Week, background domain.Asset, hasBackground bool) apigallery.Gallery {
	g := apigallery.Gallery{
		Assets: make([]apigallery.Asset, 0, len(assets)),
		Weeks:  make([]string, 0, len(weeks)),
	}
	for _, a := range assets {
		g.Assets = append(g.Assets, ComposeAsset(a))
	}
	for _, w := range weeks {
		g.Weeks = append(g.Weeks, w.String())
	}
	if hasBackground {
		bg := ComposeAsset(background)
		g.Background = &bg
	}
	return g
}

func ComposeReport(r domain.ReconcileReport) apigallery.Report {
	return apigallery.Report{Added: r.Added, Removed: r.Removed}
}

func ComposeSyncStatus(s domain.SyncStatus) apigallery.SyncStatus {
	st := apigallery.SyncStatus{
		PassId:     s.PassId,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Report:     ComposeReport(s.Report),
	}
	if s.Err != nil {
		// the cause is for logs. clients see the category only.
		st.Error = domain.ErrSyncFailed.Error()
		if errors.Is(s.Err, domain.ErrSourceUnavailable) {
			st.Error += ": " + domain.ErrSourceUnavailable.Error()
		}
	}
	return st
}
