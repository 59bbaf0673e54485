package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	bindgallery "github.com/opst/gallerysync/pkg/api-types-binding/gallery"
	apierr "github.com/opst/gallerysync/pkg/api/types/errors"
	apigallery "github.com/opst/gallerysync/pkg/api/types/gallery"
	"github.com/opst/gallerysync/pkg/domain"
)

// GalleryReader is the read side of the gallery.
//
// *gallery.Query satisfies this.
type GalleryReader interface {
	ListByWeek(ctx context.Context, week domain.Week) ([]domain.Asset, error)
	ListAll(ctx context.Context) ([]domain.Asset, error)
	DistinctWeeks(ctx context.Context) ([]domain.Week, error)
	PickBackground(ctx context.Context) (domain.Asset, bool, error)
}

// Syncer runs reconciliation passes. *gallery.Reconciler satisfies this.
type Syncer interface {
	Reconcile(ctx context.Context) (domain.ReconcileReport, error)
	Last() (domain.SyncStatus, bool)
}

// Tagger is satisfied by *gallery.WeekTagger.
type Tagger interface {
	TagUntagged(ctx context.Context, week domain.Week) (int, error)
}

// GetGalleryHandler responds the gallery view.
//
// Query parameter "week" filters assets. Without it (or empty), all assets are listed.
func GetGalleryHandler(q GalleryReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var assets []domain.Asset
		var err error
		if week := c.QueryParam("week"); week != "" {
			assets, err = q.ListByWeek(ctx, domain.Week(week))
		} else {
			assets, err = q.ListAll(ctx)
		}
		if err != nil {
			return apierr.InternalServerError(err)
		}

		weeks, err := q.DistinctWeeks(ctx)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		bg, ok, err := q.PickBackground(ctx)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, bindgallery.ComposeGallery(assets, weeks, bg, ok))
	}
}

// PostSyncHandler runs a reconciliation pass and responds its report.
func PostSyncHandler(s Syncer) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := s.Reconcile(c.Request().Context())
		if err != nil {
			if errors.Is(err, domain.ErrSyncFailed) {
				return apierr.ServiceUnavailable("the mirror is not changed. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, bindgallery.ComposeReport(report))
	}
}

// GetSyncHandler responds the status of the last reconciliation pass.
func GetSyncHandler(s Syncer) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, ok := s.Last()
		if !ok {
			return apierr.NotFound()
		}
		return c.JSON(http.StatusOK, bindgallery.ComposeSyncStatus(st))
	}
}

// PostWeekHandler tags all untagged assets with the requested week.
//
// The week is taken from form or JSON field "week", and it should not be empty.
func PostWeekHandler(w Tagger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := new(apigallery.TagRequest)
		if err := c.Bind(req); err != nil {
			return apierr.BadRequest("request body should have field \"week\"", err)
		}
		week := strings.TrimSpace(req.Week)
		if week == "" {
			return apierr.BadRequest("\"week\" is required", nil)
		}

		n, err := w.TagUntagged(c.Request().Context(), domain.Week(week))
		if err != nil {
			return apierr.InternalServerError(err)
		}
		return c.JSON(http.StatusOK, apigallery.TagResult{Tagged: n})
	}
}
