package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/gallerysync/pkg/auth"
	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset"
	catmock "github.com/opst/gallerysync/pkg/domain/asset/catalog/mock"
	"github.com/opst/gallerysync/pkg/domain/asset/db/inmemory"
	"github.com/opst/gallerysync/pkg/domain/asset/db/sqlite"
	"github.com/opst/gallerysync/pkg/gallery"
	"github.com/opst/gallerysync/pkg/utils/try"
)

func TestRoutes(t *testing.T) {
	keyring := auth.NewKeyring([]byte("0123456789abcdef0123456789abcdef"))
	admin := try.To(keyring.NewJWS("1", time.Minute)).OrFatal(t)
	user := try.To(keyring.NewJWS("2", time.Minute)).OrFatal(t)

	mirror := inmemory.New()
	cat := catmock.Returning(domain.RemoteAsset{
		ExternalId: "a", FileName: "a.png", Url: "//images.invalid/a.png",
		CreatedAt: time.Date(2022, 10, 11, 12, 13, 14, 0, time.UTC),
	})

	e := echo.New()
	routes{
		query:    gallery.NewQuery(mirror),
		syncer:   gallery.NewReconciler(asset.New(mirror, cat)),
		tagger:   gallery.NewWeekTagger(mirror),
		authz:    auth.NewSubjects("1"),
		identify: keyring.Verify,
	}.register(e)

	for _, testcase := range []struct {
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{method: http.MethodGet, path: "/api/gallery", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/gallery/", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/gallery/sync", status: http.StatusUnauthorized},
		{method: http.MethodPost, path: "/api/gallery/sync", status: http.StatusUnauthorized},
		{method: http.MethodPost, path: "/api/gallery/sync", token: user, status: http.StatusForbidden},
		{method: http.MethodGet, path: "/api/gallery/sync", token: admin, status: http.StatusNotFound},
		{method: http.MethodPost, path: "/api/gallery/sync", token: admin, status: http.StatusOK},
		{method: http.MethodGet, path: "/api/gallery/sync/", token: admin, status: http.StatusOK},
		{method: http.MethodPost, path: "/api/gallery/week", token: user, body: "week=1", status: http.StatusForbidden},
		{method: http.MethodPost, path: "/api/gallery/week", token: admin, body: "week=1", status: http.StatusOK},
		{method: http.MethodGet, path: "/api/gallery?week=1", status: http.StatusOK},
	} {
		name := testcase.method + " " + testcase.path
		if testcase.token == admin {
			name += " as admin"
		} else if testcase.token == user {
			name += " as user"
		}
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(testcase.method, testcase.path, strings.NewReader(testcase.body))
			if testcase.body != "" {
				req.Header.Set("Content-Type", echo.MIMEApplicationForm)
			}
			if testcase.token != "" {
				req.Header.Set("Authorization", "Bearer "+testcase.token)
			}
			resp := httptest.NewRecorder()
			e.ServeHTTP(resp, req)

			if resp.Code != testcase.status {
				t.Errorf("status: actual = %d, expected = %d (body: %s)", resp.Code, testcase.status, resp.Body.String())
			}
		})
	}

	snapshot := mirror.Snapshot()
	if len(snapshot) != 1 || !snapshot[0].Tagged() || *snapshot[0].Week != "1" {
		t.Errorf("unexpected mirror: %+v", snapshot)
	}
}

func TestCheckSchema(t *testing.T) {
	open := func(t *testing.T) *sqlite.Mirror {
		m := try.To(sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))).OrFatal(t)
		t.Cleanup(func() { m.Close() })
		return m
	}

	t.Run("when schema is outdated and upgrade is not requested, it fails", func(t *testing.T) {
		m := open(t)
		if err := checkSchema(context.Background(), m.Schema(), false); err == nil {
			t.Error("no error")
		}
	})

	t.Run("when upgrade is requested, it upgrades outdated schema", func(t *testing.T) {
		ctx := context.Background()
		m := open(t)
		if err := checkSchema(ctx, m.Schema(), true); err != nil {
			t.Fatal(err)
		}
		if v := try.To(m.Schema().Version(ctx)).OrFatal(t); v != m.Schema().Latest() {
			t.Errorf("version: actual = %d, expected = %d", v, m.Schema().Latest())
		}
		if err := checkSchema(ctx, m.Schema(), false); err != nil {
			t.Errorf("latest schema is rejected: %v", err)
		}
	})
}
