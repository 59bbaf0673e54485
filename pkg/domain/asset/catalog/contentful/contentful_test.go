package contentful_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog/contentful"
	"github.com/opst/gallerysync/pkg/utils/cmp"
	"github.com/opst/gallerysync/pkg/utils/try"
)

const twoAssets = `{
	"sys": {"type": "Array"},
	"total": 2,
	"items": [
		{
			"sys": {"id": "asset-2", "createdAt": "2022-10-12T01:02:03.456Z"},
			"fields": {"title": "two", "file": {"fileName": "two.png", "url": "//images.ctfassets.net/two.png"}}
		},
		{
			"sys": {"id": "asset-1", "createdAt": "2022-10-11T01:02:03Z"},
			"fields": {"file": {"fileName": "one.jpg", "url": "//images.ctfassets.net/one.jpg", "contentType": "image/jpeg"}}
		}
	]
}`

type served struct {
	status int
	body   string
}

type recorder struct {
	mux      sync.Mutex
	requests []*http.Request
}

func (r *recorder) record(req *http.Request) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.requests = append(r.requests, req.Clone(context.Background()))
	return len(r.requests) - 1
}

func (r *recorder) Requests() []*http.Request {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]*http.Request{}, r.requests...)
}

// serve responds with given responses in order, and repeats the last one.
func serve(t *testing.T, responses ...served) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nth := rec.record(r)
		resp := responses[min(nth, len(responses)-1)]
		w.Header().Set("Content-Type", "application/vnd.contentful.delivery.v1+json")
		w.WriteHeader(resp.status)
		w.Write([]byte(resp.body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestee(t *testing.T, srv *httptest.Server, conf contentful.Config) func(context.Context) ([]domain.RemoteAsset, error) {
	t.Helper()
	conf.Endpoint = srv.URL
	if conf.Space == "" {
		conf.Space = "space-id"
	}
	conf.Backoff = time.Millisecond
	testee := try.To(contentful.New(conf, contentful.WithHTTPClient(srv.Client()))).OrFatal(t)
	return testee.Fetch
}

func TestContentful_Fetch(t *testing.T) {
	t.Run("it maps items to remote assets, keeping order", func(t *testing.T) {
		srv, requests := serve(t, served{status: http.StatusOK, body: twoAssets})
		fetch := newTestee(t, srv, contentful.Config{Token: "secret", Environment: "staging", Limit: 100})

		got := try.To(fetch(context.Background())).OrFatal(t)

		want := []domain.RemoteAsset{
			{
				ExternalId: "asset-2", FileName: "two.png", Url: "//images.ctfassets.net/two.png",
				CreatedAt: time.Date(2022, 10, 12, 1, 2, 3, 456_000_000, time.UTC),
			},
			{
				ExternalId: "asset-1", FileName: "one.jpg", Url: "//images.ctfassets.net/one.jpg",
				CreatedAt: time.Date(2022, 10, 11, 1, 2, 3, 0, time.UTC),
			},
		}
		if !cmp.SliceEqWith(got, want, domain.RemoteAsset.Equal) {
			t.Errorf("unexpected assets:\n===actual===\n%+v\n===expected===\n%+v", got, want)
		}

		if len(requests.Requests()) != 1 {
			t.Fatalf("unexpected requests: %d", len(requests.Requests()))
		}
		req := requests.Requests()[0]
		if req.Method != http.MethodGet {
			t.Errorf("method: %s", req.Method)
		}
		if req.URL.Path != "/spaces/space-id/environments/staging/assets" {
			t.Errorf("path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("limit") != "100" {
			t.Errorf("query: %s", req.URL.RawQuery)
		}
		if auth := req.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization header: %s", auth)
		}
	})

	t.Run("body whose items cover total is accepted", func(t *testing.T) {
		srv, _ := serve(t, served{status: http.StatusOK, body: `{"total": 1, "skip": 0, "limit": 100, "items": [
			{"sys": {"id": "asset-1", "createdAt": "2022-10-11T01:02:03Z"}}
		]}`})
		fetch := newTestee(t, srv, contentful.Config{})

		got := try.To(fetch(context.Background())).OrFatal(t)
		if len(got) != 1 || got[0].ExternalId != "asset-1" {
			t.Errorf("unexpected assets: %+v", got)
		}
	})

	t.Run("environment defaults to master, and limit is not sent when not configured", func(t *testing.T) {
		srv, requests := serve(t, served{status: http.StatusOK, body: `{"items": []}`})
		fetch := newTestee(t, srv, contentful.Config{})

		got := try.To(fetch(context.Background())).OrFatal(t)
		if got == nil || len(got) != 0 {
			t.Errorf("got %#v, want empty slice", got)
		}
		req := requests.Requests()[0]
		if req.URL.Path != "/spaces/space-id/environments/master/assets" || req.URL.RawQuery != "" {
			t.Errorf("unexpected url: %s", req.URL)
		}
	})

	type When struct {
		responses []served
		retries   int
	}
	type Then struct {
		requests int
	}
	unavailable := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			srv, requests := serve(t, when.responses...)
			fetch := newTestee(t, srv, contentful.Config{Retries: when.retries})

			got, err := fetch(context.Background())
			if !errors.Is(err, domain.ErrSourceUnavailable) {
				t.Errorf("expected ErrSourceUnavailable, got %v", err)
			}
			if got != nil {
				t.Errorf("assets are returned with error: %+v", got)
			}
			if len(requests.Requests()) != then.requests {
				t.Errorf("requests: got %d, want %d", len(requests.Requests()), then.requests)
			}
		}
	}

	t.Run("unauthorized is not retried", unavailable(
		When{responses: []served{{status: http.StatusUnauthorized, body: `{"message": "bad token"}`}}, retries: 3},
		Then{requests: 1},
	))
	t.Run("not found is not retried", unavailable(
		When{responses: []served{{status: http.StatusNotFound, body: `{}`}}, retries: 3},
		Then{requests: 1},
	))
	t.Run("server errors are retried up to the limit", unavailable(
		When{responses: []served{{status: http.StatusServiceUnavailable}}, retries: 2},
		Then{requests: 3},
	))
	t.Run("too many requests is retried up to the limit", unavailable(
		When{responses: []served{{status: http.StatusTooManyRequests}}, retries: 1},
		Then{requests: 2},
	))
	t.Run("body which is not json is malformed", unavailable(
		When{responses: []served{{status: http.StatusOK, body: `<html></html>`}}},
		Then{requests: 1},
	))
	t.Run("body without items is malformed", unavailable(
		When{responses: []served{{status: http.StatusOK, body: `{"total": 0}`}}},
		Then{requests: 1},
	))
	t.Run("item without sys.id is malformed", unavailable(
		When{responses: []served{{status: http.StatusOK, body: `{"items": [{"sys": {"createdAt": "2022-10-11T01:02:03Z"}}]}`}}},
		Then{requests: 1},
	))

	t.Run("body with fewer items than total is truncated, not a whole catalog", unavailable(
		When{responses: []served{{status: http.StatusOK, body: `{"total": 150, "skip": 0, "limit": 100, "items": [
			{"sys": {"id": "asset-1", "createdAt": "2022-10-11T01:02:03Z"}}
		]}`}}},
		Then{requests: 1},
	))

	t.Run("it succeeds when a retry succeeds", func(t *testing.T) {
		srv, requests := serve(t,
			served{status: http.StatusBadGateway},
			served{status: http.StatusTooManyRequests},
			served{status: http.StatusOK, body: twoAssets},
		)
		fetch := newTestee(t, srv, contentful.Config{Retries: 2})

		got := try.To(fetch(context.Background())).OrFatal(t)
		if len(got) != 2 || len(requests.Requests()) != 3 {
			t.Errorf("unexpected result: (assets, requests) = (%d, %d)", len(got), len(requests.Requests()))
		}
	})

	t.Run("it fails when context is canceled", func(t *testing.T) {
		srv, _ := serve(t, served{status: http.StatusOK, body: twoAssets})
		fetch := newTestee(t, srv, contentful.Config{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := fetch(ctx); !errors.Is(err, domain.ErrSourceUnavailable) {
			t.Errorf("expected ErrSourceUnavailable, got %v", err)
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("space is required", func(t *testing.T) {
		if _, err := contentful.New(contentful.Config{Token: "secret"}); err == nil {
			t.Error("no error without space")
		}
	})
}
