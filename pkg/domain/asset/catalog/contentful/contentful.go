// Package contentful reads assets from Contentful Content Delivery API.
package contentful

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opst/gallerysync/pkg/domain"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog"
	xe "github.com/opst/gallerysync/pkg/errors"
	"github.com/opst/gallerysync/pkg/utils/retry"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint    = "https://cdn.contentful.com"
	DefaultEnvironment = "master"

	// responses larger than this are treated as malformed.
	maxResponseSize = 32 << 20
)

type Config struct {
	// base URL of the API. Default: DefaultEndpoint
	Endpoint string

	// space id. Required.
	Space string

	// environment id. Default: DefaultEnvironment
	Environment string

	// access token of Content Delivery API.
	Token string

	// timeout of each request. 0 means no timeout.
	Timeout time.Duration

	// times to retry on 429 or 5xx.
	Retries int

	// initial interval of retries. It doubles for each retry.
	Backoff time.Duration

	// "limit" query parameter. 0 means not to send it.
	Limit int

	// max requests per second. 0 means unlimited.
	Rate float64
}

type contentful struct {
	endpoint string
	token    string
	limit    int
	retries  int
	backoff  time.Duration

	client  *http.Client
	limiter *rate.Limiter
}

var _ catalog.Interface = &contentful{}

type Option func(*contentful)

// WithHTTPClient replaces the http client to send requests.
//
// Timeout in Config is not applied to the client.
func WithHTTPClient(c *http.Client) Option {
	return func(cf *contentful) {
		cf.client = c
	}
}

// New creates a catalog reading assets from Contentful.
func New(conf Config, options ...Option) (catalog.Interface, error) {
	if conf.Space == "" {
		return nil, xe.New("contentful: space is required")
	}

	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	env := conf.Environment
	if env == "" {
		env = DefaultEnvironment
	}

	base, err := url.JoinPath(endpoint, "spaces", conf.Space, "environments", env, "assets")
	if err != nil {
		return nil, xe.Wrap(err)
	}

	limit := rate.Inf
	if 0 < conf.Rate {
		limit = rate.Limit(conf.Rate)
	}

	cf := &contentful{
		endpoint: base,
		token:    conf.Token,
		limit:    conf.Limit,
		retries:  max(conf.Retries, 0),
		backoff:  conf.Backoff,
		client:   &http.Client{Timeout: conf.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
	}
	if cf.backoff <= 0 {
		cf.backoff = 500 * time.Millisecond
	}
	for _, o := range options {
		o(cf)
	}
	return cf, nil
}

// response of GET /spaces/{space}/environments/{env}/assets, only used fields.
type response struct {
	// number of assets in the catalog. It may exceed len(items) when the response is a page.
	Total *int    `json:"total"`
	Items *[]item `json:"items"`
}

type item struct {
	Sys struct {
		Id        string    `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"sys"`
	Fields struct {
		File struct {
			FileName string `json:"fileName"`
			Url      string `json:"url"`
		} `json:"file"`
	} `json:"fields"`
}

type statusError struct {
	Code int
	Body string
}

func (e statusError) Error() string {
	return fmt.Sprintf("catalog responded status %d: %s", e.Code, e.Body)
}

func (cf *contentful) Fetch(ctx context.Context) ([]domain.RemoteAsset, error) {
	backoff := retry.Limit(
		retry.Immediately(retry.ExponentialBackoff(cf.backoff, 2)),
		cf.retries+1,
	)

	body, err := retry.Blocking(ctx, backoff, func() ([]byte, error) { return cf.get(ctx) })
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}

	assets, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	return assets, nil
}

func (cf *contentful) get(ctx context.Context) ([]byte, error) {
	if err := cf.limiter.Wait(ctx); err != nil {
		return nil, xe.Wrap(err)
	}

	u := cf.endpoint
	if 0 < cf.limit {
		u += "?" + url.Values{"limit": []string{strconv.Itoa(cf.limit)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+cf.token)
	req.Header.Set("Accept", "application/json")

	resp, err := cf.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, xe.Wrap(err)
		}
		return nil, fmt.Errorf("%w: %w", retry.ErrRetry, xe.Wrap(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retry.ErrRetry, xe.Wrap(err))
	}

	switch code := resp.StatusCode; {
	case 200 <= code && code < 300:
		if maxResponseSize < len(body) {
			return nil, xe.New("catalog response is too large")
		}
		return body, nil
	case code == http.StatusTooManyRequests || 500 <= code:
		return nil, fmt.Errorf("%w: %w", retry.ErrRetry, statusError{Code: code, Body: excerpt(body)})
	default:
		return nil, statusError{Code: code, Body: excerpt(body)}
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if 200 < len(s) {
		return s[:200] + "..."
	}
	return s
}

var errMalformed = errors.New("malformed catalog response")

func parse(body []byte) ([]domain.RemoteAsset, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if resp.Items == nil {
		return nil, fmt.Errorf(`%w: no "items"`, errMalformed)
	}

	// a partial fetch would drain assets beyond the page from the mirror.
	if resp.Total != nil && len(*resp.Items) < *resp.Total {
		return nil, fmt.Errorf(
			"%w: truncated: %d of %d items. raise limit of the catalog config",
			errMalformed, len(*resp.Items), *resp.Total,
		)
	}

	assets := make([]domain.RemoteAsset, 0, len(*resp.Items))
	for nth, it := range *resp.Items {
		if it.Sys.Id == "" {
			return nil, fmt.Errorf(`%w: items[%d] has no "sys.id"`, errMalformed, nth)
		}
		assets = append(assets, domain.RemoteAsset{
			ExternalId: it.Sys.Id,
			FileName:   it.Fields.File.FileName,
			Url:        it.Fields.File.Url,
			CreatedAt:  it.Sys.CreatedAt,
		})
	}
	return assets, nil
}
