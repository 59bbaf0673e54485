package commands

import (
	"context"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/opst/gallerysync/pkg/auth"
	kcf "github.com/opst/gallerysync/pkg/configs/gallery"
	"github.com/opst/gallerysync/pkg/domain/asset"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog/contentful"
	kdb "github.com/opst/gallerysync/pkg/domain/asset/db"
	"github.com/opst/gallerysync/pkg/utils/echoutil"
)

// Env is what commands operate on.
type Env struct {
	Store   kdb.Store
	Catalog catalog.Interface
	Keyring *auth.Keyring
	Logger  *log.Logger
}

func (e *Env) Close() error {
	if e.Store == nil {
		return nil
	}
	return e.Store.Close()
}

// Opener builds Env from the config file at configPath.
type Opener func(ctx context.Context, configPath string) (*Env, error)

// OpenFromConfig is the Opener used by galleryctl.
func OpenFromConfig(ctx context.Context, configPath string) (*Env, error) {
	conf, err := kcf.LoadGalleryConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := log.New("galleryctl")
	logger.SetOutput(os.Stderr)
	lvl, ok := echoutil.ParseLevel(conf.Log().Level())
	logger.SetLevel(lvl)
	if !ok {
		logger.Warnf("unknown loglevel: %s . fall-backed to warn", conf.Log().Level())
	}

	cc := conf.Catalog()
	cat, err := contentful.New(contentful.Config{
		Endpoint:    cc.Endpoint(),
		Space:       cc.Space(),
		Environment: cc.Environment(),
		Token:       cc.Token(),
		Timeout:     cc.Timeout(),
		Retries:     cc.Retries(),
		Backoff:     cc.Backoff(),
		Limit:       cc.Limit(),
		Rate:        cc.Rate(),
	})
	if err != nil {
		return nil, err
	}

	store, err := asset.OpenStore(ctx, conf.Database())
	if err != nil {
		return nil, err
	}

	return &Env{
		Store:   store,
		Catalog: cat,
		Keyring: auth.NewKeyring(conf.Auth().Key()),
		Logger:  logger,
	}, nil
}
