package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/gallerysync/pkg/auth"
	kcf "github.com/opst/gallerysync/pkg/configs/gallery"
	"github.com/opst/gallerysync/pkg/domain/asset"
	"github.com/opst/gallerysync/pkg/domain/asset/catalog/contentful"
	"github.com/opst/gallerysync/pkg/gallery"
	"github.com/opst/gallerysync/pkg/utils/echoutil"
	"github.com/opst/gallerysync/pkg/utils/filewatch"
)

func main() {
	configPath := flag.String("config", os.Getenv("GALLERY_CONFIG"), "config file path. (env: GALLERY_CONFIG)")
	upgradeSchema := flag.Bool("upgrade-schema", false, "upgrade schema of the mirror database before starting")
	flag.Parse()

	if *configPath == "" {
		log.Fatalln("config file is not specified. use --config or GALLERY_CONFIG")
	}

	// read configfile
	conf, err := kcf.LoadGalleryConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}

	e := echo.New()

	// set log
	echoutil.SetLevel(e, conf.Log().Level())
	if file := conf.Log().File(); file != "" {
		closer := echoutil.SetFileOutput(e, file, echoutil.RotateOption{
			MaxSizeMB:  conf.Log().MaxSizeMB(),
			MaxBackups: conf.Log().MaxBackups(),
			MaxAgeDays: conf.Log().MaxAgeDays(),
		})
		defer closer.Close()
	}
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	ctx := context.Background()
	store, err := asset.OpenStore(ctx, conf.Database())
	if err != nil {
		log.Fatalf("can not connect to the database: %s", err)
	}
	defer store.Close()

	if err := checkSchema(ctx, store.Schema(), *upgradeSchema); err != nil {
		log.Fatalf("schema: %s", err)
	}

	cc := conf.Catalog()
	catalog, err := contentful.New(contentful.Config{
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
		log.Fatalf("can not configure catalog: %s", err)
	}

	assets := asset.New(store, catalog)
	keyring := auth.NewKeyring(conf.Auth().Key())

	routes{
		query:    gallery.NewQuery(store),
		syncer:   gallery.NewReconciler(assets, gallery.WithLogger(e.Logger)),
		tagger:   gallery.NewWeekTagger(store, gallery.WithLogger(e.Logger)),
		authz:    auth.NewSubjects(conf.Auth().Admins()...),
		identify: keyring.Verify,
	}.register(e)

	log.Println("registred routes:")
	for _, r := range e.Routes() {
		log.Println(r.Method, r.Path)
	}

	watch, cancel, err := filewatch.UntilModifyContext(ctx, *configPath)
	if err != nil {
		log.Fatalf("can not watch configration: %s", err)
	}
	defer cancel()
	context.AfterFunc(watch, func() {
		if cause := context.Cause(watch); cause != nil {
			log.Printf("quit to restart server: %s", cause)
		}
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown by config update: %s", err)
		}
	})

	addr := ":" + strconv.Itoa(int(conf.Server().Port()))
	if cert, key := conf.Server().TLS(); cert != "" && key != "" {
		e.Logger.Fatal(e.StartTLS(addr, cert, key))
	} else {
		e.Logger.Fatal(e.Start(addr))
	}
}
