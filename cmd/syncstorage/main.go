// syncstorage serves the sync 1.5 storage protocol over a SQL backend.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/10allday-services/syncstorage/go/httputils"
	"github.com/10allday-services/syncstorage/go/metrics2"
	"github.com/10allday-services/syncstorage/go/sklog"
	"github.com/10allday-services/syncstorage/syncstorage/go/api"
	"github.com/10allday-services/syncstorage/syncstorage/go/config"
	"github.com/10allday-services/syncstorage/syncstorage/go/db"
	"github.com/10allday-services/syncstorage/syncstorage/go/db/mockdb"
	"github.com/10allday-services/syncstorage/syncstorage/go/db/sqldb"
)

const appVersion = "0.1.0"

func main() {
	var (
		configFile = flag.String("config", "", "Path to the JSON5 configuration file.")
		port       = flag.String("port", ":8000", "HTTP service address.")
		promPort   = flag.String("prom_port", ":20000", "Metrics service address.")
		mock       = flag.Bool("mock", false, "Serve the mock backend instead of a database.")
	)
	flag.Parse()

	metrics2.InitPrometheus(*promPort)
	ctx := context.Background()

	var cfg *config.Config
	var pool db.Pool
	if *mock {
		cfg = config.New()
		pool = mockdb.New()
	} else {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			sklog.Fatalf("Loading config: %s", err)
		}
		pool, err = sqldb.New(ctx, cfg)
		if err != nil {
			sklog.Fatalf("Connecting to database: %s", err)
		}
	}
	defer pool.Close()

	liveness := metrics2.NewLiveness("syncstorage_db")
	go func() {
		for range time.Tick(time.Minute) {
			if ok, err := pool.Check(ctx); err == nil && ok {
				liveness.Reset()
			}
		}
	}()

	a := api.New(pool, cfg, appVersion)
	r := chi.NewRouter()
	a.AddHandlers(r)

	server := &http.Server{
		Addr:              *port,
		Handler:           httputils.LoggingRequestResponse(r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	sklog.Infof("Ready to serve on %s", *port)
	sklog.Fatal(server.ListenAndServe())
}
