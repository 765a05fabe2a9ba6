// Command engine runs the autonomous job-application workflow engine: an
// HTTP process owning one apply Run per user, backed by a sqlite
// Tracker and an in-memory Event Bus.
package main

import (
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"jobagent-engine/internal/config"
	"jobagent-engine/internal/engine"
	"jobagent-engine/internal/events"
	"jobagent-engine/internal/httpapi"
	"jobagent-engine/internal/personalize"
	"jobagent-engine/internal/portal"
	"jobagent-engine/internal/retry"
	"jobagent-engine/internal/secrets"
	"jobagent-engine/internal/tracker"
)

func main() {
	addrFlag := flag.String("addr", "127.0.0.1:38471", "HTTP listen address")
	flag.Parse()

	dataDir := os.Getenv("JOBAGENT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("level=error msg=\"create data dir failed\" dir=%s err=%v", dataDir, err)
	}

	lock := flock.New(filepath.Join(dataDir, ".engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("level=error msg=\"instance lock failed\" err=%v", err)
	}
	if !locked {
		log.Fatalf("level=error msg=\"another engine process holds the instance lock for this data dir\" dir=%s", dataDir)
	}
	defer lock.Unlock()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("level=error msg=\"config bootstrap failed\" err=%v", err)
	}
	cfg, err := config.Load(userCfgPath)
	if err != nil {
		log.Fatalf("level=error msg=\"config load failed\" path=%s err=%v", userCfgPath, err)
	}
	cfg, validation := config.NormalizeAndValidate(cfg)
	for _, w := range validation.Warnings {
		log.Printf("level=warn msg=\"config warning\" detail=%q", w)
	}
	if !validation.OK() {
		log.Fatalf("level=error msg=\"config invalid\" errors=%v", validation.Errors)
	}

	db, err := tracker.Open(filepath.Join(dataDir, "tracker.db"))
	if err != nil {
		log.Fatalf("level=error msg=\"tracker open failed\" err=%v", err)
	}
	defer db.Close()
	trk := tracker.New(db)

	bus := events.NewBus(cfg.Engine.EventReplayWindow, cfg.Engine.EventPendingLimit, time.Duration(cfg.Engine.PerRunPostTerminalGraceMs)*time.Millisecond)

	apiKey, err := secrets.GetPortalAPIKey("default")
	if err != nil {
		log.Printf("level=warn msg=\"no portal API key in keychain, submitting unauthenticated\" err=%v", err)
	}
	portalClient := portal.NewClient(cfg.Portal.BaseURL, apiKey)
	portalClient.Limiter = rate.NewLimiter(rate.Limit(cfg.Portal.RateLimitRPS), cfg.Portal.RateLimitBurst)

	eng := engine.New(engine.Config{
		Portal:       portalAdapter{client: portalClient},
		Personalizer: personalize.NewHTTPPersonalizer(cfg.Personalize.BaseURL),
		Tracker:      trk,
		Bus:          bus,
		Embedder:     nil,
		RetryCfg: retry.Config{
			MaxAttempts: cfg.Engine.RetryMaxAttempts,
			Base:        time.Duration(cfg.Engine.RetryBaseMs) * time.Millisecond,
			Cap:         time.Duration(cfg.Engine.RetryCapMs) * time.Millisecond,
		},
		MaxParallel:   cfg.Engine.MaxParallelJobsPerRun,
		KillPollEvery: time.Duration(cfg.Engine.KillPollIntervalMs) * time.Millisecond,
	})

	router := httpapi.NewRouter(httpapi.Deps{Engine: eng, Tracker: trk, Config: cfg})

	shutdownToken, err := randomToken(16)
	if err != nil {
		log.Fatalf("level=error msg=\"shutdown token generation failed\" err=%v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	mux.HandleFunc("POST /shutdown", shutdownHandler(&shutdownToken, srv))

	addr := *addrFlag
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("level=error msg=\"listen failed\" addr=%s err=%v", addr, err)
	}
	log.Printf("level=info msg=\"engine listening\" addr=%s data_dir=%s shutdown_token=%s", addr, dataDir, shutdownToken)

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Fatalf("level=error msg=\"server exited\" err=%v", err)
	}
}

