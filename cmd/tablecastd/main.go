// tablecastd is the league table simulation daemon.
// It serves the prediction session API over HTTP with a websocket
// stream of table updates and outright odds.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/phenomenon0/tablecast/pkg/footdata"
	"github.com/phenomenon0/tablecast/pkg/kvstore"
	"github.com/phenomenon0/tablecast/pkg/league"
	"github.com/phenomenon0/tablecast/pkg/sim/engine"
	"github.com/phenomenon0/tablecast/pkg/sim/metrics"
	"github.com/phenomenon0/tablecast/pkg/sim/outright"
	"github.com/phenomenon0/tablecast/pkg/sim/policy"
	"github.com/phenomenon0/tablecast/pkg/streaming"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Flags
	httpAddr    = flag.String("http", ":8080", "HTTP server address for the session API")
	apiToken    = flag.String("token", "", "football-data.org API token (or FOOTDATA_TOKEN env)")
	storeKind   = flag.String("store", "mem", "State store: mem, fs or postgres")
	storeDir    = flag.String("store-dir", "tablecast-data", "Directory for the fs store")
	postgresDSN = flag.String("postgres-dsn", "", "Postgres connection string (or TABLECAST_POSTGRES_DSN env)")
	startLeague = flag.String("league", "", "Start a session for this league at boot (e.g. PL, PD, SA)")
	raceMode    = flag.Bool("race", false, "Start the boot session in race mode")
	trackedIDs  = flag.String("tracked", "", "Comma-separated team IDs to follow in race mode")
	racePolicy  = flag.String("race-policy", "", "Resolution policy for untracked fixtures (auto-by-position, force-draw)")
	fixtureTTL  = flag.Duration("fixture-ttl", 6*time.Hour, "Fixture cache lifetime")
	refreshInt  = flag.Duration("refresh", 15*time.Minute, "Fixture cache refresh interval")
	oddsInt     = flag.Duration("odds-refresh", time.Hour, "Outright odds refresh interval")
	simRuns     = flag.Int("sim-runs", 10000, "Monte Carlo runs per outright refresh")
	strictMode  = flag.Bool("strict", false, "Apply strict submission limits")
	verbose     = flag.Bool("verbose", false, "Verbose logging")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("Starting tablecast daemon")

	// Context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Initialize components
	srv, err := newServer()
	if err != nil {
		log.Fatalf("Failed to initialize daemon: %v", err)
	}

	// Set up callbacks
	srv.session.OnSubmit(func(out engine.SubmitOutcome) {
		log.Printf("[SUBMIT] %s matchday %d: %d applied, %d auto-resolved, %d skipped",
			out.League, out.Matchday, out.Applied, out.AutoResolved, len(out.Skipped))
		if *verbose && len(out.Table) > 0 {
			top := out.Table[0]
			log.Printf("  Leader: %s (%d pts, GD %+d)", top.Team.Name, top.Points, top.GoalDifference)
		}

		// Broadcast to WebSocket clients
		srv.hub.BroadcastTable(out.League, out.Matchday, out.Table)
	})

	srv.session.OnSeasonEnd(func(lg league.League, table []league.Standing) {
		if len(table) > 0 {
			log.Printf("[FINAL] %s season complete: champions %s (%d pts)",
				lg, table[0].Team.Name, table[0].Points)
		}

		// Broadcast to WebSocket clients
		srv.hub.BroadcastSeasonFinal(lg, table)
	})

	srv.refresher.OnOdds(func(lg league.League, odds []outright.Odds) {
		if *verbose {
			log.Printf("[ODDS] %s outright odds refreshed for %d teams", lg, len(odds))
		}
		srv.hub.BroadcastOdds(lg, odds)
	})

	srv.refresher.OnError(func(err error) {
		log.Printf("[ERROR] %v", err)
		srv.hub.BroadcastError(err, "refresher")
	})

	// Start HTTP server
	go srv.startHTTP()

	// Start the background refresher
	if err := srv.refresher.Start(ctx); err != nil {
		log.Fatalf("Failed to start refresher: %v", err)
	}

	// Optionally claim a session at boot
	if *startLeague != "" {
		if err := srv.startBootSession(ctx); err != nil {
			log.Fatalf("Failed to start boot session: %v", err)
		}
	}

	log.Printf("Daemon running (store=%s, http=%s)", *storeKind, *httpAddr)
	log.Printf("WebSocket streaming available at ws://%s/ws", *httpAddr)
	log.Println("Press Ctrl+C to stop")

	// Wait for signal
	<-sigCh
	log.Println("Shutting down...")

	// Graceful shutdown
	srv.refresher.Stop()
	cancel()

	// Print final state
	if status, err := srv.session.Status(); err == nil {
		log.Printf("Final State: league=%s matchday=%d completed=%d phase=%s",
			status.League, status.Matchday, len(status.Completed), status.Phase)
	}

	log.Println("Goodbye!")
}

type tableServer struct {
	source       *footdata.Client
	store        kvstore.Store
	session      *engine.Session
	refresher    *engine.Refresher
	policyEngine *policy.Engine
	metrics      *metrics.SimMetrics
	hub          *streaming.Hub
}

func newServer() (*tableServer, error) {
	srv := &tableServer{
		metrics: metrics.Default(),
		hub:     streaming.NewHub(),
	}

	// Start streaming hub
	go srv.hub.Run()

	// Initialize the provider client
	token := *apiToken
	if token == "" {
		token = os.Getenv("FOOTDATA_TOKEN")
	}
	if token != "" {
		srv.source = footdata.NewClient(footdata.WithToken(token))
	} else {
		log.Println("No API token provided - anonymous tier rate limits apply")
		srv.source = footdata.NewClient()
	}

	// Initialize the state store
	store, err := newStore()
	if err != nil {
		return nil, err
	}
	srv.store = store

	// Initialize the policy engine
	limits := policy.DefaultLimits()
	if *strictMode {
		limits = policy.StrictLimits()
	}
	srv.policyEngine = policy.NewEngine(limits)

	// Initialize the session engine
	config := engine.DefaultConfig()
	config.FixtureTTL = *fixtureTTL
	srv.session = engine.NewSession(config, srv.source, srv.store,
		engine.WithMetrics(srv.metrics),
		engine.WithLimits(srv.policyEngine))

	// Initialize the background refresher
	refConfig := engine.DefaultRefresherConfig()
	refConfig.FixtureInterval = *refreshInt
	refConfig.OddsInterval = *oddsInt
	simulator := outright.New(outright.WithRuns(*simRuns))
	srv.refresher = engine.NewRefresher(refConfig, srv.session, srv.source, simulator)

	return srv, nil
}

func newStore() (kvstore.Store, error) {
	switch *storeKind {
	case "mem":
		return kvstore.NewMem(), nil
	case "fs":
		return kvstore.NewFS(*storeDir)
	case "postgres":
		dsn := *postgresDSN
		if dsn == "" {
			dsn = os.Getenv("TABLECAST_POSTGRES_DSN")
		}
		if dsn == "" {
			return nil, fmt.Errorf("postgres store requires -postgres-dsn or TABLECAST_POSTGRES_DSN")
		}
		pg, err := kvstore.NewPG(dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store %q (want mem, fs or postgres)", *storeKind)
	}
}

func (srv *tableServer) startBootSession(ctx context.Context) error {
	lg, err := league.ParseLeague(*startLeague)
	if err != nil {
		return err
	}

	opts := engine.StartOptions{
		RaceMode:   *raceMode,
		Resolution: *racePolicy,
	}
	for _, id := range strings.Split(*trackedIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.Tracked = append(opts.Tracked, league.TeamID(id))
		}
	}

	status, err := srv.session.StartSession(ctx, lg, opts)
	if err != nil {
		return err
	}

	log.Printf("Boot session %s: %s at matchday %d", status.SessionID, status.League, status.Matchday)
	srv.hub.BroadcastStatus(status)
	return nil
}

func (srv *tableServer) startHTTP() {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.HandlerFor(srv.metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	// WebSocket streaming endpoint
	r.HandleFunc("/ws", srv.hub.ServeWS)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", srv.handleStart).Methods("POST")
	api.HandleFunc("/session", srv.handleStatus).Methods("GET")
	api.HandleFunc("/session", srv.handleReset).Methods("DELETE")
	api.HandleFunc("/session/matchday", srv.handleMatchday).Methods("GET")
	api.HandleFunc("/session/predictions", srv.handleSubmit).Methods("POST")
	api.HandleFunc("/session/standings", srv.handleStandings).Methods("GET")
	api.HandleFunc("/outright", srv.handleOutright).Methods("GET")
	api.HandleFunc("/refresher", srv.handleRefresher).Methods("GET")
	api.HandleFunc("/policy", srv.handlePolicy).Methods("GET")

	logged := handlers.LoggingHandler(os.Stdout, handlers.RecoveryHandler()(r))

	server := &http.Server{
		Addr:         *httpAddr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("HTTP server listening on %s", *httpAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("HTTP server error: %v", err)
	}
}

func (srv *tableServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		League        string   `json:"league"`
		RaceMode      bool     `json:"race_mode"`
		Tracked       []string `json:"tracked"`
		Resolution    string   `json:"resolution_policy"`
		StartMatchday int      `json:"start_matchday"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	lg, err := league.ParseLeague(req.League)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := engine.StartOptions{
		RaceMode:      req.RaceMode,
		Resolution:    req.Resolution,
		StartMatchday: req.StartMatchday,
	}
	for _, id := range req.Tracked {
		opts.Tracked = append(opts.Tracked, league.TeamID(id))
	}

	status, err := srv.session.StartSession(r.Context(), lg, opts)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	srv.hub.BroadcastStatus(status)
	writeJSON(w, http.StatusCreated, status)
}

func (srv *tableServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := srv.session.Status()
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (srv *tableServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := srv.session.Reset(r.Context()); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (srv *tableServer) handleMatchday(w http.ResponseWriter, r *http.Request) {
	view, err := srv.session.PresentMatchday(r.Context())
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}

	srv.hub.BroadcastMatchday(view.League, view)
	writeJSON(w, http.StatusOK, view)
}

func (srv *tableServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matchday    int                 `json:"matchday"`
		Predictions []league.Prediction `json:"predictions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	out, err := srv.session.SubmitPredictions(r.Context(), req.Matchday, req.Predictions)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (srv *tableServer) handleStandings(w http.ResponseWriter, r *http.Request) {
	at := 0
	if s := r.URL.Query().Get("at"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at parameter")
			return
		}
		at = n
	}

	table, err := srv.session.ViewStandings(r.Context(), at)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"league": srv.session.League(),
		"at":     at,
		"table":  table,
	})
}

func (srv *tableServer) handleOutright(w http.ResponseWriter, r *http.Request) {
	odds, lg, at := srv.refresher.Odds()
	if len(odds) == 0 {
		writeError(w, http.StatusNotFound, "no outright odds computed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"league":      lg,
		"computed_at": at,
		"odds":        odds,
	})
}

func (srv *tableServer) handleRefresher(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.refresher.Status())
}

func (srv *tableServer) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.policyEngine.Status())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrLeagueDisabled), errors.Is(err, league.ErrInvalidPrediction):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSeasonFinal),
		errors.Is(err, engine.ErrMatchdayMismatch),
		errors.Is(err, engine.ErrStaleSessionWrite):
		return http.StatusConflict
	case errors.Is(err, footdata.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, footdata.ErrNotFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
