package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/example/quantum-lotto/internal/auth"
	"github.com/example/quantum-lotto/internal/game"
	"github.com/example/quantum-lotto/internal/ledger"
	"github.com/example/quantum-lotto/internal/scheduler"
	srv "github.com/example/quantum-lotto/internal/server"
	"github.com/example/quantum-lotto/internal/store"
	"github.com/example/quantum-lotto/internal/tuning"
	"github.com/example/quantum-lotto/internal/universe"
)

func main() {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	var (
		httpPort   = flag.String("http-port", "8080", "HTTP port")
		certFile   = flag.String("cert", "", "Path to certificate file")
		keyFile    = flag.String("key", "", "Path to private key file")
		dbPath     = flag.String("db", "quantum_lotto.db", "Path to the SQLite database")
		tuningPath = flag.String("tuning", "", "Optional tuning YAML override")
	)
	flag.Parse()

	cfg := tuning.Default()
	if *tuningPath != "" {
		var err error
		if cfg, err = tuning.Load(*tuningPath); err != nil {
			log.Fatalf("load tuning: %v", err)
		}
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer db.Close()

	uni, err := universe.Load(db)
	if err != nil {
		log.Fatalf("load universe: %v", err)
	}
	led := ledger.New(db)
	g := game.New(uni, led, cfg, nil)

	tokens := auth.NewConfig()
	gs := srv.NewGameServer(g, tokens)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(uni, led, cfg,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		gs.BroadcastCollapse)
	go sched.Run(ctx)

	r := mux.NewRouter()

	// CORS headers first so browser clients can talk to us from anywhere
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if req.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	r.HandleFunc("/ping", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}).Methods("GET")

	r.HandleFunc("/auth/guest", gs.HandleGuestToken).Methods("POST")
	r.HandleFunc("/status", gs.HandleStatus).Methods("GET")
	r.HandleFunc("/leaderboard", gs.HandleLeaderboard).Methods("GET")

	// WebSocket endpoint (token via query parameter)
	r.Handle("/ws", tokens.Middleware(http.HandlerFunc(gs.HandleWS)))

	// Player commands require authentication
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(tokens.Middleware)
	protected.HandleFunc("/pull", gs.HandlePull).Methods("POST")
	protected.HandleFunc("/stabilize", gs.HandleStabilize).Methods("POST")
	protected.HandleFunc("/inventory", gs.HandleInventory).Methods("GET")
	protected.HandleFunc("/message", gs.HandleActivity).Methods("POST")

	addr := ":" + *httpPort
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if *certFile != "" && *keyFile != "" {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		log.Printf("Quantum Lotto engine (HTTPS) listening on %s", addr)
		if err := server.ListenAndServeTLS(*certFile, *keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTPS server failed:", err)
		}
		return
	}

	log.Printf("Quantum Lotto engine (HTTP) listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server failed:", err)
	}
}
