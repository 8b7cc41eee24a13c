package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/feed"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
)

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "mock-restrooms.json", "path to mock restroom dataset")
		apiKey  = flag.String("api-key", "", "require this X-API-Key when set")
		verbose = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	logger, err := logging.New("info", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	file, err := os.Open(*data)
	if err != nil {
		logger.Fatal("open mock data", zap.Error(err))
	}
	records, err := feed.Decode(file)
	_ = file.Close()
	if err != nil {
		logger.Fatal("parse mock data", zap.Error(err))
	}

	r := chi.NewRouter()
	if *verbose {
		r.Use(middleware.Logger)
	}
	r.Get("/restrooms", func(w http.ResponseWriter, r *http.Request) {
		if *apiKey != "" && r.Header.Get("X-API-Key") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	logger.Info("mock restroom feed listening", zap.String("addr", addr), zap.Int("records", len(records)))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
