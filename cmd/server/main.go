package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mkarlsen/throttle/internal/log"
	"github.com/mkarlsen/throttle/limiter"
	"github.com/mkarlsen/throttle/middleware"
	"github.com/mkarlsen/throttle/service"
)

func HelloHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Hello, World!"))
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/hello", HelloHandler)

	svc := service.New(
		service.WithRegistry(limiter.NewRegistry(limiter.DefaultMaxEntries)),
	)

	config := &middleware.Config{
		Extractor: middleware.NewHeaderExtractor("X-Forwarded-For"),
		Service:   svc,
		Operation: "token_bucket",
		Params: service.Params{
			"limit":       30,
			"refill_rate": 0.5,
		},
	}

	wrappedMux := middleware.NewHandler(mux, config)

	// use wrappedMux instead of mux as root handler
	log.Logger().Info("Run a server listening to localhost:8080")
	err := http.ListenAndServe("localhost:8080", wrappedMux)
	if err != nil {
		log.Logger().Fatal("Failed to serve handler", zap.Error(err))
	}
}
