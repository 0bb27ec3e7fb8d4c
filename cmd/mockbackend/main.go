// mockbackend is a throwaway HTTP backend used to exercise the
// orchestrator's readiness probe and health-check paths without a real
// comfyui/a1111/ollama/simulation backend installed.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	delay := flag.Duration("startup-delay", 0, "simulate a slow-starting backend before accepting requests")
	failHealth := flag.Bool("fail-health", false, "always return 503 from /health")
	flag.Parse()

	if *delay > 0 {
		time.Sleep(*delay)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if *failHealth {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mockbackend listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("mockbackend exited: %v", err)
	}
}
