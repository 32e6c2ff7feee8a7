package server

import (
	"net"
	"net/http"
	"testing"
	"time"

	"kutter-server/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := config.Config{Port: 4321, JWTSecret: "x"}
	srv := NewHTTPServer(cfg, http.NewServeMux())
	if srv.Addr != ":4321" {
		t.Fatalf("expected :4321, got %q", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected ReadHeaderTimeout")
	}
}

func TestRunReturnsListenerError(t *testing.T) {
	// Occupy a port so ListenAndServe fails immediately instead of blocking
	// for a signal.
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := config.Config{Port: port, JWTSecret: "x"}
	if err := Run(cfg, http.NewServeMux()); err == nil {
		t.Fatal("expected an error for an occupied port")
	}
}
