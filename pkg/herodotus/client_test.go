// Copyright 2025 ZeroXBridge
//
// Atlantic client tests

package herodotus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

func TestSubmitJob(t *testing.T) {
	var gotAPIKey, gotDirection string
	var gotProgram bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.URL.Query().Get("apiKey")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotDirection = r.FormValue("direction")
		_, _, err := r.FormFile("program")
		gotProgram = err == nil
		w.Write([]byte(`{"atlanticQueryId":"q-1"}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	program := filepath.Join(dir, "program.sierra.json")
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(program, []byte("{}"), 0o600)
	os.WriteFile(input, []byte("1 2 3"), 0o600)

	cfg := &config.Config{Herodotus: config.HerodotusConfig{
		Endpoint: server.URL,
		APIKey:   "secret-key",
	}}
	c := NewClient(cfg)

	resp, err := c.SubmitJob(context.Background(), program, input, "deposit")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if resp != `{"atlanticQueryId":"q-1"}` {
		t.Errorf("response: got %s", resp)
	}
	if gotAPIKey != "secret-key" {
		t.Errorf("api key: got %q", gotAPIKey)
	}
	if gotDirection != "deposit" {
		t.Errorf("direction: got %q", gotDirection)
	}
	if !gotProgram {
		t.Error("program file must be attached")
	}
}

func TestSubmitJob_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	dir := t.TempDir()
	program := filepath.Join(dir, "p.json")
	input := filepath.Join(dir, "i.txt")
	os.WriteFile(program, []byte("{}"), 0o600)
	os.WriteFile(input, []byte("1"), 0o600)

	cfg := &config.Config{Herodotus: config.HerodotusConfig{Endpoint: server.URL}}
	c := NewClient(cfg)

	if _, err := c.SubmitJob(context.Background(), program, input, "withdrawal"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
