package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := checkStatus(context.Background(), srv.Client(), srv.URL+"/healthz", http.StatusOK); err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if err := checkStatus(context.Background(), srv.Client(), srv.URL+"/readyz", http.StatusOK); err == nil {
		t.Fatal("expected readyz failure")
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	}))
	defer srv.Close()

	token, err := login(context.Background(), srv.Client(), srv.URL, "a@test.com", "right")
	if err != nil || token != "tok" {
		t.Fatalf("login = %q, %v", token, err)
	}
	if _, err := login(context.Background(), srv.Client(), srv.URL, "a@test.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}
