package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// smoke checks a running API: HTTP probes, gRPC health, and optionally a reviewer login.
func main() {
	httpBase := envOr("STUDIO_SMOKE_HTTP", "http://localhost:8080")
	grpcAddr := envOr("STUDIO_SMOKE_GRPC", "localhost:9090")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hc := &http.Client{Timeout: 5 * time.Second}
	for _, path := range []string{"/healthz", "/readyz"} {
		if err := checkStatus(ctx, hc, httpBase+path, http.StatusOK); err != nil {
			log.Fatalf("%s: %v", path, err)
		}
	}

	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial grpc at %s: %v", grpcAddr, err)
	}
	defer conn.Close()
	if err := checkGRPC(ctx, conn); err != nil {
		log.Fatalf("grpc health: %v", err)
	}

	if email, password := os.Getenv("STUDIO_SMOKE_EMAIL"), os.Getenv("STUDIO_SMOKE_PASSWORD"); email != "" {
		token, err := login(ctx, hc, httpBase, email, password)
		if err != nil {
			log.Fatalf("login: %v", err)
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, httpBase+"/v1/invitations?limit=1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		if err := expect(hc, req, http.StatusOK); err != nil {
			log.Fatalf("list invitations: %v", err)
		}
	}

	fmt.Printf("✅ gymstudio smoke test passed: http=%s grpc=%s\n", httpBase, grpcAddr)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func checkStatus(ctx context.Context, hc *http.Client, url string, want int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return expect(hc, req, want)
}

func expect(hc *http.Client, req *http.Request, want int) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, want %d: %s", resp.StatusCode, want, body)
	}
	return nil
}

func checkGRPC(ctx context.Context, conn grpc.ClientConnInterface) error {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func login(ctx context.Context, hc *http.Client, base, email, password string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("empty token")
	}
	return out.Token, nil
}
