package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	log.SetFlags(0)
	var (
		grpcAddr = flag.String("grpc", envOr("INSTITUTEOS_SMOKE_GRPC_ADDR", "localhost:9091"), "gRPC health address")
		apiURL   = flag.String("api", envOr("INSTITUTEOS_SMOKE_API_URL", "http://localhost:3001"), "API base URL")
		host     = flag.String("host", envOr("INSTITUTEOS_SMOKE_PLATFORM_HOST", "platform.localhost"), "Host header for platform requests")
		email    = flag.String("email", os.Getenv("INSTITUTEOS_BOOTSTRAP_EMAIL"), "platform operator email")
		password = flag.String("password", os.Getenv("INSTITUTEOS_BOOTSTRAP_PASSWORD"), "platform operator password")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial %s: %v", *grpcAddr, err)
	}
	defer conn.Close()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("health check: %v", err)
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatalf("api not serving: %s", health.GetStatus())
	}

	if *email == "" {
		fmt.Println("✅ health smoke test passed (login skipped: no operator credentials)")
		return
	}

	token, err := platformLogin(ctx, *apiURL, *host, *email, *password)
	if err != nil {
		log.Fatalf("platform login: %v", err)
	}
	count, err := countInstitutes(ctx, *apiURL, *host, token)
	if err != nil {
		log.Fatalf("list institutes: %v", err)
	}

	fmt.Printf("✅ api smoke test passed: institutes=%d\n", count)
}

func platformLogin(ctx context.Context, baseURL, host, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/auth/platform-login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Host = host
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return out.AccessToken, nil
}

func countInstitutes(ctx context.Context, baseURL, host, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/institutes", nil)
	if err != nil {
		return 0, err
	}
	req.Host = host
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Institutes []json.RawMessage `json:"institutes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return len(out.Institutes), nil
}
