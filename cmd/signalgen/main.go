// cmd/signalgen — Demo webhook client.
// Posts a sequence of sample TradingView-style signals at a running relay,
// for smoke-testing the full pipeline without the charting platform.
//
// Config (env vars):
//
//	RELAY_URL       — relay base URL      (default: "http://localhost:8000")
//	WEBHOOK_SECRET  — shared secret       (default: "your-secret-key")
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	baseURL := getEnv("RELAY_URL", "http://localhost:8000")
	secret := getEnv("WEBHOOK_SECRET", "your-secret-key")

	client := &http.Client{Timeout: 10 * time.Second}
	now := time.Now().UTC().Format(time.RFC3339)

	samples := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"LONG entry", map[string]interface{}{
			"signal_type": "entry_long",
			"symbol":      "BTCUSDT",
			"timeframe":   "7m",
			"price":       45000.50,
			"momentum":    -5.3,
			"vwap":        45100.00,
			"atr_high":    46000.00,
			"atr_low":     44000.00,
			"timestamp":   now,
		}},
		{"LONG exit with TP/SL", map[string]interface{}{
			"signal_type": "exit_long",
			"symbol":      "BTCUSDT",
			"timeframe":   "7m",
			"price":       45050.00,
			"momentum":    -4.8,
			"tp_price":    45100.00,
			"sl_price":    44000.00,
			"timestamp":   now,
		}},
		{"SHORT entry", map[string]interface{}{
			"signal_type": "entry_short",
			"symbol":      "ETHUSDT",
			"timeframe":   "7m",
			"price":       2500.00,
			"momentum":    5.4,
			"vwap":        2490.00,
			"timestamp":   now,
		}},
		{"position update", map[string]interface{}{
			"signal_type": "update",
			"symbol":      "BTCUSDT",
			"update_type": "info",
			"price":       45080.00,
			"message":     "Accumulation 60% complete",
			"timestamp":   now,
		}},
		{"unknown type (expect no-op)", map[string]interface{}{
			"signal_type": "ping",
			"symbol":      "BTCUSDT",
		}},
	}

	for _, s := range samples {
		log.Printf("[signalgen] sending %s...", s.name)
		postSignal(client, baseURL+"/webhook", secret, s.payload)
		time.Sleep(500 * time.Millisecond)
	}

	log.Printf("[signalgen] checking health...")
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		log.Fatalf("[signalgen] health check failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	log.Printf("[signalgen] health %d: %s", resp.StatusCode, body)
}

func postSignal(client *http.Client, url, secret string, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("[signalgen] marshal: %v", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("[signalgen] request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("[signalgen] post: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	log.Printf("[signalgen] status %d: %s", resp.StatusCode, respBody)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
