package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadflow_backend/platform/logger"
)

type gatewayConfig struct{ url string }

func (g gatewayConfig) GetWhatsAppURL() string      { return g.url }
func (g gatewayConfig) GetWhatsAppKey() string      { return "user:pass" }
func (g gatewayConfig) GetWhatsAppDeviceID() string { return "device-1" }

func TestSendMessagePostsNormalizedNumber(t *testing.T) {
	var got gowaRequest
	var auth, device string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send/message" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-Id")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(gatewayConfig{url: srv.URL + "/"}, logger.New("test"))
	if err := c.SendMessage(context.Background(), "+1 415 555 2671", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Phone != "14155552671" || got.Message != "hello" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if auth != "Basic dXNlcjpwYXNz" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if device != "device-1" {
		t.Fatalf("unexpected device header %q", device)
	}
}

func TestSendMessageReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "device offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(gatewayConfig{url: srv.URL}, logger.New("test"))
	if err := c.SendMessage(context.Background(), "+14155552671", "hello"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendMessageRejectsInvalidNumber(t *testing.T) {
	c := NewClient(gatewayConfig{url: "http://127.0.0.1:1"}, logger.New("test"))
	err := c.SendMessage(context.Background(), "12", "hello")
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestNilClientDropsMessages(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client must report disabled")
	}
	if err := c.SendMessage(context.Background(), "+14155552671", "hello"); err != nil {
		t.Fatalf("nil client send: %v", err)
	}
}
