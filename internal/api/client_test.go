package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchTicket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/consultations/webrtc-ticket" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req ticketRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ConsultationID != "c-42" {
			t.Errorf("unexpected consultation id %q", req.ConsultationID)
		}
		if req.RequestID == "" {
			t.Error("missing request id")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"result":  0,
			"message": "ok",
			"data": map[string]any{
				"consultationId": "c-42",
				"signalServer":   "wss://relay.example.com",
				"accessToken":    "session-tok",
				"iceServers": []map[string]string{
					{"url": "stun:stun.example.com:3478"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ticket, err := client.FetchTicket(context.Background(), "tok-123", "c-42")
	if err != nil {
		t.Fatalf("fetch ticket: %v", err)
	}
	if ticket.SignalServer != "wss://relay.example.com" || ticket.AccessToken != "session-tok" {
		t.Errorf("unexpected ticket: %+v", ticket)
	}
	if len(ticket.ICEServers) != 1 || ticket.ICEServers[0].URL != "stun:stun.example.com:3478" {
		t.Errorf("unexpected ice servers: %+v", ticket.ICEServers)
	}
}

func TestFetchTicket_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"result": 3, "message": "consultation not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.FetchTicket(context.Background(), "tok-123", "missing"); err == nil {
		t.Fatal("expected API error")
	}
}

func TestFetchTicket_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if _, err := client.FetchTicket(context.Background(), "bad", "c-42"); err == nil {
		t.Fatal("expected error on http 401")
	}
}
