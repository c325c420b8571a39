package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
)

type ticketRequest struct {
	ConsultationID string `json:"consultationId"`
	RequestID      string `json:"requestId"`
}

type ticketResponse struct {
	Result  int                  `json:"result"`
	Message string               `json:"message"`
	Data    domain.SessionTicket `json:"data"`
}

// Client fetches consultation session tickets from the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchTicket obtains signaling credentials and ICE servers for one
// consultation.
func (c *Client) FetchTicket(ctx context.Context, authToken, consultationID string) (*domain.SessionTicket, error) {
	req := ticketRequest{
		ConsultationID: consultationID,
		RequestID:      uuid.New().String(),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal ticket request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/consultations/webrtc-ticket", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	}

	var ticketResp ticketResponse
	if err := json.Unmarshal(respBody, &ticketResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if ticketResp.Result != 0 {
		return nil, fmt.Errorf("API error (result=%d): %s", ticketResp.Result, ticketResp.Message)
	}

	return &ticketResp.Data, nil
}
