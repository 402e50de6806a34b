package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/instrumentkit/instrumentkit/pkg/types"
)

// ReportsPath is the server route reports are posted to.
const ReportsPath = "/api/v1/reports"

// send posts one report and returns a *statusError for non-2xx replies.
func (s *Shipper) send(ctx context.Context, rep *types.RunReport) error {
	req, err := s.newRequest(ctx, rep)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// newRequest encodes rep and attaches the configured credentials.
func (s *Shipper) newRequest(ctx context.Context, rep *types.RunReport) (*http.Request, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", rep.ID, err)
	}
	url := strings.TrimRight(s.cfg.ServerEndpoint, "/") + ReportsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	auth := s.cfg.ServerAuth
	switch auth.Mode {
	case "apikey":
		req.Header.Set(auth.Header, auth.Key())
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token())
	}
	return req, nil
}
