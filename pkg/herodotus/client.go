// Copyright 2025 ZeroXBridge
//
// Herodotus/Atlantic client - remote proof submission
//
// Uploads the Sierra program and its input file to the Atlantic query
// endpoint as multipart form data. Used when proving is delegated instead
// of run through the local toolchain.

package herodotus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

// DefaultEndpoint is the staging Atlantic query endpoint.
const DefaultEndpoint = "https://staging.atlantic.api.herodotus.cloud/atlantic-query"

// Client submits proving jobs to the Atlantic service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an Atlantic client from configuration.
func NewClient(cfg *config.Config) *Client {
	endpoint := cfg.Herodotus.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     cfg.Herodotus.APIKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SubmitJob uploads one proving job: the Sierra program, its input file and
// the result direction. Returns the service's response body.
func (c *Client) SubmitJob(ctx context.Context, programPath, inputPath, direction string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := map[string]string{
		"layout":          "auto",
		"cairoVm":         "rust",
		"cairoVersion":    "cairo1",
		"mockFactHash":    "false",
		"declaredJobSize": "S",
		"direction":       direction,
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return "", fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	if err := attachFile(form, "program", programPath); err != nil {
		return "", err
	}
	if err := attachFile(form, "input", inputPath); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	endpoint := fmt.Sprintf("%s?apiKey=%s", c.endpoint, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("atlantic query failed (%d): %s", resp.StatusCode, respBody)
	}
	return string(respBody), nil
}

func attachFile(form *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	part, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return nil
}
