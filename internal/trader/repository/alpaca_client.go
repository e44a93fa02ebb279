package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// alpacaClient is the shared HTTP plumbing for the trading and market-data endpoints.
type alpacaClient struct {
	name           string
	baseURL        string
	keyID          string
	secretKey      string
	log            *logger.Logger
	httpClient     *http.Client
	requestLimiter *rate.Limiter
}

type alpacaResponse struct {
	StatusCode int
	Body       []byte
}

func newAlpacaClient(name, baseURL, keyID, secretKey string, timeout time.Duration, maxRequestPerMinute int, log *logger.Logger) *alpacaClient {
	if maxRequestPerMinute <= 0 {
		maxRequestPerMinute = 200
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	secondsPerRequest := time.Minute / time.Duration(maxRequestPerMinute)
	return &alpacaClient{
		name:      name,
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		log:       log,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		requestLimiter: rate.NewLimiter(rate.Every(secondsPerRequest), 1),
	}
}

// do sends the request and returns the raw response. Transport failures and 5xx map to
// ErrUpstreamError, 429 to ErrUpstreamRateLimited; other statuses are left to the caller.
func (c *alpacaClient) do(ctx context.Context, method, path string, payload interface{}) (*alpacaResponse, error) {
	url := c.baseURL + path
	fields := []zap.Field{
		zap.String("upstream", c.name),
		zap.String("method", method),
		zap.String("url", url),
	}

	if err := c.requestLimiter.Wait(ctx); err != nil {
		fields = append(fields, zap.Error(err))
		c.log.ErrorContext(ctx, "Failed to wait for request limit", fields...)
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(jsonPayload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		fields = append(fields, zap.Error(err))
		c.log.ErrorContext(ctx, "Failed to create new http request", fields...)
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		fields = append(fields, zap.Error(err))
		c.log.WarnContext(ctx, "Failed to send request", fields...)
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, dto.ErrUpstreamError, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fields = append(fields, zap.Error(err))
		c.log.WarnContext(ctx, "Failed to read response body", fields...)
		return nil, fmt.Errorf("%s %s: %w: %v", method, path, dto.ErrUpstreamError, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.log.WarnContext(ctx, "Upstream rate limited", append(fields, zap.Int("status_code", resp.StatusCode))...)
		return nil, fmt.Errorf("%s %s: %w", method, path, dto.ErrUpstreamRateLimited)
	case resp.StatusCode >= http.StatusInternalServerError:
		c.log.WarnContext(ctx, "Received server error from upstream", append(fields, zap.Int("status_code", resp.StatusCode))...)
		return nil, fmt.Errorf("%s %s: %w: status %d", method, path, dto.ErrUpstreamError, resp.StatusCode)
	}

	return &alpacaResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func decodeAlpacaError(body []byte) dto.AlpacaErrorResponse {
	var apiErr dto.AlpacaErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	return apiErr
}
