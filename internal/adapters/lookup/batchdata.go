// Package lookup contains the HTTP client for the BatchData skip-trace API.
package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/example/propenrich/internal/logging"
	"github.com/example/propenrich/internal/metrics"
	"github.com/example/propenrich/internal/ports/secondary"
)

const breakerName = "batchdata"

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Config configures the client.
type Config struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Client implements secondary.OwnerLookup against BatchData.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*secondary.LookupResponse]
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*secondary.LookupResponse](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Only server-side trouble counts against the breaker; a 4xx status
		// is a definite answer about one address.
		IsSuccessful: func(err error) bool {
			var apiErr *secondary.LookupStatusError
			if errors.As(err, &apiErr) {
				return apiErr.Code < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cb:      cb,
	}
}

// Name identifies the provider.
func (c *Client) Name() string {
	return breakerName
}

// Lookup calls the API for one address.
func (c *Client) Lookup(ctx context.Context, req secondary.LookupRequest) (*secondary.LookupResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.LookupRequests.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", secondary.ErrLookupUnavailable, err)
	}

	start := time.Now()
	resp, err := c.cb.Execute(func() (*secondary.LookupResponse, error) {
		return c.do(ctx, req)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.LookupRequests.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", secondary.ErrLookupUnavailable, err)
	case err != nil:
		metrics.RecordLookup("failure", time.Since(start))
		return nil, err
	}
	metrics.RecordLookup("success", time.Since(start))
	return resp, nil
}

type requestBody struct {
	Requests []requestItem `json:"requests"`
}

type requestItem struct {
	PropertyAddress propertyAddress `json:"propertyAddress"`
}

type propertyAddress struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

type responseBody struct {
	Status struct {
		Code int    `json:"code"`
		Text string `json:"text"`
	} `json:"status"`
	Results struct {
		Persons []person `json:"persons"`
		Meta    struct {
			RequestID string `json:"requestId"`
		} `json:"meta"`
	} `json:"results"`
}

type personName struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

func (n personName) full() string {
	switch {
	case n.First == "":
		return n.Last
	case n.Last == "":
		return n.First
	}
	return n.First + " " + n.Last
}

type person struct {
	Meta struct {
		Matched bool `json:"matched"`
	} `json:"meta"`
	Name     personName `json:"name"`
	Property struct {
		Owner struct {
			Name personName `json:"name"`
		} `json:"owner"`
	} `json:"property"`
	Emails []struct {
		Email string `json:"email"`
	} `json:"emails"`
	PhoneNumbers []struct {
		Number string `json:"number"`
	} `json:"phoneNumbers"`
}

func (c *Client) do(ctx context.Context, req secondary.LookupRequest) (*secondary.LookupResponse, error) {
	payload, err := json.Marshal(requestBody{Requests: []requestItem{{
		PropertyAddress: propertyAddress{Street: req.Street, City: req.City, State: req.State, Zip: req.Zip},
	}}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("batchdata request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read batchdata response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &secondary.LookupStatusError{Code: httpResp.StatusCode, Text: http.StatusText(httpResp.StatusCode)}
	}

	var body responseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode batchdata response: %w", err)
	}
	if body.Status.Code != http.StatusOK {
		text := body.Status.Text
		if text == "" {
			text = "BatchData API error or empty status"
		}
		return nil, &secondary.LookupStatusError{Code: body.Status.Code, Text: text}
	}

	return toResponse(&body, raw), nil
}

func toResponse(body *responseBody, raw []byte) *secondary.LookupResponse {
	resp := &secondary.LookupResponse{
		RequestID: body.Results.Meta.RequestID,
		Raw:       raw,
	}
	for _, p := range body.Results.Persons {
		lp := secondary.LookupPerson{
			Matched:    p.Meta.Matched,
			OwnerName:  p.Property.Owner.Name.full(),
			PersonName: p.Name.full(),
		}
		for _, e := range p.Emails {
			if e.Email != "" {
				lp.Emails = append(lp.Emails, e.Email)
			}
		}
		for _, n := range p.PhoneNumbers {
			if n.Number != "" {
				lp.Phones = append(lp.Phones, n.Number)
			}
		}
		resp.Persons = append(resp.Persons, lp)
	}
	return resp
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Ensure Client implements the interface
var _ secondary.OwnerLookup = (*Client)(nil)
