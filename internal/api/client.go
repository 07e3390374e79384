package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"income-predictor/internal/features"
	"income-predictor/internal/pipeline"
)

// APIError is a non-2xx answer from the prediction server.
type APIError struct {
	Status  int
	Message string
	Field   string
	Reason  string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("server returned %d: %s (field %s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func newAPIError(status int, body *ErrorResponse) *APIError {
	return &APIError{Status: status, Message: body.Error, Field: body.Field, Reason: body.Reason}
}

// Client talks to a prediction server.
type Client struct {
	base string
	rest *resty.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(baseURL, "/"), rest: r}
}

// Predict posts rec to /predict.
func (c *Client) Predict(ctx context.Context, rec features.Record) (*pipeline.Result, error) {
	res := &pipeline.Result{}
	apiErr := &ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(res).
		SetError(apiErr).
		Post(c.base + "/predict")
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), apiErr)
	}
	return res, nil
}

// PredictIndividual calls the query-string endpoint the way the dashboard
// does.
func (c *Client) PredictIndividual(ctx context.Context, rec features.Record) (*pipeline.Result, error) {
	res := &pipeline.Result{}
	apiErr := &ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParamsFromValues(QueryFromRecord(rec)).
		SetResult(res).
		SetError(apiErr).
		Get(c.base + "/predict_individual_income/")
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), apiErr)
	}
	return res, nil
}

// GetPrediction fetches a stored prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*pipeline.Result, error) {
	res := &pipeline.Result{}
	apiErr := &ErrorResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(res).
		SetError(apiErr).
		Get(c.base + "/predictions/{id}")
	if err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), apiErr)
	}
	return res, nil
}

// Stream sends every record over one /ws/predict connection and returns
// the responses in order.
func (c *Client) Stream(ctx context.Context, recs []features.Record) ([]StreamResponse, error) {
	u, err := url.Parse(c.base + "/ws/predict")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	out := make([]StreamResponse, 0, len(recs))
	for i, rec := range recs {
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetWriteDeadline(deadline)
			conn.SetReadDeadline(deadline)
		}
		if err := conn.WriteJSON(rec); err != nil {
			return out, fmt.Errorf("record %d: send: %w", i, err)
		}
		var sr StreamResponse
		if err := conn.ReadJSON(&sr); err != nil {
			return out, fmt.Errorf("record %d: receive: %w", i, err)
		}
		out = append(out, sr)
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return out, nil
}

// QueryFromRecord renders rec as query parameters.
func QueryFromRecord(rec features.Record) url.Values {
	q := url.Values{}
	for _, field := range features.Fields {
		v, ok := rec[field]
		if !ok {
			continue
		}
		if f, isNum := v.Number(); isNum {
			q.Set(field, strconv.FormatFloat(f, 'f', -1, 64))
		} else {
			q.Set(field, v.String())
		}
	}
	return q
}
