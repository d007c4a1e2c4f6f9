// Package platformclient talks to the asset platform REST API. It implements
// both the data platform and the mail service contracts.
package platformclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
)

const dataSubtype = "input"

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	ProjectID string
	Timeout   time.Duration
}

type Client struct {
	base      string
	apiKey    string
	projectID string
	h         *http.Client
}

var (
	_ platform.DataPlatform = (*Client)(nil)
	_ platform.Mailer       = (*Client)(nil)
)

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		projectID: opts.ProjectID,
		h:         &http.Client{Timeout: timeout},
	}
}

type asset struct {
	ID  json.Number `json:"id"`
	GAI string      `json:"global_asset_identifier"`
}

// ResolveAssetID calls GET /v2/assets?gai= and returns the id of the asset
// carrying exactly gai.
func (c *Client) ResolveAssetID(ctx context.Context, gai string) (int64, error) {
	q := url.Values{}
	q.Set("gai", gai)
	if c.projectID != "" {
		q.Set("projectId", c.projectID)
	}

	var assets []asset
	if err := c.get(ctx, "/v2/assets", q, &assets); err != nil {
		return 0, err
	}
	for _, a := range assets {
		if a.GAI != gai {
			continue
		}
		id, err := a.ID.Int64()
		if err != nil {
			return 0, fmt.Errorf("asset %q has invalid id %q", gai, a.ID)
		}
		return id, nil
	}
	return 0, fmt.Errorf("asset %q not found", gai)
}

// AggregatedSeries calls GET /v2/data-aggregated. Every numeric field of a row
// other than its identity is kept as a mode value.
func (c *Client) AggregatedSeries(ctx context.Context, sq platform.SeriesQuery) ([]platform.AggregatedPoint, error) {
	q := url.Values{}
	q.Set("assetId", strconv.FormatInt(sq.AssetID, 10))
	q.Set("attribute", sq.Attribute)
	q.Set("raster", sq.Raster)
	q.Set("fromDate", sq.From.Format(time.RFC3339))
	q.Set("toDate", sq.To.Format(time.RFC3339))
	q.Set("dataSubtype", dataSubtype)

	var rows []map[string]any
	if err := c.get(ctx, "/v2/data-aggregated", q, &rows); err != nil {
		return nil, err
	}

	out := make([]platform.AggregatedPoint, 0, len(rows))
	for _, row := range rows {
		p, err := identity(row)
		if err != nil {
			return nil, fmt.Errorf("data-aggregated: %w", err)
		}
		p.Attribute, _ = row["attribute"].(string)
		p.Raster, _ = row["raster"].(string)
		for _, k := range []string{"timestamp", "asset_id", "attribute", "raster", "data_subtype"} {
			delete(row, k)
		}
		p.Values = platform.ExtractValues(row)
		out = append(out, p)
	}
	return out, nil
}

// TrendSeries calls GET /v2/data-trends. Values are keyed by attribute name.
func (c *Client) TrendSeries(ctx context.Context, assetID int64, from, to time.Time) ([]platform.AggregatedPoint, error) {
	q := url.Values{}
	q.Set("assetId", strconv.FormatInt(assetID, 10))
	q.Set("fromDate", from.Format(time.RFC3339))
	q.Set("toDate", to.Format(time.RFC3339))
	q.Set("dataSubtype", dataSubtype)

	var rows []map[string]any
	if err := c.get(ctx, "/v2/data-trends", q, &rows); err != nil {
		return nil, err
	}

	out := make([]platform.AggregatedPoint, 0, len(rows))
	for _, row := range rows {
		p, err := identity(row)
		if err != nil {
			return nil, fmt.Errorf("data-trends: %w", err)
		}
		data, _ := row["data"].(map[string]any)
		p.Values = platform.ExtractValues(data)
		out = append(out, p)
	}
	return out, nil
}

// Submit calls POST /v2/send/mail and returns the assigned job id.
func (c *Client) Submit(ctx context.Context, job platform.MailJob) (string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encoding mail: %w", err)
	}

	var resp struct {
		ID json.Number `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/send/mail", nil, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("send/mail returned no id")
	}
	return resp.ID.String(), nil
}

// PollStatus calls GET /v2/send/mail/{id}.
func (c *Client) PollStatus(ctx context.Context, id string) (platform.MailStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/v2/send/mail/"+url.PathEscape(id), nil, &resp); err != nil {
		return "", err
	}
	return platform.MailStatus(resp.Status), nil
}

// Ping calls GET /v2/version to check that the platform is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/v2/version", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.h.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// identity reads the timestamp and asset id shared by aggregated and trend rows.
func identity(row map[string]any) (platform.AggregatedPoint, error) {
	var p platform.AggregatedPoint

	ts, _ := row["timestamp"].(string)
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return p, fmt.Errorf("invalid timestamp %q", ts)
	}
	p.Timestamp = t

	if id, ok := platform.ExtractDecimal(row["asset_id"]); ok {
		p.AssetID = id.IntPart()
	}
	return p, nil
}
