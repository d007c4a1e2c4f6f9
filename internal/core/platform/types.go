package platform

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AggregatedPoint is one aggregated sample returned by the asset data platform.
// Values holds one entry per aggregation mode (average, min, max, ...).
type AggregatedPoint struct {
	Timestamp time.Time
	AssetID   int64
	Attribute string
	Raster    string
	Values    map[string]decimal.Decimal
}

// Value returns the value recorded for mode.
func (p AggregatedPoint) Value(mode string) (decimal.Decimal, bool) {
	v, ok := p.Values[mode]
	return v, ok
}

// SeriesQuery selects aggregated points for one asset attribute.
type SeriesQuery struct {
	AssetID   int64
	Attribute string
	Raster    string
	Mode      string
	From      time.Time
	To        time.Time
}

// DataPlatform is the read side of the asset data platform.
// Any error is treated by callers as "no data" for the affected binding.
type DataPlatform interface {
	// ResolveAssetID maps a globally addressable identifier to a numeric asset id.
	ResolveAssetID(ctx context.Context, gai string) (int64, error)

	// AggregatedSeries returns aggregated points in [q.From, q.To].
	AggregatedSeries(ctx context.Context, q SeriesQuery) ([]AggregatedPoint, error)

	// TrendSeries returns the raw trend stream of an asset in [from, to).
	TrendSeries(ctx context.Context, assetID int64, from, to time.Time) ([]AggregatedPoint, error)
}

// MailStatus is the status string reported by the mail service for a job.
type MailStatus string

const (
	MailStatusScheduled MailStatus = "scheduled"
	MailStatusSent      MailStatus = "sent"
)

// MailAttachment is an encoded file attached to a mail job.
type MailAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"type"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
}

// MailJob is the payload submitted to the mail service.
type MailJob struct {
	Subject     string           `json:"subject"`
	Content     string           `json:"content"`
	Recipients  []string         `json:"recipients"`
	BlindCopy   []string         `json:"blind_copy,omitempty"`
	Attachments []MailAttachment `json:"attachments,omitempty"`
}

// Mailer submits mail jobs and reports their progress.
type Mailer interface {
	Submit(ctx context.Context, job MailJob) (string, error)
	PollStatus(ctx context.Context, id string) (MailStatus, error)
}
