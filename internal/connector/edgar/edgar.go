// Package edgar implements the SEC EDGAR disclosure-filing adapter
// described in SPEC_FULL.md §4.4/§4.6: it polls data.sec.gov for new
// filings on a CIK watchlist, using conditional GETs cached per CIK in
// entity_state and deduping on (source_entity, accession) via
// seen_filings.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/fetch"
	"github.com/arc-self/market-ingest/internal/store"
)

// DefaultFormsAllowlist is the set of filing forms tracked when a Config
// does not override it.
var DefaultFormsAllowlist = []string{
	"8-K", "10-Q", "10-K", "S-1",
	"424B1", "424B2", "424B3", "424B4", "424B5",
	"13D", "13G", "SC 13D", "SC 13G",
	"4", "3", "5",
}

// maxFilingsPerCIK bounds how many of a CIK's most recent filings are
// scanned each cycle.
const maxFilingsPerCIK = 100

// StateStore is the narrow slice of store.Queries the adapter needs for
// per-CIK fetch-state and filing dedup, matching the connector
// framework's own Store/Executor split so tests can substitute a fake.
type StateStore interface {
	IsFilingSeen(ctx context.Context, sourceEntity, accession string) (bool, error)
	MarkFilingSeen(ctx context.Context, sourceEntity, accession string, firstSeenAt time.Time) error
	GetEntityState(ctx context.Context, sourceEntity string) (store.EntityStateRow, error)
	UpsertEntityState(ctx context.Context, s store.EntityStateRow) error
}

// Config parameterizes the adapter.
type Config struct {
	CIKs            []string
	UserAgentName   string
	UserAgentEmail  string
	MaxRPS          float64
	FormsAllowlist  []string
}

// userAgent builds the contact-carrying User-Agent SEC requires.
func (c Config) userAgent() string {
	name := c.UserAgentName
	if name == "" {
		name = "market-ingest"
	}
	email := c.UserAgentEmail
	if email == "" {
		email = "contact@example.com"
	}
	return fmt.Sprintf("%s %s (ingestd-edgar-connector)", name, email)
}

// Adapter implements connector.Adapter for SEC EDGAR.
type Adapter struct {
	cfg       Config
	state     StateStore
	client    *fetch.Client
	logger    *zap.Logger
	allowlist map[string]struct{}
}

// New builds an Adapter. state is typically a *store.Queries bound to the
// shared pool; client should be built with Config.MaxRPS via fetch.NewClient.
func New(cfg Config, state StateStore, client *fetch.Client, logger *zap.Logger) *Adapter {
	forms := cfg.FormsAllowlist
	if len(forms) == 0 {
		forms = DefaultFormsAllowlist
	}
	allow := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		allow[strings.ToUpper(f)] = struct{}{}
	}
	return &Adapter{cfg: cfg, state: state, client: client, logger: logger, allowlist: allow}
}

// submissionsResponse mirrors the fields used from
// https://data.sec.gov/submissions/CIK##########.json.
type submissionsResponse struct {
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// filingRecord is the Raw payload carried by each RawRecord this adapter
// yields; it is the exact bytes archived under the raw/ blob prefix.
type filingRecord struct {
	CIK             string   `json:"cik"`
	Form            string   `json:"form"`
	Accession       string   `json:"accession"`
	FilingDate      string   `json:"filingDate"`
	FilingIndexURL  string   `json:"filingIndexUrl"`
	PrimaryDocument string   `json:"primaryDocument"`
	CompanyName     string   `json:"companyName"`
	Tickers         []string `json:"tickers"`
}

// Fetch polls every configured CIK in turn, inserting inter-entity jitter,
// and returns one RawRecord per new, allowlisted filing.
func (a *Adapter) Fetch(ctx context.Context) ([]connector.RawRecord, error) {
	if len(a.cfg.CIKs) == 0 {
		a.logger.Warn("edgar: no CIKs configured")
		return nil, nil
	}

	var out []connector.RawRecord
	for i, cik := range a.cfg.CIKs {
		if i > 0 {
			a.client.Jitter(ctx)
		}

		padded := NormalizeCIK(cik)
		filings, err := a.fetchCIK(ctx, padded)
		if err != nil {
			a.logger.Error("edgar: fetch CIK failed", zap.String("cik", padded), zap.Error(err))
			continue
		}
		for _, f := range filings {
			raw, err := json.Marshal(f)
			if err != nil {
				return nil, fmt.Errorf("edgar: marshal filing record: %w", err)
			}
			tsEvent, _ := time.Parse("2006-01-02", f.FilingDate)
			out = append(out, connector.RawRecord{Raw: raw, TsEvent: tsEvent.UTC()})
		}
	}
	return out, nil
}

func (a *Adapter) fetchCIK(ctx context.Context, cik string) ([]filingRecord, error) {
	entity, err := a.state.GetEntityState(ctx, cik)
	etag, lastMod := "", ""
	if err == nil {
		if entity.LastETag != nil {
			etag = *entity.LastETag
		}
		if entity.LastModified != nil {
			lastMod = *entity.LastModified
		}
	}

	url := fmt.Sprintf("https://data.sec.gov/submissions/CIK%s.json", cik)
	res, err := a.client.ConditionalGet(ctx, url, etag, lastMod)
	if err != nil {
		return nil, err
	}
	if res.NotModified || res.Skip {
		return nil, nil
	}

	newETag, newLastMod := res.ETag, res.LastModified
	if err := a.state.UpsertEntityState(ctx, store.EntityStateRow{
		SourceEntity: cik,
		LastETag:     strPtr(newETag),
		LastModified: strPtr(newLastMod),
		LastPollAt:   time.Now().UTC(),
	}); err != nil {
		a.logger.Warn("edgar: failed to persist entity state", zap.String("cik", cik), zap.Error(err))
	}

	var sub submissionsResponse
	if err := json.Unmarshal(res.Body, &sub); err != nil {
		return nil, fmt.Errorf("edgar: decode submissions for %s: %w", cik, err)
	}

	recent := sub.Filings.Recent
	cikNoPadding := strings.TrimLeft(cik, "0")
	if cikNoPadding == "" {
		cikNoPadding = "0"
	}

	n := len(recent.AccessionNumber)
	if n > maxFilingsPerCIK {
		n = maxFilingsPerCIK
	}

	var filings []filingRecord
	for i := 0; i < n; i++ {
		form := ""
		if i < len(recent.Form) {
			form = recent.Form[i]
		}
		if _, ok := a.allowlist[strings.ToUpper(form)]; !ok {
			continue
		}

		accession := recent.AccessionNumber[i]
		seen, err := a.state.IsFilingSeen(ctx, cik, accession)
		if err != nil {
			return nil, fmt.Errorf("edgar: check seen filing: %w", err)
		}
		if seen {
			continue
		}

		filingDate := ""
		if i < len(recent.FilingDate) {
			filingDate = recent.FilingDate[i]
		}
		primaryDoc := ""
		if i < len(recent.PrimaryDocument) {
			primaryDoc = recent.PrimaryDocument[i]
		}

		accessionNoDashes := strings.ReplaceAll(accession, "-", "")
		filingURL := fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s-index.html",
			cikNoPadding, accessionNoDashes, accession)

		if err := a.state.MarkFilingSeen(ctx, cik, accession, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("edgar: mark filing seen: %w", err)
		}

		filings = append(filings, filingRecord{
			CIK:             cik,
			Form:            form,
			Accession:       accession,
			FilingDate:      filingDate,
			FilingIndexURL:  filingURL,
			PrimaryDocument: primaryDoc,
			CompanyName:     sub.Name,
			Tickers:         sub.Tickers,
		})
	}

	sort.SliceStable(filings, func(i, j int) bool { return filings[i].Accession < filings[j].Accession })
	return filings, nil
}

// Normalize maps one filing into a partial canonical event. Severity is
// graded by form type: 8-K (material events) outranks periodic reports,
// which outrank insider transactions and offerings.
func (a *Adapter) Normalize(ctx context.Context, raw connector.RawRecord) (connector.Normalized, error) {
	var f filingRecord
	if err := json.Unmarshal(raw.Raw, &f); err != nil {
		return connector.Normalized{}, fmt.Errorf("edgar: decode filing record: %w", err)
	}

	var symbol string
	if len(f.Tickers) > 0 {
		symbol = f.Tickers[0]
	}

	confidence := 1.0 // SEC filings are authoritative

	return connector.Normalized{
		EventType:  events.EventTypeDisclosureFiling,
		TsEvent:    raw.TsEvent,
		Symbol:     symbol,
		EntityID:   f.CIK,
		Severity:   formSeverity(f.Form),
		Confidence: &confidence,
		Payload: map[string]interface{}{
			"cik":             f.CIK,
			"form":            f.Form,
			"accession":       f.Accession,
			"filingDate":      f.FilingDate,
			"filingUrl":       f.FilingIndexURL,
			"primaryDocument": f.PrimaryDocument,
			"companyName":     f.CompanyName,
			"tickers":         f.Tickers,
		},
		DedupeKey: fmt.Sprintf("edgar:%s:%s", f.CIK, f.Accession),
	}, nil
}

func formSeverity(form string) int {
	switch strings.ToUpper(form) {
	case "8-K":
		return 70
	case "10-K", "10-Q":
		return 60
	case "4", "3", "5":
		return 50
	case "13D", "13G", "SC 13D", "SC 13G":
		return 65
	default:
		upper := strings.ToUpper(form)
		if strings.HasPrefix(upper, "S-") || strings.HasPrefix(upper, "424") {
			return 55
		}
		return 50
	}
}

// NormalizeCIK zero-pads cik to SEC's 10-digit form.
func NormalizeCIK(cik string) string {
	n, err := strconv.Atoi(strings.TrimSpace(cik))
	if err != nil {
		return cik
	}
	return fmt.Sprintf("%010d", n)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
