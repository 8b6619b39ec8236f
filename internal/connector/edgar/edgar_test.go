package edgar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/connector/edgar"
	"github.com/arc-self/market-ingest/internal/fetch"
	"github.com/arc-self/market-ingest/internal/store"
)

func TestNormalizeCIK_ZeroPads(t *testing.T) {
	assert.Equal(t, "0000320193", edgar.NormalizeCIK("320193"))
	assert.Equal(t, "0000320193", edgar.NormalizeCIK("0000320193"))
}

// fakeState is a hand-rolled in-memory StateStore for tests.
type fakeState struct {
	seen   map[string]bool
	entity map[string]store.EntityStateRow
}

func newFakeState() *fakeState {
	return &fakeState{seen: map[string]bool{}, entity: map[string]store.EntityStateRow{}}
}

func (f *fakeState) IsFilingSeen(ctx context.Context, sourceEntity, accession string) (bool, error) {
	return f.seen[sourceEntity+":"+accession], nil
}

func (f *fakeState) MarkFilingSeen(ctx context.Context, sourceEntity, accession string, firstSeenAt time.Time) error {
	f.seen[sourceEntity+":"+accession] = true
	return nil
}

func (f *fakeState) GetEntityState(ctx context.Context, sourceEntity string) (store.EntityStateRow, error) {
	row, ok := f.entity[sourceEntity]
	if !ok {
		return store.EntityStateRow{}, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeState) UpsertEntityState(ctx context.Context, s store.EntityStateRow) error {
	f.entity[s.SourceEntity] = s
	return nil
}

const sampleSubmissions = `{
	"name": "Example Corp",
	"tickers": ["EX"],
	"filings": {
		"recent": {
			"accessionNumber": ["0001-23-000001", "0001-23-000002"],
			"form": ["8-K", "UPLOAD"],
			"filingDate": ["2024-01-05", "2024-01-06"],
			"primaryDocument": ["doc1.htm", "doc2.htm"]
		}
	}
}`

func TestNormalize_EightKFiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleSubmissions))
	}))
	defer srv.Close()

	client, err := fetch.NewClient(fetch.Config{UserAgent: "t t@e.com (s)"}, zap.NewNop())
	require.NoError(t, err)

	state := newFakeState()
	a := edgar.New(edgar.Config{CIKs: []string{"320193"}}, state, client, zap.NewNop())

	// We can't point the adapter at a test server: Fetch builds its own
	// data.sec.gov URL. So this test checks Normalize on a hand-built raw
	// record; fetchCIK's allowlist and seen-filing logic is not exercised here.
	raw := []byte(`{"cik":"0000320193","form":"8-K","accession":"0001-23-000001","filingDate":"2024-01-05","filingIndexUrl":"https://example.com","primaryDocument":"doc1.htm","companyName":"Example Corp","tickers":["EX"]}`)
	norm, err := a.Normalize(context.Background(), connector.RawRecord{Raw: raw, TsEvent: time.Now().UTC()})
	require.NoError(t, err)

	assert.Equal(t, "EX", norm.Symbol)
	assert.Equal(t, "0000320193", norm.EntityID)
	assert.Equal(t, 70, norm.Severity)
	assert.Equal(t, "edgar:0000320193:0001-23-000001", norm.DedupeKey)
	require.NotNil(t, norm.Confidence)
	assert.Equal(t, 1.0, *norm.Confidence)
}
