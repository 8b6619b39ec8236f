// Package reddit implements the forum-mention adapter: it polls
// r/wallstreetbets and other configured subreddits via Reddit's public JSON
// endpoint, extracts candidate ticker symbols from each post's title/body,
// and grades severity/confidence by engagement.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/fetch"
)

// tickerPattern matches a $-prefixed 1-5 letter ticker or a bare 2-5 letter
// all-caps word.
var tickerPattern = regexp.MustCompile(`\$([A-Z]{1,5})\b|\b([A-Z]{2,5})\b`)

// tickerBlacklist filters common all-caps words and forum slang that would
// otherwise be mistaken for tickers.
var tickerBlacklist = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "ARE": {}, "BUT": {}, "NOT": {}, "YOU": {}, "ALL": {},
	"CAN": {}, "HAD": {}, "HER": {}, "WAS": {}, "ONE": {}, "OUR": {}, "OUT": {}, "HAS": {},
	"HIS": {}, "HOW": {}, "MAN": {}, "NEW": {}, "NOW": {}, "OLD": {}, "SEE": {}, "WAY": {},
	"WHO": {}, "BOY": {}, "DID": {}, "GET": {}, "HIM": {}, "LET": {}, "PUT": {}, "SAY": {},
	"SHE": {}, "TOO": {}, "USE": {}, "CEO": {}, "CFO": {}, "IPO": {}, "USA": {}, "FBI": {},
	"CIA": {}, "GDP": {}, "IMO": {}, "TBH": {}, "LOL": {}, "WTF": {}, "OMG": {}, "FYI": {},
	"EOD": {}, "ATH": {}, "ATL": {}, "DD": {}, "YOLO": {}, "FOMO": {}, "HODL": {}, "WSB": {},
	"APE": {}, "APES": {}, "MOON": {}, "HOLD": {}, "BUY": {}, "SELL": {},
	"CALL": {}, "ITM": {}, "OTM": {}, "IV": {}, "DTE": {},
}

const maxTickersPerPost = 5

// Config parameterizes the adapter.
type Config struct {
	Subreddits []string
	UserAgent  string
}

// Adapter implements connector.Adapter for Reddit finance subreddits.
type Adapter struct {
	cfg     Config
	client  *fetch.Client
	logger  *zap.Logger
	seenIDs map[string]struct{}
}

// New builds an Adapter. seenIDs dedupes within a single process's
// lifetime; cross-process dedup happens downstream via dedupe_key.
func New(cfg Config, client *fetch.Client, logger *zap.Logger) *Adapter {
	subs := cfg.Subreddits
	if len(subs) == 0 {
		subs = []string{"wallstreetbets"}
	}
	cfg.Subreddits = subs
	return &Adapter{cfg: cfg, client: client, logger: logger, seenIDs: map[string]struct{}{}}
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	SelfText       string  `json:"selftext"`
	Author         string  `json:"author"`
	Score          int     `json:"score"`
	UpvoteRatio    float64 `json:"upvote_ratio"`
	NumComments    int     `json:"num_comments"`
	CreatedUTC     float64 `json:"created_utc"`
	Permalink      string  `json:"permalink"`
	LinkFlairText  string  `json:"link_flair_text"`
}

// postRecord is the Raw payload this adapter yields, archived verbatim
// under the raw/ blob prefix.
type postRecord struct {
	Subreddit string  `json:"subreddit"`
	Post      redditPost `json:"post"`
}

// Fetch polls every configured subreddit's /new.json feed.
func (a *Adapter) Fetch(ctx context.Context) ([]connector.RawRecord, error) {
	var out []connector.RawRecord
	for _, sub := range a.cfg.Subreddits {
		posts, err := a.fetchSubreddit(ctx, sub)
		if err != nil {
			a.logger.Error("reddit: fetch subreddit failed", zap.String("subreddit", sub), zap.Error(err))
			continue
		}
		for _, p := range posts {
			if _, dup := a.seenIDs[p.ID]; dup {
				continue
			}
			a.seenIDs[p.ID] = struct{}{}

			raw, err := json.Marshal(postRecord{Subreddit: sub, Post: p})
			if err != nil {
				return nil, fmt.Errorf("reddit: marshal post record: %w", err)
			}
			out = append(out, connector.RawRecord{
				Raw:     raw,
				TsEvent: time.Unix(int64(p.CreatedUTC), 0).UTC(),
			})
		}
	}
	return out, nil
}

func (a *Adapter) fetchSubreddit(ctx context.Context, subreddit string) ([]redditPost, error) {
	url := fmt.Sprintf("https://www.reddit.com/r/%s/new.json?limit=25&raw_json=1", subreddit)
	res, err := a.client.ConditionalGet(ctx, url, "", "")
	if err != nil {
		return nil, err
	}
	if res.Skip || res.NotModified {
		return nil, nil
	}

	var listing redditListing
	if err := json.Unmarshal(res.Body, &listing); err != nil {
		return nil, fmt.Errorf("reddit: decode listing for r/%s: %w", subreddit, err)
	}

	posts := make([]redditPost, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		posts = append(posts, c.Data)
	}
	return posts, nil
}

// Normalize maps one Reddit post into a partial canonical event.
func (a *Adapter) Normalize(ctx context.Context, raw connector.RawRecord) (connector.Normalized, error) {
	var rec postRecord
	if err := json.Unmarshal(raw.Raw, &rec); err != nil {
		return connector.Normalized{}, fmt.Errorf("reddit: decode post record: %w", err)
	}
	p := rec.Post

	text := p.Title + " " + p.SelfText
	tickers := ExtractTickers(text)
	var symbol string
	if len(tickers) > 0 {
		symbol = tickers[0]
	}

	severity := p.Score + p.NumComments*2
	severity /= 50
	if severity > 100 {
		severity = 100
	}
	if severity < 0 {
		severity = 0
	}

	engagement := float64(p.Score+p.NumComments) / 1000.0
	if engagement > 1.0 {
		engagement = 1.0
	}
	confidence := math.Round((p.UpvoteRatio*0.7+engagement*0.3)*100) / 100

	selftext := p.SelfText
	if len(selftext) > 500 {
		selftext = selftext[:500]
	}

	return connector.Normalized{
		EventType:  events.EventTypeSocialMentions,
		TsEvent:    raw.TsEvent,
		Symbol:     symbol,
		EntityID:   p.Author,
		Severity:   severity,
		Confidence: &confidence,
		Payload: map[string]interface{}{
			"postId":      p.ID,
			"subreddit":   rec.Subreddit,
			"title":       p.Title,
			"text":        selftext,
			"author":      p.Author,
			"score":       p.Score,
			"upvoteRatio": p.UpvoteRatio,
			"numComments": p.NumComments,
			"flair":       p.LinkFlairText,
			"tickers":     tickers,
			"url":         "https://reddit.com" + p.Permalink,
		},
		DedupeKey: fmt.Sprintf("reddit:%s:%s", rec.Subreddit, p.ID),
	}, nil
}

// ExtractTickers returns up to 5 candidate ticker symbols found in text,
// in order of first appearance, filtering common words via the blacklist.
func ExtractTickers(text string) []string {
	matches := tickerPattern.FindAllStringSubmatch(text, -1)
	seen := map[string]struct{}{}
	var tickers []string

	for _, m := range matches {
		ticker := m[1]
		if ticker == "" {
			ticker = m[2]
		}
		if ticker == "" {
			continue
		}
		upper := strings.ToUpper(ticker)
		if _, blocked := tickerBlacklist[upper]; blocked {
			continue
		}
		if _, dup := seen[upper]; dup {
			continue
		}
		seen[upper] = struct{}{}
		tickers = append(tickers, upper)
		if len(tickers) >= maxTickersPerPost {
			break
		}
	}
	return tickers
}
