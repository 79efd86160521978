package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/research-assistant/pkg/research"
)

const DefaultArxivURL = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []ArxivAuthor `xml:"author"`
	Link      []ArxivLink   `xml:"link"`
}

type ArxivAuthor struct {
	Name string `xml:"name"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href  string `xml:"href,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivClient implements research.Searcher against the arXiv Atom API.
type ArxivClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Logger     *slog.Logger
}

func NewArxivClient() *ArxivClient {
	return &ArxivClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    DefaultArxivURL,
	}
}

// Search queries arXiv by relevance and returns one formatted block per
// paper. An empty result set yields research.NoPapersFound.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if maxResults <= 0 {
		maxResults = 3
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("start", "0")
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("sortBy", "relevance")
	apiURL := c.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(bodyBytes))
		return "", fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	logger.Info("arXiv search finished", "query", query, "results", len(feed.Entry))

	if len(feed.Entry) == 0 {
		return research.NoPapersFound, nil
	}

	results := make([]string, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		results = append(results, formatEntry(entry))
	}
	return strings.Join(results, "\n---\n"), nil
}

func formatEntry(entry ArxivEntry) string {
	names := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		names = append(names, strings.TrimSpace(a.Name))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", collapseSpace(entry.Title))
	fmt.Fprintf(&sb, "Authors: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&sb, "Published: %s\n", publishedDate(entry.Published))
	fmt.Fprintf(&sb, "PDF Link: %s\n", pdfLink(entry))
	fmt.Fprintf(&sb, "Summary: %s\n", collapseSpace(entry.Summary))
	return sb.String()
}

func pdfLink(entry ArxivEntry) string {
	for _, link := range entry.Link {
		if link.Type == "application/pdf" || link.Title == "pdf" {
			return link.Href
		}
	}
	for _, link := range entry.Link {
		if link.Href != "" {
			return link.Href
		}
	}
	return ""
}

func publishedDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02")
	}
	return raw
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
