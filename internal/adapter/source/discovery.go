package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Existence-check and index-scrape requests are cheap and short-lived;
// transfers get their own longer timeout in the downloader.
const headTimeout = 10 * time.Second

// TemplateDiscovery resolves gazette URLs from a date-token template.
// Supported tokens: {year}, {month}, {day} and {date} (YYYY-MM-DD).
//
// For sources that publish an index page, LatestURL scrapes it and takes
// the first link matching the configured selector; otherwise the latest
// edition is assumed to be today's.
type TemplateDiscovery struct {
	code         string
	urlTemplate  string
	latestPage   string
	linkSelector string
	client       *http.Client
	now          func() time.Time
}

// TemplateConfig declares one template-driven discovery.
type TemplateConfig struct {
	Code         string
	URLTemplate  string
	LatestPage   string
	LinkSelector string
}

// NewTemplateDiscovery builds discovery for one source. client may be nil,
// in which case a short-timeout default is used.
func NewTemplateDiscovery(cfg TemplateConfig, client *http.Client) *TemplateDiscovery {
	if client == nil {
		client = &http.Client{Timeout: headTimeout}
	}
	return &TemplateDiscovery{
		code:         cfg.Code,
		urlTemplate:  cfg.URLTemplate,
		latestPage:   cfg.LatestPage,
		linkSelector: cfg.LinkSelector,
		client:       client,
		now:          time.Now,
	}
}

// SourceCode returns the source identifier.
func (d *TemplateDiscovery) SourceCode() string {
	return d.code
}

// URLForDate expands the template for the given edition date.
func (d *TemplateDiscovery) URLForDate(date time.Time) (string, error) {
	if d.urlTemplate == "" {
		return "", fmt.Errorf("source %s: no url template", d.code)
	}
	replacer := strings.NewReplacer(
		"{date}", date.Format("2006-01-02"),
		"{year}", date.Format("2006"),
		"{month}", date.Format("01"),
		"{day}", date.Format("02"),
	)
	return replacer.Replace(d.urlTemplate), nil
}

// LatestURL resolves the most recently published edition.
func (d *TemplateDiscovery) LatestURL(ctx context.Context) (string, error) {
	if d.latestPage == "" {
		return d.URLForDate(d.now())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.latestPage, nil)
	if err != nil {
		return "", fmt.Errorf("source %s: build index request: %w", d.code, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("source %s: fetch index: %w", d.code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source %s: index returned %s", d.code, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("source %s: parse index: %w", d.code, err)
	}

	selector := d.linkSelector
	if selector == "" {
		selector = `a[href$=".pdf"]`
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("source %s: no edition link on index page", d.code)
	}
	return d.resolveHref(href)
}

func (d *TemplateDiscovery) resolveHref(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("source %s: bad edition link %q: %w", d.code, href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(d.latestPage)
	if err != nil {
		return "", fmt.Errorf("source %s: bad index url: %w", d.code, err)
	}
	return base.ResolveReference(ref).String(), nil
}

var urlDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// DateFromURL extracts a YYYY-MM-DD edition date embedded in a gazette
// URL. Template-driven sources carry the date in the path or query, so a
// URL resolved from an index page still identifies its edition.
func DateFromURL(rawURL string) (time.Time, bool) {
	match := urlDatePattern.FindString(rawURL)
	if match == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", match)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Exists checks a candidate URL with an HTTP HEAD request. Timeouts and
// non-2xx/3xx responses count as a miss for that candidate.
func Exists(ctx context.Context, client *http.Client, rawURL string) bool {
	if client == nil {
		client = &http.Client{Timeout: headTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
