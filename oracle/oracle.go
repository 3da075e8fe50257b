// Package oracle implements the client for the upstream version oracle: a
// line-oriented, '|'- or ';'-delimited protocol exposing a "summary"
// endpoint and a per-product "versions" endpoint.
package oracle

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// ProductNotFound is returned (wrapped) when the oracle reports a product
// as "404/not-found", distinguished from other fetch failures
// so the version poller can log and continue rather than abort its tick.
type ProductNotFound struct {
	Product string
}

func (e *ProductNotFound) Error() string { return "oracle: product not found: " + e.Product }

// SummaryEntry is one row of the summary endpoint's product list.
type SummaryEntry struct {
	Product string
	SeqN    int
	Flags   string
}

// Summary is the parsed response of the summary endpoint.
type Summary struct {
	SequenceID int
	Products   []SummaryEntry
}

// VersionRow is one row of a product's versions list, one per region.
type VersionRow struct {
	Region        string
	BuildConfig   string
	CDNConfig     string
	ProductConfig string
	KeyRing       string
	BuildID       string
	VersionName   string
}

// Client fetches and parses oracle responses over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client against baseURL (no trailing slash).
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// Summary fetches and parses the summary endpoint.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	body, err := c.get(ctx, "/summary")
	if err != nil {
		return Summary{}, errs.WrapFmt(err, "oracle: fetching summary")
	}
	defer body.Close()

	header, rows, seqID, err := parseLines(body)
	if err != nil {
		return Summary{}, errs.WrapFmt(err, "oracle: parsing summary")
	}

	col, err := columnIndex(header, "product", "seqn", "flags")
	if err != nil {
		return Summary{}, errs.WrapFmt(err, "oracle: summary header")
	}

	summary := Summary{SequenceID: seqID}
	for _, row := range rows {
		if len(row) <= col["seqn"] {
			continue
		}
		n, err := strconv.Atoi(row[col["seqn"]])
		if err != nil {
			return Summary{}, errs.WrapFmt(err, "oracle: parsing seqn")
		}
		summary.Products = append(summary.Products, SummaryEntry{
			Product: row[col["product"]],
			SeqN:    n,
			Flags:   row[col["flags"]],
		})
	}
	return summary, nil
}

// Versions fetches and parses the versions list for product.
func (c *Client) Versions(ctx context.Context, product string) ([]VersionRow, error) {
	body, err := c.get(ctx, "/versions/"+product)
	if err != nil {
		var notFound *ProductNotFound
		if errs.As(err, &notFound) {
			return nil, err
		}
		return nil, errs.WrapFmt(err, "oracle: fetching versions for %s", product)
	}
	defer body.Close()

	header, rows, _, err := parseLines(body)
	if err != nil {
		return nil, errs.WrapFmt(err, "oracle: parsing versions for %s", product)
	}

	col, err := columnIndex(header, "region", "buildconfig", "cdnconfig", "productconfig", "keyring", "buildid", "versionsname")
	if err != nil {
		return nil, errs.WrapFmt(err, "oracle: versions header for %s", product)
	}

	out := make([]VersionRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, VersionRow{
			Region:        field(row, col, "region"),
			BuildConfig:   field(row, col, "buildconfig"),
			CDNConfig:     field(row, col, "cdnconfig"),
			ProductConfig: field(row, col, "productconfig"),
			KeyRing:       field(row, col, "keyring"),
			BuildID:       field(row, col, "buildid"),
			VersionName:   field(row, col, "versionsname"),
		})
	}
	return out, nil
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func (c *Client) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &ProductNotFound{Product: strings.TrimPrefix(path, "/versions/")}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errs.Fmt("oracle: unexpected status %d for %s", resp.StatusCode, path)
	}
	return resp.Body, nil
}

// parseLines reads a header row followed by data rows. Each line is split
// on '|'; a line containing no '|' is split on ';' instead. Blank lines
// are skipped. A leading "## seqn = N" comment line (the
// sequence-id marker some oracle deployments prepend) is parsed into seqID
// rather than discarded; it is the only value newerSequence-style
// short-circuits should ever compare, since it is a property of the whole
// summary response, not any one product's row.
func parseLines(r io.Reader) (header []string, rows [][]string, seqID int, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "##") {
			if n, ok := parseSeqnComment(line); ok {
				seqID = n
			}
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) == 1 {
			fields = strings.Split(line, ";")
		}
		if header == nil {
			header = normalizeHeader(fields)
			continue
		}
		rows = append(rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, 0, errs.Wrap(err)
	}
	if header == nil {
		return nil, nil, 0, errs.Fmt("oracle: response has no header row")
	}
	return header, rows, seqID, nil
}

// parseSeqnComment parses a "## seqn = N" comment line, reporting ok=false
// for any other "##" comment.
func parseSeqnComment(line string) (int, bool) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "##"))
	name, value, found := strings.Cut(body, "=")
	if !found || strings.TrimSpace(name) != "seqn" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeHeader strips the "!TYPE:LEN" type-annotation suffix some TACT
// style fields carry (e.g. "SeqN!DEC:4") and lowercases the name.
func normalizeHeader(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		name := f
		if idx := strings.Index(name, "!"); idx >= 0 {
			name = name[:idx]
		}
		out[i] = strings.ToLower(strings.TrimSpace(name))
	}
	return out
}

func columnIndex(header []string, want ...string) (map[string]int, error) {
	col := make(map[string]int, len(want))
	for i, h := range header {
		col[h] = i
	}
	for _, w := range want {
		if _, ok := col[w]; !ok {
			return nil, errs.Fmt("oracle: missing expected column %q in header %v", w, header)
		}
	}
	return col, nil
}
