// Package sheets is a hand-written REST client for the Google Sheets and
// Drive v4/v3 APIs, plus the public CSV export endpoint.
//
// Reads work three ways, in order of preference: bearer token, API key, and
// for publicly readable spreadsheets the credential-free CSV export
// endpoint. Writes (update, create, upload) always need a token.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Ref identifies one spreadsheet, optionally one tab within it.
type Ref struct {
	SpreadsheetID string
	GID           string // tab id from a #gid= fragment; "" means first tab
}

var (
	refIDPattern  = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	refGIDPattern = regexp.MustCompile(`[#&?]gid=([0-9]+)`)
	bareIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{20,}$`)
)

// ParseRef accepts a full docs.google.com spreadsheet URL or a bare
// spreadsheet ID.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("sheets: empty reference")
	}

	if m := refIDPattern.FindStringSubmatch(s); m != nil {
		ref := Ref{SpreadsheetID: m[1]}
		if g := refGIDPattern.FindStringSubmatch(s); g != nil {
			ref.GID = g[1]
		}
		return ref, nil
	}

	if bareIDPattern.MatchString(s) {
		return Ref{SpreadsheetID: s}, nil
	}

	return Ref{}, fmt.Errorf("sheets: %q is neither a spreadsheet URL nor an ID", s)
}

// Config controls the client. Base URLs exist so tests can point at a local
// server; empty fields get the public endpoints.
type Config struct {
	// Token is an OAuth bearer token. Takes precedence over APIKey.
	Token string

	// APIKey authenticates read-only API calls via the key query parameter.
	APIKey string

	SheetsBaseURL string // default https://sheets.googleapis.com/v4
	DriveBaseURL  string // default https://www.googleapis.com/drive/v3
	UploadBaseURL string // default https://www.googleapis.com/upload/drive/v3
	ExportBaseURL string // default https://docs.google.com

	// Timeout bounds each call; 0 means 30s.
	Timeout time.Duration
}

const (
	defaultSheetsBase = "https://sheets.googleapis.com/v4"
	defaultDriveBase  = "https://www.googleapis.com/drive/v3"
	defaultUploadBase = "https://www.googleapis.com/upload/drive/v3"
	defaultExportBase = "https://docs.google.com"

	// defaultRange covers columns A through ZZ of the first tab, which is
	// plenty for tabular data; callers pass an explicit range for more.
	defaultRange = "A:ZZ"
)

// Client calls the Sheets and Drive APIs. Safe for concurrent use.
type Client struct {
	cfg Config
	hc  *http.Client
}

// NewClient builds a client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.SheetsBaseURL == "" {
		cfg.SheetsBaseURL = defaultSheetsBase
	}
	if cfg.DriveBaseURL == "" {
		cfg.DriveBaseURL = defaultDriveBase
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = defaultUploadBase
	}
	if cfg.ExportBaseURL == "" {
		cfg.ExportBaseURL = defaultExportBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

// Credentialed reports whether API calls can be authenticated.
func (c *Client) Credentialed() bool { return c.cfg.Token != "" || c.cfg.APIKey != "" }

// CanWrite reports whether write operations are possible.
func (c *Client) CanWrite() bool { return c.cfg.Token != "" }

// ReadValues fetches the cell grid of ref. With credentials it uses the
// values.get API; without, it falls back to the public CSV export endpoint
// and returns the raw CSV bytes instead of a grid (csvFallback=true).
//
// rng is an A1 range; empty means the default A:ZZ window of the first tab.
func (c *Client) ReadValues(ctx context.Context, ref Ref, rng string) (values [][]string, csvFallback []byte, err error) {
	if !c.Credentialed() {
		data, err := c.exportCSV(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		return nil, data, nil
	}

	if rng == "" {
		rng = defaultRange
	}

	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		c.cfg.SheetsBaseURL, url.PathEscape(ref.SpreadsheetID), url.PathEscape(rng))

	var out struct {
		Values [][]any `json:"values"`
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, nil, err
	}

	values = make([][]string, len(out.Values))
	for i, row := range out.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = renderCell(v)
		}
		values[i] = cells
	}
	return values, nil, nil
}

// exportCSV downloads the public CSV export of ref.
func (c *Client) exportCSV(ctx context.Context, ref Ref) ([]byte, error) {
	u := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv",
		c.cfg.ExportBaseURL, url.PathEscape(ref.SpreadsheetID))
	if ref.GID != "" {
		u += "&gid=" + url.QueryEscape(ref.GID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sheets: export: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets: export %s: %w", ref.SpreadsheetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sheets: export %s: status %s (is the sheet shared publicly?)", ref.SpreadsheetID, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sheets: export %s: read: %w", ref.SpreadsheetID, err)
	}
	return data, nil
}

// Created describes a spreadsheet made by Create.
type Created struct {
	SpreadsheetID string `json:"spreadsheetId"`
	URL           string `json:"spreadsheetUrl"`
}

// Create makes a new spreadsheet with the given title.
func (c *Client) Create(ctx context.Context, title string) (Created, error) {
	if !c.CanWrite() {
		return Created{}, fmt.Errorf("sheets: creating a spreadsheet requires a token")
	}

	body := map[string]any{"properties": map[string]any{"title": title}}
	var out Created
	u := c.cfg.SheetsBaseURL + "/spreadsheets"
	if err := c.doJSON(ctx, http.MethodPost, u, body, &out); err != nil {
		return Created{}, err
	}
	return out, nil
}

// Write replaces the cells of rng with values using RAW input (cells store
// exactly what was sent, no formula or number coercion). Returns the number
// of updated cells.
func (c *Client) Write(ctx context.Context, ref Ref, rng string, values [][]string) (int, error) {
	if !c.CanWrite() {
		return 0, fmt.Errorf("sheets: writing requires a token")
	}
	if rng == "" {
		rng = "A1"
	}

	grid := make([][]any, len(values))
	for i, row := range values {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		grid[i] = cells
	}

	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.cfg.SheetsBaseURL, url.PathEscape(ref.SpreadsheetID), url.PathEscape(rng))

	body := map[string]any{
		"range":          rng,
		"majorDimension": "ROWS",
		"values":         grid,
	}
	var out struct {
		UpdatedCells int `json:"updatedCells"`
	}
	if err := c.doJSON(ctx, http.MethodPut, u, body, &out); err != nil {
		return 0, err
	}
	return out.UpdatedCells, nil
}

// DriveFile is one file in a Drive listing.
type DriveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime"`
}

// FileList is one page of Drive results.
type FileList struct {
	Files         []DriveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// ListFiles lists Drive files matching the query (Drive q syntax; empty
// lists everything visible), paged by pageSize/pageToken.
func (c *Client) ListFiles(ctx context.Context, query string, pageSize int, pageToken string) (FileList, error) {
	if !c.Credentialed() {
		return FileList{}, fmt.Errorf("sheets: listing drive files requires credentials")
	}
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 100
	}

	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("fields", "files(id,name,mimeType,modifiedTime),nextPageToken")
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var out FileList
	u := c.cfg.DriveBaseURL + "/files?" + q.Encode()
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out); err != nil {
		return FileList{}, err
	}
	return out, nil
}

// Upload stores data as a new Drive file via the multipart upload endpoint
// and returns its file ID.
func (c *Client) Upload(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if !c.CanWrite() {
		return "", fmt.Errorf("sheets: uploading requires a token")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", fmt.Errorf("sheets: upload: %w", err)
	}
	if err := json.NewEncoder(meta).Encode(map[string]string{"name": name}); err != nil {
		return "", fmt.Errorf("sheets: upload: encode metadata: %w", err)
	}

	media, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return "", fmt.Errorf("sheets: upload: %w", err)
	}
	if _, err := media.Write(data); err != nil {
		return "", fmt.Errorf("sheets: upload: write media: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("sheets: upload: %w", err)
	}

	u := c.cfg.UploadBaseURL + "/files?uploadType=multipart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return "", fmt.Errorf("sheets: upload: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("sheets: upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apiError("upload "+name, resp)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sheets: upload %s: decode response: %w", name, err)
	}
	return out.ID, nil
}

// doJSON performs one authenticated JSON round trip.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sheets: encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return fmt.Errorf("sheets: %s %s: %w", method, rawURL, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("sheets: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(method+" "+req.URL.Path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sheets: decode response: %w", err)
	}
	return nil
}

// authorize attaches the token header or the key query parameter.
func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		return
	}
	if c.cfg.APIKey != "" {
		q := req.URL.Query()
		q.Set("key", c.cfg.APIKey)
		req.URL.RawQuery = q.Encode()
	}
}

// apiError summarizes a failed API response, keeping the body snippet short
// enough to surface in an error banner.
func apiError(what string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	trimmed := strings.TrimSpace(string(snippet))
	if trimmed == "" {
		return fmt.Errorf("sheets: %s: status %s", what, resp.Status)
	}
	return fmt.Errorf("sheets: %s: status %s: %s", what, resp.Status, trimmed)
}

// renderCell flattens a values.get cell into a string.
func renderCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}
