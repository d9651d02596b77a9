package mcpsrv

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	csvparser "tabstat/internal/parser/csv"
	"tabstat/internal/source/sheets"
)

// Spreadsheet round-trip tools: read and write Google Sheets, create
// spreadsheets and move files through Drive. They talk to the same sheets
// client the resolver uses, so credentials and base URLs are configured in
// one place.

type readSheetInput struct {
	Sheet string `json:"sheet" jsonschema_description:"Google Sheet URL or spreadsheet ID"`
	Range string `json:"range,omitempty" jsonschema_description:"A1 range, defaults to the whole first tab"`
}

type readSheetOutput struct {
	SpreadsheetID string     `json:"spreadsheet_id"`
	Range         string     `json:"range,omitempty"`
	RowCount      int        `json:"row_count"`
	Rows          [][]string `json:"rows"`
}

type writeSheetInput struct {
	Sheet  string     `json:"sheet" jsonschema_description:"Google Sheet URL or spreadsheet ID"`
	Range  string     `json:"range" jsonschema_description:"Target A1 range, e.g. Sheet1!A1"`
	Values [][]string `json:"values" jsonschema_description:"Rows of cell values to write"`
}

type writeSheetOutput struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
	UpdatedCells  int    `json:"updated_cells"`
}

type createSpreadsheetInput struct {
	Title string `json:"title" jsonschema_description:"Title of the new spreadsheet"`
}

type listDriveFilesInput struct {
	Query     string `json:"query,omitempty" jsonschema_description:"Drive search query, e.g. name contains 'report'"`
	PageSize  int    `json:"page_size,omitempty" jsonschema_description:"Files per page, default 100"`
	PageToken string `json:"page_token,omitempty" jsonschema_description:"Continuation token from a previous call"`
}

type uploadDriveFileInput struct {
	Name       string `json:"name" jsonschema_description:"File name in Drive"`
	MimeType   string `json:"mime_type,omitempty" jsonschema_description:"Content type, default text/csv"`
	DataBase64 string `json:"data_base64" jsonschema_description:"Base64-encoded file content"`
}

type uploadDriveFileOutput struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
}

func registerSheetTools(s *mcpserver.MCPServer, t *tools) {
	readTool := mcp.NewTool(
		"read_sheet",
		mcp.WithDescription("Read the raw cell grid of a Google Sheet"),
		mcp.WithString("sheet", mcp.Required(), mcp.Description("Google Sheet URL or spreadsheet ID")),
		mcp.WithString("range", mcp.Description("A1 range, defaults to the whole first tab")),
		mcp.WithOutputSchema[readSheetOutput](),
	)
	s.AddTool(readTool, mcp.NewTypedToolHandler(t.readSheet))

	writeTool := mcp.NewTool(
		"write_sheet",
		mcp.WithDescription("Write rows of values into a Google Sheet range (requires a token)"),
		mcp.WithInputSchema[writeSheetInput](),
		mcp.WithOutputSchema[writeSheetOutput](),
	)
	s.AddTool(writeTool, mcp.NewTypedToolHandler(t.writeSheet))

	createTool := mcp.NewTool(
		"create_spreadsheet",
		mcp.WithDescription("Create an empty spreadsheet and return its ID and URL (requires a token)"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the new spreadsheet")),
		mcp.WithOutputSchema[sheets.Created](),
	)
	s.AddTool(createTool, mcp.NewTypedToolHandler(t.createSpreadsheet))

	listTool := mcp.NewTool(
		"list_drive_files",
		mcp.WithDescription("List Drive files visible to the configured credentials"),
		mcp.WithString("query", mcp.Description("Drive search query")),
		mcp.WithNumber("page_size", mcp.DefaultNumber(100), mcp.Min(1), mcp.Max(1000), mcp.Description("Files per page")),
		mcp.WithString("page_token", mcp.Description("Continuation token from a previous call")),
		mcp.WithOutputSchema[sheets.FileList](),
	)
	s.AddTool(listTool, mcp.NewTypedToolHandler(t.listDriveFiles))

	uploadTool := mcp.NewTool(
		"upload_drive_file",
		mcp.WithDescription("Upload a file to Drive (requires a token)"),
		mcp.WithString("name", mcp.Required(), mcp.Description("File name in Drive")),
		mcp.WithString("mime_type", mcp.Description("Content type, default text/csv")),
		mcp.WithString("data_base64", mcp.Required(), mcp.Description("Base64-encoded file content")),
		mcp.WithOutputSchema[uploadDriveFileOutput](),
	)
	s.AddTool(uploadTool, mcp.NewTypedToolHandler(t.uploadDriveFile))
}

func (t *tools) readSheet(ctx context.Context, req mcp.CallToolRequest, in readSheetInput) (*mcp.CallToolResult, error) {
	ref, err := sheets.ParseRef(in.Sheet)
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: " + err.Error()), nil
	}

	values, csvData, err := t.svc.Resolver.Sheets.ReadValues(ctx, ref, in.Range)
	if err != nil {
		return mcp.NewToolResultError("READ_FAILED: " + err.Error()), nil
	}
	if values == nil {
		header, rows, err := csvparser.Read(ctx, bytes.NewReader(csvData), csvparser.Options{})
		if err != nil {
			return mcp.NewToolResultError("READ_FAILED: " + err.Error()), nil
		}
		values = append([][]string{header}, rows...)
	}

	out := readSheetOutput{
		SpreadsheetID: ref.SpreadsheetID,
		Range:         in.Range,
		RowCount:      len(values),
		Rows:          values,
	}
	text := renderGrid(values)
	res := mcp.NewToolResultStructured(out, text)
	res.Content = []mcp.Content{mcp.NewTextContent(text)}
	return res, nil
}

func (t *tools) writeSheet(ctx context.Context, req mcp.CallToolRequest, in writeSheetInput) (*mcp.CallToolResult, error) {
	rng := strings.TrimSpace(in.Range)
	if rng == "" {
		return mcp.NewToolResultError("VALIDATION: range is required"), nil
	}
	if len(in.Values) == 0 {
		return mcp.NewToolResultError("VALIDATION: values must be a non-empty array of rows"), nil
	}
	ref, err := sheets.ParseRef(in.Sheet)
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: " + err.Error()), nil
	}

	n, err := t.svc.Resolver.Sheets.Write(ctx, ref, rng, in.Values)
	if err != nil {
		return mcp.NewToolResultError("WRITE_FAILED: " + err.Error()), nil
	}

	out := writeSheetOutput{SpreadsheetID: ref.SpreadsheetID, Range: rng, UpdatedCells: n}
	return mcp.NewToolResultStructured(out, fmt.Sprintf("updated %d cells in %s", n, rng)), nil
}

func (t *tools) createSpreadsheet(ctx context.Context, req mcp.CallToolRequest, in createSpreadsheetInput) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return mcp.NewToolResultError("VALIDATION: title is required"), nil
	}

	created, err := t.svc.Resolver.Sheets.Create(ctx, title)
	if err != nil {
		return mcp.NewToolResultError("CREATE_FAILED: " + err.Error()), nil
	}
	text := fmt.Sprintf("created %s (%s)", created.SpreadsheetID, created.URL)
	return mcp.NewToolResultStructured(created, text), nil
}

func (t *tools) listDriveFiles(ctx context.Context, req mcp.CallToolRequest, in listDriveFilesInput) (*mcp.CallToolResult, error) {
	list, err := t.svc.Resolver.Sheets.ListFiles(ctx, in.Query, in.PageSize, in.PageToken)
	if err != nil {
		return mcp.NewToolResultError("LIST_FAILED: " + err.Error()), nil
	}

	var b strings.Builder
	for _, f := range list.Files {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", f.ID, f.Name, f.MimeType)
	}
	if list.NextPageToken != "" {
		fmt.Fprintf(&b, "next page: %s\n", list.NextPageToken)
	}
	res := mcp.NewToolResultStructured(list, b.String())
	res.Content = []mcp.Content{mcp.NewTextContent(b.String())}
	return res, nil
}

func (t *tools) uploadDriveFile(ctx context.Context, req mcp.CallToolRequest, in uploadDriveFileInput) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return mcp.NewToolResultError("VALIDATION: name is required"), nil
	}
	data, err := base64.StdEncoding.DecodeString(in.DataBase64)
	if err != nil {
		return mcp.NewToolResultError("VALIDATION: bad data_base64: " + err.Error()), nil
	}
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "text/csv"
	}

	id, err := t.svc.Resolver.Sheets.Upload(ctx, name, mimeType, data)
	if err != nil {
		return mcp.NewToolResultError("UPLOAD_FAILED: " + err.Error()), nil
	}

	out := uploadDriveFileOutput{FileID: id, Name: name}
	return mcp.NewToolResultStructured(out, fmt.Sprintf("uploaded %q as %s", name, id)), nil
}

// renderGrid renders rows as CSV text for clients that ignore structured
// content.
func renderGrid(rows [][]string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			break
		}
	}
	w.Flush()
	return b.String()
}
