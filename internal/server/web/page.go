package web

import (
	"bytes"
	"html/template"
	"log"
	"net/http"

	"tabstat/internal/analysis"
)

// pageData feeds the single HTML page: the form (with echoed values), an
// optional result pane and an optional error banner.
type pageData struct {
	Ops []analysis.OpInfo

	Form formEcho

	Result     *analysis.Result
	ResultText string

	ErrorCode string
	Error     string
}

// formEcho repeats the submitted values so a failed attempt keeps its input.
type formEcho struct {
	Path   string
	URL    string
	Sheet  string
	Op     string
	Column string
}

// Fail records an error banner for the next render.
func (d *pageData) Fail(code, msg string) {
	d.ErrorCode = code
	d.Error = msg
}

func (h *Handler) renderPage(w http.ResponseWriter, data *pageData) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		log.Printf("web: render page: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>tabstat</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 58rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
h1 { margin-bottom: 0; }
p.tag { margin-top: 0.2rem; color: #666; }
fieldset { border: 1px solid #ccc; border-radius: 4px; margin-bottom: 1rem; }
label { display: block; margin: 0.4rem 0; }
input[type=text] { width: 28rem; max-width: 100%; }
.banner { background: #fde8e8; border: 1px solid #c0392b; color: #7b241c; padding: 0.6rem 0.8rem; border-radius: 4px; margin-bottom: 1rem; }
.banner code { font-weight: bold; }
pre.result { background: #f6f6f6; border: 1px solid #ddd; padding: 0.8rem; overflow-x: auto; }
button { padding: 0.4rem 1.2rem; }
</style>
</head>
<body>
<h1>tabstat</h1>
<p class="tag">statistics over CSV, Excel, JSON, HTML tables, Google Sheets and SQL queries</p>

{{if .Error}}<div class="banner"><code>{{.ErrorCode}}</code> {{.Error}}</div>{{end}}

<form method="post" action="/analyze" enctype="multipart/form-data">
<fieldset>
<legend>Input (first non-empty wins)</legend>
<label>Upload a file <input type="file" name="file"></label>
<label>Local path <input type="text" name="path" value="{{.Form.Path}}" placeholder="/data/sales.csv"></label>
<label>URL <input type="text" name="url" value="{{.Form.URL}}" placeholder="https://example.com/data.csv"></label>
<label>Google Sheet <input type="text" name="sheet" value="{{.Form.Sheet}}" placeholder="sheet URL or ID"></label>
</fieldset>
<fieldset>
<legend>Operation</legend>
<label>Operation
<select name="op">
{{range .Ops}}<option value="{{.Name}}"{{if eq .Name $.Form.Op}} selected{{end}}>{{.Name}} &mdash; {{.Doc}}</option>
{{end}}</select>
</label>
<label>Column (describe only) <input type="text" name="column" value="{{.Form.Column}}"></label>
<label>Format
<select name="format">
<option value="">auto</option>
<option value="csv">csv</option>
<option value="tsv">tsv</option>
<option value="xlsx">xlsx</option>
<option value="json">json</option>
<option value="html">html</option>
</select>
</label>
<label>Encoding
<select name="encoding">
<option value="">utf-8</option>
<option value="latin-1">latin-1</option>
<option value="windows-1252">windows-1252</option>
</select>
</label>
</fieldset>
<button type="submit">Analyze</button>
</form>

{{if .Result}}
<h2>{{.Result.Op}}</h2>
<pre class="result">{{.ResultText}}</pre>
{{end}}
</body>
</html>
`))
