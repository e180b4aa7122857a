package printing

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// LabelTemplate renders a label sheet to a self-contained HTML document,
// one label per page. Amounts and counts are formatted for the configured
// locale; everything else on the label is data.
type LabelTemplate struct {
	tmpl    *template.Template
	printer *message.Printer
	tag     language.Tag
	page    PageSize
}

// NewLabelTemplate parses the built-in label layout. An empty or unknown
// locale falls back to English.
func NewLabelTemplate(locale string, page PageSize) (*LabelTemplate, error) {
	if page == (PageSize{}) {
		page = DefaultLabelPage
	}
	if !page.IsValid() {
		return nil, NewRenderError(ErrCodeInvalidPageSize, "invalid label page size: "+page.String(), nil)
	}

	tag := language.English
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		}
	}

	t := &LabelTemplate{
		printer: message.NewPrinter(tag),
		tag:     tag,
		page:    page,
	}

	funcs := template.FuncMap{
		"money":     t.formatMoney,
		"count":     t.formatCount,
		"datetime":  formatDateTime,
		"title":     t.titleCase,
		"shortUUID": shortUUID,
		"inc":       func(i int) int { return i + 1 },
	}

	tmpl, err := template.New("labels").Funcs(funcs).Parse(labelSheetHTML)
	if err != nil {
		return nil, NewRenderError(ErrCodeTemplateFailed, "failed to parse label template", err)
	}
	t.tmpl = tmpl
	return t, nil
}

// Page returns the label page size
func (t *LabelTemplate) Page() PageSize {
	return t.page
}

type sheetView struct {
	Title       string
	GeneratedAt time.Time
	Labels      []fulfillment.ShippingLabel
	Total       int
	WidthMM     float64
	HeightMM    float64
	Lang        string
}

// Execute renders the sheet
func (t *LabelTemplate) Execute(sheet fulfillment.LabelSheet) (string, error) {
	if len(sheet.Labels) == 0 {
		return "", NewRenderError(ErrCodeEmptySheet, "label sheet has no labels", nil)
	}

	view := sheetView{
		Title:       sheet.Title,
		GeneratedAt: sheet.GeneratedAt,
		Labels:      sheet.Labels,
		Total:       len(sheet.Labels),
		WidthMM:     t.page.WidthMM,
		HeightMM:    t.page.HeightMM,
		Lang:        t.tag.String(),
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, view); err != nil {
		return "", NewRenderError(ErrCodeTemplateFailed, "failed to execute label template", err)
	}
	return buf.String(), nil
}

func (t *LabelTemplate) formatMoney(d decimal.Decimal) string {
	return t.printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

func (t *LabelTemplate) formatCount(n int) string {
	return t.printer.Sprint(number.Decimal(n))
}

func (t *LabelTemplate) titleCase(s string) string {
	return cases.Title(t.tag).String(strings.ReplaceAll(s, "_", " "))
}

func formatDateTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02 15:04 UTC")
}

func shortUUID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

const labelSheetHTML = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
@page { size: {{.WidthMM}}mm {{.HeightMM}}mm; margin: 0; }
* { box-sizing: border-box; }
body { margin: 0; font-family: "DejaVu Sans", Arial, sans-serif; font-size: 10pt; }
.label { width: {{.WidthMM}}mm; height: {{.HeightMM}}mm; padding: 4mm; page-break-after: always; overflow: hidden; }
.label:last-child { page-break-after: auto; }
.head { display: flex; justify-content: space-between; border-bottom: 2px solid #000; padding-bottom: 2mm; }
.channel { font-size: 14pt; font-weight: bold; }
.ref { font-family: monospace; font-size: 12pt; }
.to { margin: 3mm 0; }
.to .name { font-size: 13pt; font-weight: bold; }
table { width: 100%; border-collapse: collapse; font-size: 9pt; }
th, td { text-align: left; padding: 1mm 0; border-bottom: 1px dotted #999; }
td.qty, th.qty { text-align: right; }
.foot { margin-top: 2mm; display: flex; justify-content: space-between; font-size: 8pt; }
.remark { margin-top: 2mm; font-style: italic; }
</style>
</head>
<body>
{{- $total := .Total }}
{{- range $i, $l := .Labels }}
<section class="label" data-order-id="{{$l.OrderID}}">
  <div class="head">
    <span class="channel">{{title $l.Channel.String}}</span>
    <span class="ref">{{if $l.ExternalOrderID}}{{$l.ExternalOrderID}}{{else}}#{{shortUUID $l.OrderID}}{{end}}</span>
  </div>
  <div class="to">
    <div class="name">{{$l.RecipientName}}</div>
    <div class="address">{{$l.ShippingAddress}}</div>
  </div>
  <table>
    <thead><tr><th>SKU</th><th>Item</th><th class="qty">Qty</th></tr></thead>
    <tbody>
    {{- range $l.Items }}
      <tr><td>{{.SKU}}</td><td>{{.Name}}</td><td class="qty">{{count .Quantity}}</td></tr>
    {{- end }}
    </tbody>
  </table>
  <div class="foot">
    <span>{{count $l.ItemCount}} pcs · {{money $l.TotalAmount}}</span>
    <span>{{if $l.BatchNumber}}Batch {{$l.BatchNumber}} · {{end}}{{datetime $l.OrderDatetime}}</span>
    <span>{{inc $i}}/{{$total}}</span>
  </div>
  {{- if $l.Remark }}
  <div class="remark">{{$l.Remark}}</div>
  {{- end }}
</section>
{{- end }}
</body>
</html>
`

// String describes the template for logs
func (t *LabelTemplate) String() string {
	return fmt.Sprintf("label template %s (%s)", t.page, t.tag)
}
