package printing

import (
	"context"

	"github.com/orderhub/backend/internal/domain/fulfillment"
)

// HTMLRenderer returns the label sheet as an HTML document. It is used when
// no browser is available; the browser's own print dialog produces the PDF.
type HTMLRenderer struct {
	tmpl *LabelTemplate
}

// NewHTMLRenderer creates a new HTMLRenderer
func NewHTMLRenderer(tmpl *LabelTemplate) *HTMLRenderer {
	return &HTMLRenderer{tmpl: tmpl}
}

// Render executes the label template
func (r *HTMLRenderer) Render(ctx context.Context, sheet fulfillment.LabelSheet) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	html, err := r.tmpl.Execute(sheet)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

// ContentType returns the produced content type
func (r *HTMLRenderer) ContentType() string {
	return ContentTypeHTML
}

// Close is a no-op
func (r *HTMLRenderer) Close() error {
	return nil
}

var _ fulfillment.LabelRenderer = (*HTMLRenderer)(nil)
