package printing

import "fmt"

// Content types produced by the label renderers
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// PageSize is a label page in millimeters
type PageSize struct {
	WidthMM  float64
	HeightMM float64
}

// DefaultLabelPage is the 100x150mm thermal shipping label
var DefaultLabelPage = PageSize{WidthMM: 100, HeightMM: 150}

// IsValid reports whether the page fits a real printer
func (p PageSize) IsValid() bool {
	return p.WidthMM >= 40 && p.HeightMM >= 40 && p.WidthMM <= 420 && p.HeightMM <= 1000
}

// String renders the page for logs
func (p PageSize) String() string {
	return fmt.Sprintf("%gx%gmm", p.WidthMM, p.HeightMM)
}

// RenderError represents an error during label rendering or storage
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering failures
const (
	ErrCodeRenderTimeout   = "RENDER_TIMEOUT"
	ErrCodeRenderFailed    = "RENDER_FAILED"
	ErrCodeTemplateFailed  = "TEMPLATE_FAILED"
	ErrCodeEmptySheet      = "EMPTY_SHEET"
	ErrCodeInvalidPageSize = "INVALID_PAGE_SIZE"
	ErrCodeStorageFailed   = "STORAGE_FAILED"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
