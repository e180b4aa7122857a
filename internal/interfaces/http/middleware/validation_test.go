package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleFilter struct {
	Channel string   `json:"channel" binding:"required,channel"`
	Status  string   `json:"status" binding:"omitempty,order_status"`
	IDs     []string `json:"order_ids" binding:"required,min=1"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	RegisterValidators(v)
	return v
}

func TestRegisterValidators(t *testing.T) {
	v := newValidator()

	assert.NoError(t, v.Struct(sampleFilter{Channel: "marketplace-A", Status: "PAID", IDs: []string{"o-1"}}))

	err := v.Struct(sampleFilter{Channel: "fax", Status: "LOST", IDs: nil})
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]string{}
	for _, e := range verrs {
		fields[e.Field()] = e.Tag()
	}
	assert.Equal(t, "channel", fields["channel"])
	assert.Equal(t, "order_status", fields["status"])
	assert.Equal(t, "required", fields["order_ids"])
}

func TestFormatValidationErrors(t *testing.T) {
	v := newValidator()
	err := v.Struct(sampleFilter{Channel: "fax", IDs: []string{"o-1"}})
	require.Error(t, err)

	resp := FormatValidationErrors(err, "req-1")
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Kind)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "channel", resp.Error.Details[0].Field)
	assert.Equal(t, "Unknown sales channel", resp.Error.Details[0].Message)
}

func TestFormatValidationErrors_Malformed(t *testing.T) {
	resp := FormatValidationErrors(errors.New("unexpected EOF"), "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "unexpected EOF")
	assert.Empty(t, resp.Error.Details)
}

func TestHandleValidationError(t *testing.T) {
	SetupValidator()
	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var req sampleFilter
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/test",
		strings.NewReader(`{"channel":"marketplace-A","status":"SHIPPED","order_ids":[]}`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"order_ids"`)
}
