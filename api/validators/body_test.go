package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stampcard-backend/pkg/errors"
)

type sampleRequest struct {
	Username string `json:"username" validate:"required,username"`
	Count    int    `json:"count" validate:"gte=1"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
		field   string
	}{
		{name: "valid", body: `{"username":"barista_1","count":2}`},
		{name: "unknown field", body: `{"username":"barista","count":1,"extra":true}`, wantErr: true},
		{name: "bad username", body: `{"username":"a b","count":1}`, wantErr: true, field: "username"},
		{name: "zero count", body: `{"username":"barista","count":0}`, wantErr: true, field: "count"},
		{name: "malformed", body: `{"username":`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest sampleRequest
			err := DecodeJSONBody(req, &dest)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			if tc.field != "" {
				details, ok := typed.Details().(map[string]string)
				require.True(t, ok)
				assert.Contains(t, details, tc.field)
			}
		})
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x", nil)

	v, err := ParseQueryInt(req, "limit", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	v, err = ParseQueryInt(req, "missing", 10, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	_, err = ParseQueryInt(req, "bad", 10, 1, 100)
	assert.Error(t, err)

	_, err = ParseQueryInt(req, "limit", 10, 1, 20)
	assert.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Ana", SanitizeString("  Ana \n", 10))
	assert.Equal(t, "abc", SanitizeString(" abcdef", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
}
