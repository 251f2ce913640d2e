package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSpec = `
openapi: 3.0.0
info:
  title: Sample API
  version: 1.0.0
paths:
  /users:
    get:
      operationId: listUsers
      responses:
        '200':
          description: OK
          content:
            application/json:
              example:
                users: []
  /users/{id}:
    get:
      operationId: getUser
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        '404':
          description: Not Found
        '200':
          description: OK
`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFromOpenAPI(t *testing.T) {
	profiles, err := FromOpenAPI(writeSpec(t, sampleSpec))
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	byID := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		byID[p.Responses[0].Identifier] = p
	}

	list, ok := byID["listUsers"]
	require.True(t, ok)
	assert.Equal(t, "GET", list.Request.Method)
	assert.Equal(t, 200, list.Responses[0].StatusCode)
	assert.JSONEq(t, `{"users": []}`, string(list.Responses[0].Body))
	_, limited := list.Responses[0].Repeatability.MaxUses()
	assert.False(t, limited)

	get, ok := byID["getUser"]
	require.True(t, ok)
	assert.Equal(t, 200, get.Responses[0].StatusCode, "lowest documented status code wins")
	assert.Empty(t, get.Responses[0].Body)
}

func TestFromOpenAPIPatternMatchesConcreteURLs(t *testing.T) {
	profiles, err := FromOpenAPI(writeSpec(t, sampleSpec))
	require.NoError(t, err)

	var get *Profile
	for _, p := range profiles {
		if p.Responses[0].Identifier == "getUser" {
			get = p
		}
	}
	require.NotNil(t, get)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://api.example.com/users/42", true},
		{"http://localhost:8080/users/abc?verbose=1", true},
		{"https://api.example.com/users/42/orders", false},
		{"https://api.example.com/users/", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, get.Request.Pattern.Matches(tt.url), tt.url)
	}
}

func TestPathExpression(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"/users", `^https?://[^/]+/users(\?.*)?$`},
		{"/users/{id}", `^https?://[^/]+/users/[^/?#]+(\?.*)?$`},
		{"/a/{x}/b/{y}", `^https?://[^/]+/a/[^/?#]+/b/[^/?#]+(\?.*)?$`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pathExpression(tt.template))
	}
}

func TestFromOpenAPIInvalidDocument(t *testing.T) {
	_, err := FromOpenAPI(writeSpec(t, "openapi: 3.0.0\ninfo:\n  title: broken\n"))
	assert.Error(t, err)
}
