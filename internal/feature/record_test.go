package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Serialize(t *testing.T) {
	n := "get_user"
	s, err := Record{Name: &n, Body: []Kind{KindReturn}}.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"get_user","args":[],"body":["Return"],"cls":null}`, s)
}

func TestParse(t *testing.T) {
	r, err := Parse(`{"name":"run","args":["self"],"body":["Expr","If"],"cls":"Job"}`)
	require.NoError(t, err)
	assert.Equal(t, "run", *r.Name)
	assert.Equal(t, []string{"self"}, r.Args)
	assert.Equal(t, []Kind{KindExpr, KindIf}, r.Body)
	assert.Equal(t, "Job", *r.Cls)

	r, err = Parse(`{"name":null,"cls":null}`)
	require.NoError(t, err)
	assert.Nil(t, r.Name)
	assert.Equal(t, []string{}, r.Args)
	assert.Equal(t, []Kind{}, r.Body)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse(`{"body":["Yield"]}`)
	assert.Error(t, err)

	_, err = Parse(`not json`)
	assert.Error(t, err)
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindAsyncFunctionDef.Valid())
	assert.True(t, KindFallthrough.Valid())
	assert.False(t, Kind("Lambda").Valid())
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"getWsgiApplication":   "get_wsgi_application",
		"get_wsgi_application": "get_wsgi_application",
		"HTTPServer":           "http_server",
		"ServeHTTP":            "serve_http",
		"__init__":             "__init__",
		"_privateName":         "_private_name",
		"parseV2Response":      "parse_v2_response",
		"already-dashed":       "already_dashed",
		"":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"go", "python"}, r.Names())

	spec, lang := r.Lookup("pkg/stub.pyi")
	require.NotNil(t, spec)
	assert.Equal(t, "python", lang)

	spec, lang = r.Lookup("README.md")
	assert.Nil(t, spec)
	assert.Empty(t, lang)

	_, ok := r.Language("rust")
	assert.False(t, ok)
}
