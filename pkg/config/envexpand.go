package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// The {{.VAR_NAME}} syntax leaves literal $ characters (tokens, URLs with
// query strings) untouched.
//
// Examples:
//   - token: {{.STATUSWATCH_TOKEN}} → value of STATUSWATCH_TOKEN
//   - base_url: https://{{.API_HOST}}/api → host substituted
//   - token: "abc$def" → preserved literally
//
// Missing variables expand to an empty string. Content that is not a valid
// template is returned unchanged.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
