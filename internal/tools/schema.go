package tools

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// CheckArgs verifies args against the top level of a declaration's
// parameter schema: required fields are present and present fields have
// the declared type. Nested items are left to the tool's own Validate.
func CheckArgs(decl *genai.FunctionDeclaration, args map[string]any) error {
	if decl == nil || decl.Parameters == nil {
		return nil
	}
	params := decl.Parameters

	for _, field := range params.Required {
		if _, ok := args[field]; !ok {
			return NewValidationError(field, "is required")
		}
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		prop, ok := params.Properties[k]
		if !ok || prop == nil {
			continue
		}
		if !matchesType(prop.Type, args[k]) {
			return NewValidationError(k, "must be of type "+typeName(prop.Type))
		}
	}
	return nil
}

func matchesType(t genai.Type, v any) bool {
	switch t {
	case genai.TypeString:
		_, ok := v.(string)
		return ok
	case genai.TypeArray:
		_, ok := v.([]any)
		return ok
	case genai.TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case genai.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case genai.TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, json.Number:
			return true
		}
		return false
	case genai.TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	default:
		return true
	}
}

func typeName(t genai.Type) string {
	switch t {
	case genai.TypeString:
		return "string"
	case genai.TypeArray:
		return "array"
	case genai.TypeObject:
		return "object"
	case genai.TypeBoolean:
		return "boolean"
	case genai.TypeNumber:
		return "number"
	case genai.TypeInteger:
		return "integer"
	default:
		return string(t)
	}
}

var contentUnescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`)

// unescapeContent turns literal \n sequences into newlines when a model
// double-escaped the file body. \" is unescaped in the same pass.
func unescapeContent(content string) string {
	if !strings.Contains(content, `\n`) {
		return content
	}
	return contentUnescaper.Replace(content)
}
