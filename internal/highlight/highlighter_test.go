package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "react", DetectLanguage("src/App.jsx"))
	assert.Equal(t, "css", DetectLanguage("src/index.css"))
	assert.Equal(t, "html", DetectLanguage("index.html"))
	assert.Equal(t, "json", DetectLanguage("package.json"))
	assert.Equal(t, "bash", DetectLanguage(".env.local"))
	assert.Equal(t, "", DetectLanguage("LICENSE"))
}

func TestFileNumbersLines(t *testing.T) {
	out := New("").File("src/App.jsx", "const a = 1;\nconst b = 2;\n")
	assert.Contains(t, out, "src/App.jsx")
	assert.Contains(t, out, "   1")
	assert.Contains(t, out, "   2")
	assert.NotContains(t, out, "   3")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestHighlightUnknownLanguageKeepsText(t *testing.T) {
	out := New("dracula").Highlight("plain words", "")
	assert.Contains(t, out, "plain")
}
