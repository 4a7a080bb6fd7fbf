package extract

import (
	"regexp"
	"strings"
	"sync"
)

var (
	patternMu sync.Mutex
	patterns  = map[string]*regexp.Regexp{}
)

// fieldPattern returns the compiled `"key":"value"` matcher for key.
func fieldPattern(key string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	re, ok := patterns[key]
	if !ok {
		re = regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
		patterns[key] = re
	}
	return re
}

// Pattern matches `"key":"value"` directly in raw text, trying keys in the
// given order, and returns the first non-empty value after Unescape. It needs
// no valid JSON around the match.
func Pattern(raw string, keys ...string) (string, bool) {
	for _, k := range keys {
		for _, m := range fieldPattern(k).FindAllStringSubmatch(raw, -1) {
			if v := strings.TrimSpace(Unescape(m[1])); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

var unescaper = strings.NewReplacer(
	`\\`, `\`,
	`\u002F`, "/",
	`\u002f`, "/",
	`\u0026`, "&",
	`\/`, "/",
	`\n`, " ",
	`\"`, `"`,
)

// Unescape decodes the escaped sequences commonly found in inline page data:
// \u002F, \u0026, \/, escaped newlines, escaped quotes and escaped
// backslashes.
func Unescape(s string) string {
	return unescaper.Replace(s)
}
