package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// urlPattern matches an http(s) scheme followed by any run of non-whitespace
var urlPattern = regexp.MustCompile(`https?://\S+`)

// trailingPunctuation is stripped from matches so sentence punctuation is
// not swallowed into the URL
const trailingPunctuation = ".,;)"

// DiscoverURLs extracts candidate URLs from free text blocks. Results are
// deduplicated and keep first-seen order. No validation happens here; a
// malformed URL surfaces later as a per-item fetch error.
func DiscoverURLs(blocks ...string) []string {
	seen := make(map[string]bool)
	urls := make([]string, 0)

	for _, block := range blocks {
		for _, match := range urlPattern.FindAllString(block, -1) {
			u := strings.TrimRight(match, trailingPunctuation)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			urls = append(urls, u)
		}
	}

	return urls
}

// ProductID returns the stable content hash used as a record's id
func ProductID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}
