// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	endpointPattern = regexp.MustCompile(`rtmps?://[^"'\s()]+/(?:third|thirdgame)\b`)
	codePattern     = regexp.MustCompile(`stream-[^"'\s(){}]+`)

	// AMF field names that directly follow the URL in connect commands.
	trailingMarkers = []string{"tcUrl", "swfUrl"}
)

// decodeText decodes payload as UTF-8, replacing invalid sequences. It
// reports false for empty payloads and payloads with no valid rune at all.
func decodeText(payload []byte) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	text := strings.ToValidUTF8(string(payload), string(utf8.RuneError))
	for _, r := range text {
		if r != utf8.RuneError {
			return text, true
		}
	}
	return "", false
}

// findEndpoints returns every endpoint in text, in order of appearance.
func findEndpoints(text string) []string {
	matches := endpointPattern.FindAllString(text, -1)
	endpoints := make([]string, 0, len(matches))
	for _, m := range matches {
		if endpoint := cleanEndpoint(m); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints
}

func cleanEndpoint(match string) string {
	for _, marker := range trailingMarkers {
		if i := strings.Index(match, marker); i >= 0 {
			match = match[:i]
		}
	}
	return strings.TrimFunc(match, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}

// findCode returns the first stream code in text.
func findCode(text string) (string, bool) {
	code := codePattern.FindString(text)
	return code, code != ""
}
