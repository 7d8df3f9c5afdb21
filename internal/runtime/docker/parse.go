package docker

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// Fallbacks for runtimes that print inspect fragments rather than a JSON document
	imageFieldRe   = regexp.MustCompile(`"Image"\s*:\s*"([^"]*)"`)
	repoDigestsRe  = regexp.MustCompile(`(?s)"RepoDigests"\s*:\s*\[(.*?)\]`)
	quotedStringRe = regexp.MustCompile(`"([^"]*)"`)
)

// lastLine returns the last non-empty line of out
func lastLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// inspectResult returns the first inspected object of docker inspect output,
// which is a JSON array with one element per inspected name.
func inspectResult(out []byte) (gjson.Result, bool) {
	out = bytes.TrimSpace(out)
	if !gjson.ValidBytes(out) {
		return gjson.Result{}, false
	}
	res := gjson.ParseBytes(out)
	if res.IsArray() {
		res = res.Get("0")
	}
	return res, res.IsObject()
}

// parseImageID extracts the Image field of container inspect output
func parseImageID(out []byte) string {
	if res, ok := inspectResult(out); ok {
		return res.Get("Image").String()
	}

	if m := imageFieldRe.FindSubmatch(out); m != nil {
		return string(m[1])
	}
	return ""
}

// parseRepoDigests extracts the RepoDigests field of image inspect output
func parseRepoDigests(out []byte) []string {
	var digests []string

	if res, ok := inspectResult(out); ok {
		for _, d := range res.Get("RepoDigests").Array() {
			if s := d.String(); s != "" {
				digests = append(digests, s)
			}
		}
		return digests
	}

	m := repoDigestsRe.FindSubmatch(out)
	if m == nil {
		return nil
	}
	for _, q := range quotedStringRe.FindAllSubmatch(m[1], -1) {
		if len(q[1]) > 0 {
			digests = append(digests, string(q[1]))
		}
	}
	return digests
}
