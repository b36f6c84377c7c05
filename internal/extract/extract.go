// Package extract recovers a single SQL statement from unstructured language
// model output. Model responses are unreliable prose: the statement may sit
// in a tagged code fence, an untagged fence, or bare in the middle of
// commentary. Extraction runs an explicit ordered list of strategies, most
// structurally reliable first, and the first match wins.
package extract

import "strings"

// sqlKeywords is the keyword set used to recognize SQL inside untagged
// fences and bare text. The scan order matters for the bare-text strategy:
// WITH is deliberately checked before SELECT so a CTE is captured from its
// WITH clause, not from the SELECT inside it.
var sqlKeywords = []string{"WITH", "SELECT", "CREATE", "INSERT", "UPDATE", "DELETE"}

// strategy is one heuristic rule in the fallback chain. It reports the
// candidate statement and whether it found one.
type strategy func(text string) (string, bool)

var strategies = []strategy{
	fencedSQLBlock,
	genericFencedBlock,
	bareKeywordScan,
}

// Extract returns the first SQL statement recoverable from text, untrimmed
// of its statement terminator. The boolean is false when no strategy found
// anything plausible.
func Extract(text string) (string, bool) {
	for _, s := range strategies {
		if sql, ok := s(text); ok {
			return sql, true
		}
	}
	return "", false
}

// Finalize trims the statement and guarantees it ends with a terminating
// semicolon, yielding the canonical single-statement form for execution.
// Idempotent: finalizing canonical output returns it unchanged.
func Finalize(sql string) string {
	sql = strings.TrimSpace(sql)
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	return sql
}

// fencedSQLBlock returns the content strictly between a ```sql opener and
// the next closing fence.
func fencedSQLBlock(text string) (string, bool) {
	_, after, found := strings.Cut(text, "```sql")
	if !found {
		return "", false
	}
	body, _, found := strings.Cut(after, "```")
	if !found {
		return "", false
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	return body, true
}

// genericFencedBlock splits on fence markers and inspects each block at an
// odd split position (i.e. inside some pair of fences). A leading language
// tag line is stripped, then the block is accepted if it contains any SQL
// keyword.
func genericFencedBlock(text string) (string, bool) {
	blocks := strings.Split(text, "```")
	if len(blocks) < 3 {
		return "", false
	}
	for i := 1; i < len(blocks); i += 2 {
		block := strings.TrimSpace(blocks[i])
		if rest, found := strings.CutPrefix(block, "sql\n"); found {
			block = strings.TrimSpace(rest)
		}
		upper := strings.ToUpper(block)
		for _, keyword := range sqlKeywords {
			if strings.Contains(upper, keyword) {
				return block, true
			}
		}
	}
	return "", false
}

// bareKeywordScan takes everything from the first keyword occurrence onward,
// truncated at the first blank line, fence marker, or period-then-newline,
// whichever comes first.
func bareKeywordScan(text string) (string, bool) {
	upper := strings.ToUpper(text)
	for _, keyword := range sqlKeywords {
		pos := strings.Index(upper, keyword)
		if pos < 0 {
			continue
		}
		sql := strings.TrimSpace(text[pos:])
		for _, endMarker := range []string{"\n\n", "```", ".\n"} {
			if end := strings.Index(sql, endMarker); end >= 0 {
				sql = strings.TrimSpace(sql[:end])
			}
		}
		return sql, true
	}
	return "", false
}
