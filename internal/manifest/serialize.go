package manifest

import "strings"

// Serialize reconstructs the original manifest bytes from a parsed
// Document. For any Document produced by Parse, Serialize(doc) equals the
// input to Parse byte-for-byte.
func Serialize(doc *Document) []byte {
	var sb strings.Builder
	for _, l := range doc.Lines {
		sb.WriteString(l.Raw)
		sb.WriteString(l.Ending)
	}
	return []byte(sb.String())
}
