package arc

import (
	"bytes"
	"strings"
)

// header is one header field as it appears in the message, including folded
// continuation lines and the terminating line break.
type header struct {
	raw  []byte
	lkey string
}

// value returns the unparsed field body after the colon, without the
// trailing line break.
func (h header) value() string {
	_, v, ok := bytes.Cut(h.raw, []byte{':'})
	if !ok {
		return ""
	}
	return strings.TrimRight(string(v), "\r\n")
}

// splitMessage splits a message into its header fields and its body. Lines
// without a colon are skipped. A message without a blank line has no body.
func splitMessage(message []byte) ([]header, []byte) {
	var headers []header
	rest := message

	for len(rest) > 0 {
		end := bytes.IndexByte(rest, '\n')
		var line []byte
		if end < 0 {
			line, rest = rest, nil
		} else {
			line, rest = rest[:end+1], rest[end+1:]
		}

		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			return headers, rest
		}

		if line[0] == ' ' || line[0] == '\t' {
			if n := len(headers); n > 0 {
				headers[n-1].raw = append(headers[n-1].raw, line...)
			}
			continue
		}

		name, _, ok := bytes.Cut(line, []byte{':'})
		if !ok {
			continue
		}
		headers = append(headers, header{
			raw:  append([]byte(nil), line...),
			lkey: strings.ToLower(string(bytes.TrimSpace(name))),
		})
	}
	return headers, nil
}

// isARCHeader reports whether lkey names one of the three ARC header fields.
func isARCHeader(lkey string) bool {
	switch lkey {
	case "arc-authentication-results", "arc-message-signature", "arc-seal":
		return true
	}
	return false
}
