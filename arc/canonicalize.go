package arc

import (
	"bytes"
	"hash"
	"strings"
)

var crlf = []byte("\r\n")

// bodyHash hashes body under canon, stopping after lengthLimit canonical
// bytes when lengthLimit is not negative.
func bodyHash(h hash.Hash, canon Canonicalization, body []byte, lengthLimit int64) []byte {
	w := &limitWriter{h: h, limit: lengthLimit}
	if canon == CanonRelaxed {
		bodyRelaxed(w, body)
	} else {
		bodySimple(w, body)
	}
	return h.Sum(nil)
}

type limitWriter struct {
	h       hash.Hash
	limit   int64
	written int64
}

func (w *limitWriter) write(p []byte) {
	if w.limit >= 0 {
		room := w.limit - w.written
		if room <= 0 {
			return
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	w.h.Write(p)
	w.written += int64(len(p))
}

// bodyLines splits body into lines without their line breaks. A trailing
// line break does not start a new line.
func bodyLines(body []byte) [][]byte {
	var lines [][]byte
	for len(body) > 0 {
		i := bytes.IndexByte(body, '\n')
		if i < 0 {
			lines = append(lines, body)
			break
		}
		lines = append(lines, bytes.TrimSuffix(body[:i], []byte{'\r'}))
		body = body[i+1:]
	}
	return lines
}

// bodySimple writes the simple canonical body: trailing empty lines are
// dropped and the result always ends with exactly one CRLF.
func bodySimple(w *limitWriter, body []byte) {
	lines := bodyLines(body)
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		w.write(crlf)
		return
	}
	for _, l := range lines {
		w.write(l)
		w.write(crlf)
	}
}

// bodyRelaxed writes the relaxed canonical body: whitespace runs become one
// space, trailing whitespace and trailing empty lines are dropped. An empty
// body hashes as nothing.
func bodyRelaxed(w *limitWriter, body []byte) {
	lines := bodyLines(body)
	for i, l := range lines {
		lines[i] = bytes.TrimRight(compressWhitespace(l), " ")
	}
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	for _, l := range lines {
		w.write(l)
		w.write(crlf)
	}
}

// compressWhitespace replaces runs of spaces and tabs with a single space.
func compressWhitespace(line []byte) []byte {
	out := make([]byte, 0, len(line))
	prevWS := false
	for _, c := range line {
		if c == ' ' || c == '\t' {
			if !prevWS {
				out = append(out, ' ')
			}
			prevWS = true
			continue
		}
		out = append(out, c)
		prevWS = false
	}
	return out
}

// canonicalHeader returns raw in the given canonicalization, without the
// terminating CRLF.
func canonicalHeader(canon Canonicalization, raw []byte) (string, error) {
	if canon == CanonRelaxed {
		return canonicalizeHeaderRelaxed(raw)
	}
	return strings.TrimSuffix(string(raw), "\r\n"), nil
}

// canonicalizeHeaderRelaxed lowercases the name, unfolds the value, collapses
// whitespace and trims it.
func canonicalizeHeaderRelaxed(raw []byte) (string, error) {
	name, value, ok := bytes.Cut(raw, []byte{':'})
	if !ok {
		return "", ErrSyntax
	}

	v := strings.TrimRight(string(value), "\r\n")
	v = strings.NewReplacer("\r\n", "", "\n", "").Replace(v)
	v = string(compressWhitespace([]byte(v)))

	return strings.ToLower(strings.TrimRight(string(name), " \t")) + ":" + strings.TrimSpace(v), nil
}

// amsDataHash hashes the signed headers of an AMS followed by the AMS itself
// with an empty b= value. Headers named in h= are taken bottom-up; names
// without a remaining instance contribute nothing.
func amsDataHash(h hash.Hash, canon Canonicalization, headers []header, signed []string, ams []byte) ([]byte, error) {
	next := make(map[string]int)
	for _, name := range signed {
		lname := strings.ToLower(name)
		if _, ok := next[lname]; ok {
			continue
		}
		next[lname] = len(headers) - 1
	}

	for _, name := range signed {
		lname := strings.ToLower(name)
		i := next[lname]
		for i >= 0 && headers[i].lkey != lname {
			i--
		}
		if i < 0 {
			next[lname] = -1
			continue
		}
		next[lname] = i - 1

		c, err := canonicalHeader(canon, headers[i].raw)
		if err != nil {
			return nil, err
		}
		h.Write([]byte(c))
		h.Write(crlf)
	}

	c, err := canonicalHeader(canon, removeSignature(ams))
	if err != nil {
		return nil, err
	}
	h.Write([]byte(c))
	return h.Sum(nil), nil
}

// sealDataHash hashes the ARC sets covered by the seal of the last set in
// sets: for each instance in ascending order its ARC-Authentication-Results,
// ARC-Message-Signature and ARC-Seal, relaxed, with the b= value of the
// final ARC-Seal emptied and no CRLF after it.
func sealDataHash(h hash.Hash, sets []*Set) ([]byte, error) {
	for i, s := range sets {
		if len(s.rawAAR) == 0 || len(s.rawAMS) == 0 || len(s.rawSeal) == 0 {
			return nil, ErrMissingSet
		}
		for _, raw := range [][]byte{s.rawAAR, s.rawAMS} {
			c, err := canonicalizeHeaderRelaxed(raw)
			if err != nil {
				return nil, err
			}
			h.Write([]byte(c))
			h.Write(crlf)
		}

		if i < len(sets)-1 {
			c, err := canonicalizeHeaderRelaxed(s.rawSeal)
			if err != nil {
				return nil, err
			}
			h.Write([]byte(c))
			h.Write(crlf)
			continue
		}
		c, err := canonicalizeHeaderRelaxed(removeSignature(s.rawSeal))
		if err != nil {
			return nil, err
		}
		h.Write([]byte(c))
	}
	return h.Sum(nil), nil
}

// removeSignature empties the value of the b= tag, leaving bh= and the rest
// of the header untouched.
func removeSignature(raw []byte) []byte {
	s := string(raw)
	start := 0
	if _, v, ok := strings.Cut(s, ":"); ok && isHeaderLine(s) {
		start = len(s) - len(v)
	}

	for i := start; i < len(s); i++ {
		if s[i] != 'b' && s[i] != 'B' {
			continue
		}
		if !tagStart(s, start, i) {
			continue
		}
		j := i + 1
		for j < len(s) && isFWS(s[j]) {
			j++
		}
		if j >= len(s) || s[j] != '=' {
			continue
		}
		end := strings.IndexByte(s[j:], ';')
		if end < 0 {
			end = len(s)
		} else {
			end += j
		}
		// Keep the terminating line break of a full header line.
		tail := s[end:]
		if end == len(s) {
			trimmed := strings.TrimRight(s[j+1:], "\r\n")
			tail = s[j+1+len(trimmed):]
		}
		return []byte(s[:j+1] + tail)
	}
	return raw
}

// isHeaderLine reports whether s starts with a field name and colon rather
// than a bare tag-list.
func isHeaderLine(s string) bool {
	name, _, ok := strings.Cut(s, ":")
	return ok && !strings.ContainsAny(name, "=;")
}

// tagStart reports whether position i begins a tag name: it follows the
// start of the value, a semicolon or whitespace after a semicolon.
func tagStart(s string, start, i int) bool {
	k := i - 1
	for k >= start && isFWS(s[k]) {
		k--
	}
	return k < start || s[k] == ';'
}

func isFWS(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
