package mailtrust

import (
	"strconv"
	"strings"

	"github.com/synqronlabs/mailtrust/arc"
	"github.com/synqronlabs/mailtrust/dkim"
	"github.com/synqronlabs/mailtrust/dmarc"
	"github.com/synqronlabs/mailtrust/spf"
)

// AuthenticationResults renders an Authentication-Results header body
// (RFC 8601) for authServID, without the field name. Nil results are left
// out; if nothing is left the body reads "none". Results are folded onto
// their own lines.
func AuthenticationResults(authServID string, dkimResults []dkim.Result, spfResult *spf.Result, arcResult *arc.ValidationResult, dmarcResult *dmarc.EvaluationResult) string {
	var results []string

	for _, r := range dkimResults {
		var sb strings.Builder
		sb.WriteString("dkim=")
		sb.WriteString(orNone(string(r.Status)))
		if r.Domain != "" {
			sb.WriteString(" header.d=")
			sb.WriteString(r.Domain)
		}
		if r.Selector != "" {
			sb.WriteString(" header.s=")
			sb.WriteString(r.Selector)
		}
		results = append(results, sb.String())
	}

	if spfResult != nil {
		s := "spf=" + orNone(string(spfResult.Status))
		if spfResult.Domain != "" {
			ptype := " smtp.mailfrom="
			if spfResult.Identity == spf.IdentityHelo {
				ptype = " smtp.helo="
			}
			s += ptype + spfResult.Domain
		}
		results = append(results, s)
	}

	if dmarcResult != nil {
		var sb strings.Builder
		sb.WriteString("dmarc=")
		sb.WriteString(orNone(string(dmarcResult.Result)))
		if dmarcResult.Record != nil {
			sb.WriteString(" (p=")
			sb.WriteString(string(dmarcResult.Record.Policy))
			sb.WriteString(" dis=")
			sb.WriteString(string(dmarcResult.Disposition))
			sb.WriteString(")")
		}
		sb.WriteString(" header.from=")
		sb.WriteString(dmarcResult.Domain)
		results = append(results, sb.String())
	}

	if arcResult != nil {
		s := "arc=" + orNone(string(arcResult.Result))
		if arcResult.Result == arc.StatusPass && arcResult.HighestInstance > 0 {
			s += " (i=" + strconv.Itoa(arcResult.HighestInstance) + ")"
		}
		results = append(results, s)
	}

	if len(results) == 0 {
		return authServID + "; none"
	}
	return authServID + ";\r\n\t" + strings.Join(results, ";\r\n\t")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
