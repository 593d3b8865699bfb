package sam

import (
	"net/url"

	"github.com/opsarka/samradar/internal/errs"
)

// identifierKeys are probed in order when deriving the canonical id.
var identifierKeys = []string{
	"solicitationNumber",
	"noticeId",
	"id",
	"notice_id",
	"solicitation_number",
	"opportunityId",
}

// CanonicalID derives the storage identifier for one bulk-dump element. A
// missing identifier is a per-opportunity data error; callers skip the
// element and continue the batch.
func CanonicalID(m map[string]any) (string, error) {
	raw := stringField(m, identifierKeys...)
	if raw == "" {
		return "", errs.Dataf("canonical id", "no identifier field present (tried %v)", identifierKeys)
	}
	return SanitizeID(raw), nil
}

// SanitizeID URL-decodes the raw identifier and replaces every rune outside
// [A-Za-z0-9._-] with an underscore. The transformation is idempotent.
func SanitizeID(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}

	out := make([]rune, 0, len(raw))
	for _, r := range raw {
		if allowedIDRune(r) {
			out = append(out, r)
			continue
		}
		out = append(out, '_')
	}
	return string(out)
}

func allowedIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}
