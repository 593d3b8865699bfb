// Package sam models SAM.gov contracting notices and parses the raw bulk
// dump they arrive in.
package sam

import (
	"fmt"
	"time"
)

// Contact is the primary point of contact for a notice.
type Contact struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// Place is the place of performance.
type Place struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Opportunity is the normalized per-notice record. Written once per
// canonical id per day partition and immutable after that.
type Opportunity struct {
	CanonicalID        string         `json:"canonicalId"`
	NoticeID           string         `json:"noticeId"`
	SolicitationNumber string         `json:"solicitationNumber"`
	Title              string         `json:"title"`
	FullParentPathName string         `json:"fullParentPathName"`
	PostedDate         string         `json:"postedDate"`
	Type               string         `json:"type"`
	ResponseDeadLine   string         `json:"responseDeadLine"`
	PointOfContact     Contact        `json:"pointOfContact"`
	PlaceOfPerformance Place          `json:"placeOfPerformance"`
	Description        string         `json:"description,omitempty"`
	ResourceLinks      []string       `json:"resourceLinks,omitempty"`
	Raw                map[string]any `json:"raw,omitempty"`
}

// UILink returns the sam.gov detail-view URL for the notice.
func (o *Opportunity) UILink() string {
	if o.NoticeID == "" {
		return ""
	}
	return fmt.Sprintf("https://sam.gov/opp/%s/view", o.NoticeID)
}

// FromRaw builds an Opportunity from one bulk-dump element. The canonical id
// must already be derived; FromRaw never fails, missing fields stay empty.
func FromRaw(id string, m map[string]any) *Opportunity {
	o := &Opportunity{
		CanonicalID:        id,
		NoticeID:           stringField(m, "noticeId", "notice_id"),
		SolicitationNumber: stringField(m, "solicitationNumber", "solicitation_number"),
		Title:              stringField(m, "title", "name"),
		FullParentPathName: stringField(m, "fullParentPathName", "full_parent_path_name"),
		PostedDate:         stringField(m, "postedDate", "posted_date"),
		Type:               stringField(m, "type"),
		ResponseDeadLine:   stringField(m, "responseDeadLine", "response_deadline"),
		Description:        stringField(m, "description"),
		ResourceLinks:      stringSliceField(m, "resource_links", "resourceLinks"),
		Raw:                m,
	}

	o.PointOfContact = contactField(m)
	o.PlaceOfPerformance = placeField(m)

	return o
}

// PostedTime parses the posted date in the formats the bulk dump is known to
// use. The zero time is returned when none match.
func (o *Opportunity) PostedTime() time.Time {
	formats := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"01/02/2006",
	}
	for _, f := range formats {
		if ts, err := time.Parse(f, o.PostedDate); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringSliceField(m map[string]any, keys ...string) []string {
	for _, k := range keys {
		raw, ok := m[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// contactField tolerates both the list form ("pointOfContact": [...]) and a
// bare object.
func contactField(m map[string]any) Contact {
	raw, ok := m["pointOfContact"]
	if !ok {
		raw = m["point_of_contact"]
	}

	var entry map[string]any
	switch v := raw.(type) {
	case []any:
		if len(v) > 0 {
			entry, _ = v[0].(map[string]any)
		}
	case map[string]any:
		entry = v
	}
	if entry == nil {
		return Contact{}
	}

	return Contact{
		FullName: stringField(entry, "fullName", "full_name", "name"),
		Email:    stringField(entry, "email"),
		Phone:    stringField(entry, "phone"),
	}
}

// placeField tolerates the nested SAM shape ({"city": {"name": ...}}) as
// well as flat strings.
func placeField(m map[string]any) Place {
	raw, ok := m["placeOfPerformance"].(map[string]any)
	if !ok {
		raw, ok = m["place_of_performance"].(map[string]any)
	}
	if !ok {
		return Place{}
	}

	return Place{
		City:    nestedName(raw, "city", "name"),
		State:   nestedName(raw, "state", "code"),
		Country: nestedName(raw, "country", "code"),
	}
}

func nestedName(m map[string]any, key, sub string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case map[string]any:
		if s := stringField(v, sub, "name", "code"); s != "" {
			return s
		}
	}
	return ""
}
