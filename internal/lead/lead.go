// Package lead implements the wire contract between the model and the
// receptionist: a reply that contains [Sentinel] carries a lead payload of the
// form "Name | Issue | Phone" after the marker.
package lead

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel marks the start of an embedded lead payload in a model reply.
const Sentinel = "DATA_LOCKED:"

// Delimiter separates the fields of a payload.
const Delimiter = "|"

// fieldCount is the number of fields a well-formed payload carries.
const fieldCount = 3

var (
	// ErrNoSentinel is returned by [Extract] when the reply carries no lead.
	ErrNoSentinel = errors.New("lead: reply does not contain sentinel")

	// ErrFieldCount is returned by [Parse] when the payload does not split
	// into exactly three non-empty fields.
	ErrFieldCount = errors.New("lead: payload must have exactly three non-empty fields")
)

// Lead is a parsed payload. It only exists as a by-product of a reply that
// contained the sentinel.
type Lead struct {
	Name  string
	Issue string
	Phone string
}

// String renders the lead back into its delimited wire form.
func (l Lead) String() string {
	return strings.Join([]string{l.Name, l.Issue, l.Phone}, " "+Delimiter+" ")
}

// Extract returns the trimmed text following the first occurrence of
// [Sentinel] in reply. It returns ErrNoSentinel when the marker is absent.
// An empty payload after the marker is still returned with a nil error.
func Extract(reply string) (string, error) {
	_, after, found := strings.Cut(reply, Sentinel)
	if !found {
		return "", ErrNoSentinel
	}
	return strings.TrimSpace(after), nil
}

// Parse splits payload into its three fields. Surrounding brackets that some
// models copy from the instruction template ("[Alice]") are stripped.
func Parse(payload string) (Lead, error) {
	// Only the first line belongs to the payload; models sometimes keep talking.
	line, _, _ := strings.Cut(payload, "\n")
	parts := strings.Split(line, Delimiter)
	if len(parts) != fieldCount {
		return Lead{}, fmt.Errorf("%w: got %d", ErrFieldCount, len(parts))
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "[")
		p = strings.TrimSuffix(p, "]")
		p = strings.TrimSpace(p)
		if p == "" {
			return Lead{}, fmt.Errorf("%w: field %d is empty", ErrFieldCount, i+1)
		}
		parts[i] = p
	}
	return Lead{Name: parts[0], Issue: parts[1], Phone: parts[2]}, nil
}
