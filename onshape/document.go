package onshape

import (
	"fmt"
	"regexp"

	"github.com/onshape-robotics/toolkit/assembly"
)

// DefaultBaseURL is the hosted Onshape endpoint.
const DefaultBaseURL = "https://cad.onshape.com"

// WorkspaceType selects which kind of document element an id addresses.
type WorkspaceType string

// Workspace types.
const (
	WorkspaceTypeWorkspace    WorkspaceType = "w"
	WorkspaceTypeVersion      WorkspaceType = "v"
	WorkspaceTypeMicroversion WorkspaceType = "m"
)

// Document identifies an assembly element of an Onshape document.
type Document struct {
	BaseURL string
	DID     string
	Wtype   WorkspaceType
	WID     string
	EID     string
	Name    string
}

var documentURLPattern = regexp.MustCompile(
	`^(https?://[^/]+)/documents/([0-9a-fA-F]+)/([wvm])/([0-9a-fA-F]+)/e/([0-9a-fA-F]+)$`)

// ParseDocumentURL parses a strict document element URL of the form
// https://<host>/documents/{did}/{w|v|m}/{wid}/e/{eid}.
func ParseDocumentURL(rawURL string) (*Document, error) {
	m := documentURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, &InvalidURLError{URL: rawURL, Reason: "does not match documents/{did}/{w|v|m}/{wid}/e/{eid}"}
	}
	doc := &Document{
		BaseURL: m[1],
		DID:     m[2],
		Wtype:   WorkspaceType(m[3]),
		WID:     m[4],
		EID:     m[5],
	}
	for _, id := range []struct{ field, value string }{
		{"documentId", doc.DID},
		{"workspaceId", doc.WID},
		{"elementId", doc.EID},
	} {
		if err := assembly.CheckID(id.field, id.value); err != nil {
			return nil, &InvalidURLError{URL: rawURL, Reason: err.Error()}
		}
	}
	return doc, nil
}

// URL renders the document element URL.
func (d *Document) URL() string {
	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/documents/%s/%s/%s/e/%s", base, d.DID, d.Wtype, d.WID, d.EID)
}
