package onshape

import (
	"errors"
	"testing"

	"go.viam.com/test"
)

func TestParseDocumentURL(t *testing.T) {
	doc, err := ParseDocumentURL(
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c/w/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, doc.DID, test.ShouldEqual, "a1c1addf75444f54b504f25c")
	test.That(t, doc.Wtype, test.ShouldEqual, WorkspaceTypeWorkspace)
	test.That(t, doc.WID, test.ShouldEqual, "0d17b8ebb2a4c76be9fff3c7")
	test.That(t, doc.EID, test.ShouldEqual, "a86aaf34d2f4353288df8812")
	test.That(t, doc.URL(), test.ShouldEqual,
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c/w/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812")
}

func TestParseDocumentURLVersioned(t *testing.T) {
	doc, err := ParseDocumentURL(
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c/v/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, doc.Wtype, test.ShouldEqual, WorkspaceTypeVersion)
}

func TestParseDocumentURLRejects(t *testing.T) {
	for _, bad := range []string{
		"",
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c",
		// bad workspace type letter
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c/x/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812",
		// short document id
		"https://cad.onshape.com/documents/abc/w/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812",
		// trailing junk
		"https://cad.onshape.com/documents/a1c1addf75444f54b504f25c/w/0d17b8ebb2a4c76be9fff3c7/e/a86aaf34d2f4353288df8812/extra",
	} {
		_, err := ParseDocumentURL(bad)
		var invalid *InvalidURLError
		test.That(t, errors.As(err, &invalid), test.ShouldBeTrue)
	}
}
