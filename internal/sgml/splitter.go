package sgml

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeller/form4ingest/internal/models"
	log "github.com/sirupsen/logrus"
)

// ErrMalformedSubmission marks a submission in which no parseable
// <DOCUMENT> structure was found. Fatal for that filing only.
var ErrMalformedSubmission = errors.New("malformed submission")

// scanner states
type state int

const (
	outsideDocument state = iota
	inDocumentHeader
	inTextBlock
)

// Splitter partitions a raw SGML submission into its embedded documents.
// The wrapper format is line-oriented pseudo-markup, not well-formed XML:
// <TEXT> blocks routinely contain HTML or XML fragments that would not
// nest validly, so the submission must never be handed to an XML parser
// as a whole.
type Splitter struct{}

// NewSplitter creates a Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Split scans rawText once and returns the embedded documents in order of
// appearance, sequence numbers assigned 1-based by that order. The
// document whose declared TYPE matches ref.FormType (case-insensitive,
// tolerating a trailing /A amendment suffix) is flagged primary; when none
// matches the first document is flagged instead and a warning is logged.
func (s *Splitter) Split(rawText string, ref models.FilingReference) ([]models.EmbeddedDocument, error) {
	var (
		docs    []models.EmbeddedDocument
		current models.EmbeddedDocument
		text    strings.Builder
		st      = outsideDocument
	)

	scanner := bufio.NewScanner(strings.NewReader(rawText))
	// Lines inside <TEXT> blocks (uuencoded binaries, minified HTML) can
	// exceed the default scanner limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch st {
		case outsideDocument:
			if trimmed == "<DOCUMENT>" {
				current = models.EmbeddedDocument{Sequence: len(docs) + 1}
				text.Reset()
				st = inDocumentHeader
			}

		case inDocumentHeader:
			switch {
			case trimmed == "<TEXT>":
				st = inTextBlock
			case trimmed == "</DOCUMENT>":
				docs = append(docs, s.finish(current, &text, ref))
				st = outsideDocument
			case strings.HasPrefix(trimmed, "<TYPE>"):
				current.Type = strings.TrimSpace(strings.TrimPrefix(trimmed, "<TYPE>"))
			case strings.HasPrefix(trimmed, "<FILENAME>"):
				current.Filename = strings.TrimSpace(strings.TrimPrefix(trimmed, "<FILENAME>"))
			case strings.HasPrefix(trimmed, "<DESCRIPTION>"):
				desc := strings.TrimSpace(strings.TrimPrefix(trimmed, "<DESCRIPTION>"))
				current.Description = &desc
			case strings.HasPrefix(trimmed, "<SEQUENCE>"):
				// Declared sequence values are ignored; ordering is by
				// position in the submission.
			}

		case inTextBlock:
			if trimmed == "</TEXT>" {
				st = inDocumentHeader
				continue
			}
			text.WriteString(line)
			text.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan failed: %v", ErrMalformedSubmission, err)
	}

	// A <DOCUMENT> left open at EOF still carries content worth keeping.
	if st != outsideDocument {
		docs = append(docs, s.finish(current, &text, ref))
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no <DOCUMENT> blocks found", ErrMalformedSubmission)
	}

	s.flagPrimary(docs, ref)
	return docs, nil
}

func (s *Splitter) finish(doc models.EmbeddedDocument, text *strings.Builder, ref models.FilingReference) models.EmbeddedDocument {
	doc.Content = text.String()
	if doc.Filename == "" {
		doc.Filename = FallbackFilename(ref.AccessionNumber, doc.Sequence)
	}
	return doc
}

// flagPrimary marks the document whose TYPE matches the filing's form
// type. Falls back to the first document with a non-fatal warning.
func (s *Splitter) flagPrimary(docs []models.EmbeddedDocument, ref models.FilingReference) {
	want := normalizeFormType(ref.FormType)
	for i := range docs {
		if normalizeFormType(docs[i].Type) == want {
			docs[i].Primary = true
			return
		}
	}
	log.Warnf("no document of type %q in %s; using first document %q as primary",
		ref.FormType, ref.AccessionNumber, docs[0].Filename)
	docs[0].Primary = true
}

// FallbackFilename is the deterministic name for a document whose
// <FILENAME> tag is missing.
func FallbackFilename(accession models.AccessionNumber, sequence int) string {
	return fmt.Sprintf("%s-%04d.txt", accession.Compact(), sequence)
}

func normalizeFormType(formType string) string {
	t := strings.ToUpper(strings.TrimSpace(formType))
	return strings.TrimSuffix(t, "/A")
}
