package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dkeller/form4ingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pipeline fakes keyed by accession number.

type fakeSource struct {
	failing map[models.AccessionNumber]bool
	calls   int
}

func (f *fakeSource) Resolve(_ context.Context, ref models.FilingReference) (string, error) {
	f.calls++
	if f.failing[ref.AccessionNumber] {
		return "", errors.New("document unavailable: 404")
	}
	return "raw sgml for " + ref.AccessionNumber.String(), nil
}

type fakeSplitter struct {
	err error
}

func (f *fakeSplitter) Split(rawText string, ref models.FilingReference) ([]models.EmbeddedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.EmbeddedDocument{
		{Sequence: 1, Type: "4", Filename: "primary.xml", Content: rawText, Primary: true},
	}, nil
}

type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ []models.EmbeddedDocument, ref models.FilingReference) (*models.FilingExtraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.FilingExtraction{
		AccessionNumber: ref.AccessionNumber,
		IssuerCIK:       "0001234567",
		FormType:        ref.FormType,
		FilingDate:      ref.FilingDate,
	}, nil
}

type markedFailure struct {
	accession models.AccessionNumber
	status    models.FilingStatus
	reason    string
}

type recordingWriter struct {
	writeErr map[models.AccessionNumber]error
	written  []models.AccessionNumber
	marked   []markedFailure
}

func (w *recordingWriter) Write(_ context.Context, ex *models.FilingExtraction, _ bool) error {
	if err := w.writeErr[ex.AccessionNumber]; err != nil {
		return err
	}
	w.written = append(w.written, ex.AccessionNumber)
	return nil
}

func (w *recordingWriter) MarkFailed(_ context.Context, ref models.FilingReference, status models.FilingStatus, reason string) error {
	w.marked = append(w.marked, markedFailure{ref.AccessionNumber, status, reason})
	return nil
}

func batchRefs(t *testing.T, n int) []models.FilingReference {
	t.Helper()
	refs := make([]models.FilingReference, 0, n)
	for i := 1; i <= n; i++ {
		accession, err := models.ParseAccession(fmt.Sprintf("0001234567-25-%06d", i))
		require.NoError(t, err)
		refs = append(refs, models.FilingReference{
			AccessionNumber: accession,
			CIK:             "0001234567",
			FormType:        "4",
		})
	}
	return refs
}

func newTestService(source *fakeSource, splitter *fakeSplitter, extractor *fakeExtractor, writer *recordingWriter, lookup FilingLookup) *IngestionService {
	return NewIngestionService(source, splitter, extractor,
		NewReconciliationResolver(lookup), writer, nil)
}

func TestRun_FailureIsolation(t *testing.T) {
	refs := batchRefs(t, 2)
	source := &fakeSource{failing: map[models.AccessionNumber]bool{refs[0].AccessionNumber: true}}
	writer := &recordingWriter{}
	svc := newTestService(source, &fakeSplitter{}, &fakeExtractor{}, writer, fakeLookup{})

	// The first filing fails at fetch; the second must still persist.
	result, err := svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Skipped)
	assert.NotEmpty(t, result.RunID)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, refs[0].AccessionNumber, result.Failures[0].AccessionNumber)

	require.Len(t, writer.written, 1)
	assert.Equal(t, refs[1].AccessionNumber, writer.written[0])

	require.Len(t, writer.marked, 1)
	assert.Equal(t, models.StatusFetchFailed, writer.marked[0].status)
}

func TestRun_FailureStatuses(t *testing.T) {
	refs := batchRefs(t, 1)

	writer := &recordingWriter{}
	svc := newTestService(&fakeSource{}, &fakeSplitter{err: errors.New("no documents")}, &fakeExtractor{}, writer, fakeLookup{})
	_, err := svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)
	require.Len(t, writer.marked, 1)
	assert.Equal(t, models.StatusExtractFailed, writer.marked[0].status)

	writer = &recordingWriter{}
	svc = newTestService(&fakeSource{}, &fakeSplitter{}, &fakeExtractor{err: errors.New("no ownership XML")}, writer, fakeLookup{})
	_, err = svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)
	require.Len(t, writer.marked, 1)
	assert.Equal(t, models.StatusExtractFailed, writer.marked[0].status)

	writer = &recordingWriter{writeErr: map[models.AccessionNumber]error{refs[0].AccessionNumber: errors.New("deadlock")}}
	svc = newTestService(&fakeSource{}, &fakeSplitter{}, &fakeExtractor{}, writer, fakeLookup{})
	_, err = svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)
	require.Len(t, writer.marked, 1)
	assert.Equal(t, models.StatusPersistFailed, writer.marked[0].status)
}

func TestRun_SkipsPersistedUnlessReprocess(t *testing.T) {
	refs := batchRefs(t, 1)
	source := &fakeSource{}
	writer := &recordingWriter{}
	svc := newTestService(source, &fakeSplitter{}, &fakeExtractor{}, writer, fakeLookup{status: models.StatusCompleted})

	result, err := svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, source.calls, "skipped filings never hit the source")

	result, err = svc.Run(context.Background(), refs, models.IngestOptions{Reprocess: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, source.calls)
}

func TestRun_DuplicateAccessionSkipped(t *testing.T) {
	refs := batchRefs(t, 1)
	refs = append(refs, refs[0])
	writer := &recordingWriter{}
	svc := newTestService(&fakeSource{}, &fakeSplitter{}, &fakeExtractor{}, writer, fakeLookup{})

	result, err := svc.Run(context.Background(), refs, models.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, writer.written, 1)
}

func TestRun_LimitCountsOnlyProcessed(t *testing.T) {
	refs := batchRefs(t, 5)
	source := &fakeSource{failing: map[models.AccessionNumber]bool{refs[0].AccessionNumber: true}}
	writer := &recordingWriter{}
	svc := newTestService(source, &fakeSplitter{}, &fakeExtractor{}, writer, fakeLookup{})

	result, err := svc.Run(context.Background(), refs, models.IngestOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Succeeded+result.Failed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Succeeded)
}

func TestRun_MisconfiguredService(t *testing.T) {
	svc := NewIngestionService(nil, nil, nil, nil, nil, nil)
	_, err := svc.Run(context.Background(), batchRefs(t, 1), models.IngestOptions{})
	assert.Error(t, err)
}
