package edgar

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dkeller/form4ingest/internal/models"
)

// SubmissionURL builds the canonical archive URL for a full SGML
// submission. The URL uses the unpadded CIK and the separator-free
// accession form exclusively.
func SubmissionURL(baseURL, cik string, accession models.AccessionNumber) string {
	return fmt.Sprintf("%s/edgar/data/%s/%s.txt", baseURL, models.TrimCIK(cik), accession.Compact())
}

// CachePath builds the on-disk location for a cached submission, keyed by
// (cik, year, accession).
func CachePath(dir, cik string, year int, accession models.AccessionNumber) string {
	return filepath.Join(dir, models.PadCIK(cik), strconv.Itoa(year), accession.Compact()+".txt")
}
