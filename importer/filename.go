/*
Package importer turns uploaded files into roster records.

PURPOSE:
  Bulk roster intake for the tracker:
  - Photo folders whose file names carry "studentnumber-name"
  - Excel course catalogues and enrollment sheets
  - The embedded demo roster used by "seed"

  Parsing is separate from persistence: the Import* functions take small
  store interfaces and report an entity.ImportSummary, so the same loops
  back the HTTP endpoints and the CLI.

FILE NAMES:
  Browsers on some platforms send multipart file names as UTF-8 bytes
  read as Latin-1 ("å¼ ä¸" instead of "张三"). DecodeFilename reverses
  that when the round trip yields valid UTF-8, and normalises to NFC.

SEE ALSO:
  - excel.go: Course / enrollment sheets
  - roster.go: Demo roster and photo import loop
*/
package importer

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// DecodeFilename recovers a UTF-8 name that was mis-decoded as Latin-1.
// Names that already contain Han characters, or that do not round-trip,
// are returned unchanged (NFC-normalised).
func DecodeFilename(s string) string {
	if hasHan(s) {
		return norm.NFC.String(s)
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil || raw == s || !utf8.ValidString(raw) {
		return norm.NFC.String(s)
	}
	return norm.NFC.String(raw)
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// StudentFile is the identity carried by a photo file name.
type StudentFile struct {
	StudentNumber string
	Name          string
}

// ParseStudentFilename reads "number-name.ext", falling back to
// "number_name.ext". Everything after the first separator is the name.
func ParseStudentFilename(filename string) (StudentFile, bool) {
	base := DecodeFilename(filepath.Base(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	parts := strings.SplitN(base, "-", 2)
	if len(parts) < 2 {
		parts = strings.SplitN(base, "_", 2)
	}
	if len(parts) < 2 {
		return StudentFile{}, false
	}

	sf := StudentFile{
		StudentNumber: strings.TrimSpace(parts[0]),
		Name:          strings.TrimSpace(parts[1]),
	}
	if sf.StudentNumber == "" || sf.Name == "" {
		return StudentFile{}, false
	}
	return sf, true
}

// StoredName builds the on-disk name for an uploaded photo:
// "<unix millis>_<base with whitespace as _><ext>", defaulting to .jpg.
func StoredName(original string, now time.Time) string {
	decoded := DecodeFilename(filepath.Base(original))
	ext := filepath.Ext(decoded)
	base := strings.Join(strings.Fields(strings.TrimSuffix(decoded, ext)), "_")
	if ext == "" {
		ext = ".jpg"
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + base + ext
}
