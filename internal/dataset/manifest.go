package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ManifestFields is the number of '|'-separated fields in a manifest line:
// id|speaker|language|audio|mel|linear|text|phonemes.
const ManifestFields = 8

var ErrManifestNotFound = errors.New("dataset: manifest not found")

// ManifestError reports a malformed manifest line.
type ManifestError struct {
	Path   string
	Line   int
	Fields int
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("dataset: %s:%d: expected %d fields, got %d", e.Path, e.Line, ManifestFields, e.Fields)
}

// Record is one manifest line as written on disk.
type Record struct {
	ID         string
	Speaker    string
	Language   string
	AudioPath  string
	MelPath    string
	LinearPath string
	Text       string
	Phonemes   string
}

// ReadManifestFile opens path and parses it with ReadManifest.
func ReadManifestFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}

		return nil, fmt.Errorf("dataset: open manifest: %w", err)
	}
	defer f.Close()

	return ReadManifest(f, path)
}

// ReadManifest parses manifest lines in file order. Blank lines are
// skipped; any other line must have exactly ManifestFields fields. name is
// only used in error messages.
func ReadManifest(r io.Reader, name string) ([]Record, error) {
	var records []Record

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for sc.Scan() {
		line++

		raw := strings.TrimRight(sc.Text(), "\r\n")
		if strings.TrimSpace(raw) == "" {
			continue
		}

		f := strings.Split(raw, "|")
		if len(f) != ManifestFields {
			return nil, &ManifestError{Path: name, Line: line, Fields: len(f)}
		}

		records = append(records, Record{
			ID:         f[0],
			Speaker:    f[1],
			Language:   f[2],
			AudioPath:  f[3],
			MelPath:    f[4],
			LinearPath: f[5],
			Text:       f[6],
			Phonemes:   f[7],
		})
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read manifest %s: %w", name, err)
	}

	return records, nil
}

// WriteManifest writes records one per line in manifest format.
func WriteManifest(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)

	for i, r := range records {
		fields := []string{r.ID, r.Speaker, r.Language, r.AudioPath, r.MelPath, r.LinearPath, r.Text, r.Phonemes}
		for _, f := range fields {
			if strings.ContainsAny(f, "|\n") {
				return fmt.Errorf("dataset: record %d (%s): field %q contains a separator", i, r.ID, f)
			}
		}

		if _, err := bw.WriteString(strings.Join(fields, "|") + "\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}
