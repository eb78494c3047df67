package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var labelEscaper = strings.NewReplacer("\t", "\\t", "\n", "\\n", "\r", "\\r")

// WriteTSV writes the projector file pair into dir: metadata.<name>.tsv with
// one escaped label per line and embeddings.<name>.tsv with the matching
// tab-separated vectors, rows aligned by index.
func (t *Table) WriteTSV(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	meta, err := os.Create(filepath.Join(dir, fmt.Sprintf("metadata.%s.tsv", name)))
	if err != nil {
		return err
	}
	defer meta.Close()
	mw := bufio.NewWriter(meta)
	for _, l := range t.Labels {
		if _, err := mw.WriteString(labelEscaper.Replace(l) + "\n"); err != nil {
			return err
		}
	}
	if err := mw.Flush(); err != nil {
		return err
	}

	vecs, err := os.Create(filepath.Join(dir, fmt.Sprintf("embeddings.%s.tsv", name)))
	if err != nil {
		return err
	}
	defer vecs.Close()
	vw := bufio.NewWriter(vecs)
	rows, cols := t.Vectors.Dims()
	for i := 0; i < rows; i++ {
		row := t.Vectors.RawRowView(i)
		for j := 0; j < cols; j++ {
			if j > 0 {
				if err := vw.WriteByte('\t'); err != nil {
					return err
				}
			}
			if _, err := vw.WriteString(strconv.FormatFloat(row[j], 'g', -1, 32)); err != nil {
				return err
			}
		}
		if err := vw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return vw.Flush()
}
