package worker

import (
	"bufio"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Garmelon/tablejohn/internal/wire"
)

// breakdownLimit is the number of distinct directory keys after which
// the per-directory breakdown records newly seen directories under their
// top-level directory name only. The per-extension breakdown has no limit.
const breakdownLimit = 1000

// todoPattern matches a case-insensitive "todo" token bounded by
// non-letters on each side,
var todoPattern = regexp.MustCompile(`(?i)[^a-z]todo[^a-z]`)

type counts struct {
	files int
	lines int
	todos int
}

// runInternalBench walks root, counting files, lines, and TODO-marked
// lines, with totals broken down by file extension and by directory. A
// file that fails UTF-8 decoding is still counted as a file but
// contributes zero lines and zero TODOs (binary-file tolerance).
func runInternalBench(root string) (map[string]wire.Measurement, error) {
	total := counts{}
	byExt := map[string]*counts{}
	byDir := map[string]*counts{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}

		fileCounts, countErr := countFile(path)
		if countErr != nil {
			return countErr
		}

		total.add(fileCounts)

		ext := strings.TrimPrefix(filepath.Ext(rel), ".")
		if ext == "" {
			ext = "(none)"
		}

		addTo(byExt, ext, fileCounts)
		addTo(byDir, dirKey(rel, len(byDir) >= breakdownLimit), fileCounts)

		return nil
	})
	if err != nil {
		return nil, err
	}

	measurements := map[string]wire.Measurement{
		"files": {Value: float64(total.files)},
		"lines": {Value: float64(total.lines)},
		"todos": {Value: float64(total.todos)},
	}

	flattenBreakdown(measurements, "by extension", byExt)
	flattenBreakdown(measurements, "by directory", byDir)

	return measurements, nil
}

// dirKey returns the breakdown key for a file's directory. Once the
// number of distinct directories seen has reached breakdownLimit, new
// directories collapse to their top-level path segment.
func dirKey(rel string, collapse bool) string {
	dir := filepath.Dir(rel)
	if dir == "." {
		return "(root)"
	}

	if !collapse {
		return dir
	}

	parts := strings.SplitN(filepath.ToSlash(dir), "/", 2)

	return parts[0]
}

func countFile(path string) (counts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return counts{}, err
	}

	c := counts{files: 1}

	if !utf8.Valid(data) {
		return c, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		c.lines++

		line := scanner.Text()
		if todoPattern.MatchString(" " + strings.ToLower(line) + " ") {
			c.todos++
		}
	}

	return c, nil
}

func (c *counts) add(other counts) {
	c.files += other.files
	c.lines += other.lines
	c.todos += other.todos
}

func addTo(m map[string]*counts, key string, delta counts) {
	c, ok := m[key]
	if !ok {
		c = &counts{}
		m[key] = c
	}

	c.add(delta)
}

func flattenBreakdown(measurements map[string]wire.Measurement, label string, m map[string]*counts) {
	for key, c := range m {
		measurements["files/"+label+"/"+key] = wire.Measurement{Value: float64(c.files)}
		measurements["lines/"+label+"/"+key] = wire.Measurement{Value: float64(c.lines)}
		measurements["todos/"+label+"/"+key] = wire.Measurement{Value: float64(c.todos)}
	}
}
