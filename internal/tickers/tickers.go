// Package tickers builds the target ticker set for a snapshot run.
package tickers

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"regexp"
	"strings"
)

// ErrNoTickers is returned when the merged target set is empty.
var ErrNoTickers = errors.New("no tickers found")

// Suffix is appended to bare exchange codes found in the universe file.
const Suffix = ".AX"

var bareCode = regexp.MustCompile(`^[A-Z0-9]+$`)

// Load merges the primary ticker file, the optional extra file and the optional
// universe CSV into one deduplicated list, keeping first-seen order.
// Empty paths and missing optional files are skipped; the primary file is required.
func Load(primary, extra, universe string) ([]string, error) {
	out, err := ReadList(primary)
	if err != nil {
		return nil, fmt.Errorf("read tickers: %w", err)
	}

	if extra != "" {
		more, err := ReadList(extra)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			log.Printf("[WARN] read extra tickers %s: %v", extra, err)
		default:
			out = append(out, more...)
		}
	}

	if universe != "" {
		syms, err := ReadUniverse(universe)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			log.Printf("[WARN] read universe %s: %v", universe, err)
		default:
			out = append(out, syms...)
		}
	}

	final := Dedupe(out)
	if len(final) == 0 {
		return nil, ErrNoTickers
	}
	return final, nil
}

// ReadList reads one symbol per line, skipping blanks and # comments.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// ReadUniverse reads the yahoo_symbol column (or code, as a fallback) of the universe CSV.
func ReadUniverse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := -1
	for _, name := range []string{"yahoo_symbol", "code"} {
		if col = indexOf(header, name); col >= 0 {
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no yahoo_symbol or code column")
	}

	var out []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if s := Normalize(rec[col]); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Normalize upper-cases a universe value and suffixes bare codes. It returns
// "" for empty or NaN cells.
func Normalize(v string) string {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" || s == "NAN" {
		return ""
	}
	if !strings.HasSuffix(s, Suffix) && bareCode.MatchString(s) {
		s += Suffix
	}
	return s
}

// Dedupe drops repeats, keeping the first occurrence so batching stays deterministic.
func Dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return -1
}
