package tickers

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_MergesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "tickers_asx.txt", "# ASX\nBHP.AX\n\n  CBA.AX  \nBHP.AX\n")
	extra := writeFile(t, dir, "tickers_extra.txt", "WES.AX\n# comment\nCBA.AX\n")
	universe := writeFile(t, dir, "universe.csv", "code,name,yahoo_symbol\nBHP,BHP Group,BHP.AX\nZIP,Zip Co,zip\nX,Nothing,nan\nQAN,Qantas,\n")

	got, err := Load(primary, extra, universe)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"BHP.AX", "CBA.AX", "WES.AX", "ZIP.AX"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoad_OptionalFilesMayBeAbsent(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "tickers.txt", "A.AX\n")
	got, err := Load(primary, filepath.Join(dir, "missing.txt"), filepath.Join(dir, "missing.csv"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"A.AX"}) {
		t.Errorf("Load = %v", got)
	}
}

func TestLoad_UniverseFallsBackToCode(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "tickers.txt", "A.AX\n")
	universe := writeFile(t, dir, "universe.csv", "Code,Name\nbhp,BHP\nB-1,odd\n")
	got, err := Load(primary, "", universe)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"A.AX", "BHP.AX", "B-1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoad_BadUniverseIsIgnored(t *testing.T) {
	dir := t.TempDir()
	primary := writeFile(t, dir, "tickers.txt", "A.AX\n")
	universe := writeFile(t, dir, "universe.csv", "name,sector\nfoo,bar\n")
	got, err := Load(primary, "", universe)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Load = %v", got)
	}
}

func TestLoad_PrimaryRequired(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt"), "", ""); err == nil {
		t.Fatal("expected error for missing primary file")
	}
}

func TestLoad_Empty(t *testing.T) {
	primary := writeFile(t, t.TempDir(), "tickers.txt", "# nothing here\n\n")
	_, err := Load(primary, "", "")
	if !errors.Is(err, ErrNoTickers) {
		t.Fatalf("err = %v, want ErrNoTickers", err)
	}
}
