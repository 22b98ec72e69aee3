package importer

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestImportTestsFromSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "1 2")
	f.SetCellValue("Sheet1", "B1", "3")
	f.SetCellValue("Sheet1", "A2", "5 5")
	f.SetCellValue("Sheet1", "B2", "10")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	tests, err := ImportTestsFromSheet(path, "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(tests))
	}
	if tests[0].Input != "1 2" || tests[0].ExpectedOutput != "3" {
		t.Errorf("unexpected first row: %+v", tests[0])
	}
	if tests[1].Input != "5 5" || tests[1].ExpectedOutput != "10" {
		t.Errorf("unexpected second row: %+v", tests[1])
	}
}

func TestImportTestsFromSheet_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.xlsx")
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	_, err := ImportTestsFromSheet(path, "Sheet1")
	if err == nil {
		t.Fatal("expected error for empty sheet")
	}
}

func TestImportRosterFromSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.xlsx")

	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "alice")
	f.SetCellValue("Sheet1", "B1", "team-a")
	f.SetCellValue("Sheet1", "C1", "pw1")
	f.SetCellValue("Sheet1", "A2", "bob")
	f.SetCellValue("Sheet1", "B2", "team-b")
	f.SetCellValue("Sheet1", "C2", "pw2")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	entries, err := ImportRosterFromSheet(path, "Sheet1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0] != (RosterEntry{Nickname: "alice", Organization: "team-a", Password: "pw1"}) {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

func writeZipEntry(t *testing.T, zw *zip.Writer, name, content string) {
	t.Helper()
	w, err := zw.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestImportTestsFromArchive_NumericPairing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.zip")

	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	writeZipEntry(t, zw, "2", "second in")
	writeZipEntry(t, zw, "2.a", "second out")
	writeZipEntry(t, zw, "1", "first in")
	writeZipEntry(t, zw, "1.a", "first out")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	tests, err := ImportTestsFromArchive(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(tests))
	}
	if tests[0].Input != "first in" || tests[0].ExpectedOutput != "first out" {
		t.Errorf("expected pair 1 first, got %+v", tests[0])
	}
	if tests[1].Input != "second in" || tests[1].ExpectedOutput != "second out" {
		t.Errorf("expected pair 2 second, got %+v", tests[1])
	}
}

func TestImportTestsFromArchive_InputOutputPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.zip")

	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	writeZipEntry(t, zw, "input_3", "in3")
	writeZipEntry(t, zw, "output_3", "out3")
	writeZipEntry(t, zw, "input_10", "in10")
	writeZipEntry(t, zw, "output_10", "out10")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	tests, err := ImportTestsFromArchive(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(tests))
	}
	if tests[0].Input != "in3" || tests[1].Input != "in10" {
		t.Errorf("expected numeric sort 3 before 10, got %+v then %+v", tests[0], tests[1])
	}
}

func TestImportTestsFromArchive_IncompletePairDropped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tests.zip")

	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(out)
	writeZipEntry(t, zw, "1", "in1")
	writeZipEntry(t, zw, "1.a", "out1")
	writeZipEntry(t, zw, "2", "in2 without a match")
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	out.Close()

	tests, err := ImportTestsFromArchive(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tests) != 1 {
		t.Fatalf("expected only the complete pair, got %d tests", len(tests))
	}
}
