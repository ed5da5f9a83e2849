package rawinput

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		wantRecords int
		wantSkipped int
		wantErr     bool
	}{
		{"array", `[{"title":"a"},{"title":"b"}]`, 2, 0, false},
		{"array with non-objects", `[{"title":"a"}, 3, "x", null, []]`, 1, 4, false},
		{"ndjson", "{\"title\":\"a\"}\n{\"title\":\"b\"}\n\n{\"title\":\"c\"}\n", 3, 0, false},
		{"concatenated", `{"title":"a"}{"title":"b"}`, 2, 0, false},
		{"leading whitespace and bom", "\xEF\xBB\xBF  \n[{\"title\":\"a\"}]", 1, 0, false},
		{"empty", "", 0, 0, false},
		{"whitespace only", " \n\t", 0, 0, false},
		{"empty array", "[]", 0, 0, false},
		{"truncated array", `[{"title":"a"}`, 0, 0, true},
		{"broken ndjson line", "{\"title\":\"a\"}\n{\"title\":", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := Read(strings.NewReader(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(res.Records) != tt.wantRecords || res.Skipped != tt.wantSkipped {
				t.Errorf("records = %d, skipped = %d, want %d and %d", len(res.Records), res.Skipped, tt.wantRecords, tt.wantSkipped)
			}
			if res.Records == nil {
				t.Error("Records must not be nil")
			}
		})
	}
}

func TestRead_PreservesHeterogeneousFields(t *testing.T) {
	t.Parallel()

	res, err := Read(strings.NewReader(`[{"headline":"h","published":1709380800,"extra":{"k":1}}]`))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	rec := res.Records[0]
	if rec.String("title", "headline") != "h" {
		t.Errorf("headline = %v", rec["headline"])
	}
	if _, ok := rec["extra"].(map[string]any); !ok {
		t.Errorf("extra = %T, want nested object", rec["extra"])
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "items.json")
	if err := os.WriteFile(path, []byte(`[{"title":"a"}]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(res.Records) != 1 {
		t.Errorf("records = %d, want 1", len(res.Records))
	}

	res, err = ReadFile(Stdin, strings.NewReader(`{"title":"x"}`))
	if err != nil {
		t.Fatalf("ReadFile stdin: %v", err)
	}
	if len(res.Records) != 1 {
		t.Errorf("stdin records = %d, want 1", len(res.Records))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil {
		t.Error("expected error for missing file")
	}
}
