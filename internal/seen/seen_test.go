package seen

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func title(id string, at time.Time) Title {
	return Title{Title: "Title " + id, Fingerprint: "fp " + id, ID: id, SeenAt: at}
}

func TestRecord_EvictsOldestFirst(t *testing.T) {
	t.Parallel()

	s := New()
	lim := Limits{MaxIDs: 3, MaxTitles: 2}
	for i := range 5 {
		s.Record(title(fmt.Sprint(i), t0.Add(time.Duration(i)*time.Minute)), lim)
	}

	if got := strings.Join(s.IDs, ","); got != "2,3,4" {
		t.Errorf("IDs = %s, want 2,3,4", got)
	}
	if s.HasID("0") || s.HasID("1") {
		t.Error("evicted ids still reported as seen")
	}
	if !s.HasID("4") {
		t.Error("newest id missing")
	}
	if len(s.Titles) != 2 || s.Titles[0].ID != "3" || s.Titles[1].ID != "4" {
		t.Errorf("Titles = %+v", s.Titles)
	}
}

func TestRecord_RepeatedID(t *testing.T) {
	t.Parallel()

	s := New()
	s.Record(title("a", t0), Limits{})
	s.Record(title("a", t0.Add(time.Hour)), Limits{})

	if len(s.IDs) != 1 {
		t.Errorf("IDs = %v, want one entry", s.IDs)
	}
	if len(s.Titles) != 2 {
		t.Errorf("Titles = %d, want both fingerprints kept", len(s.Titles))
	}
}

func TestRecord_NoFingerprint(t *testing.T) {
	t.Parallel()

	s := New()
	s.Record(Title{ID: "a"}, Limits{})
	if !s.HasID("a") || len(s.Titles) != 0 {
		t.Errorf("ids=%v titles=%v", s.IDs, s.Titles)
	}
}

func TestHasID_AfterDecode(t *testing.T) {
	t.Parallel()

	s, err := Decode([]byte(`{"version":1,"revision":3,"seen_ids":["x","y"],"seen_titles":[]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !s.HasID("y") || s.HasID("z") {
		t.Errorf("HasID wrong for %v", s.IDs)
	}
}

func TestRecentTitles(t *testing.T) {
	t.Parallel()

	s := New()
	for i := range 4 {
		s.Record(title(fmt.Sprint(i), t0.Add(time.Duration(i)*24*time.Hour)), Limits{})
	}
	now := t0.Add(3 * 24 * time.Hour)

	tests := []struct {
		window time.Duration
		want   int
	}{
		{0, 4},
		{36 * time.Hour, 2},
		{24 * time.Hour, 2},
		{time.Hour, 1},
	}
	for _, tt := range tests {
		if got := s.RecentTitles(now, tt.window); len(got) != tt.want {
			t.Errorf("RecentTitles(%v) = %d titles, want %d", tt.window, len(got), tt.want)
		}
	}
	if got := s.RecentTitles(now.Add(48*time.Hour), time.Hour); got != nil {
		t.Errorf("expected nothing recent, got %v", got)
	}
}

func TestClone_Independent(t *testing.T) {
	t.Parallel()

	s := New()
	s.Record(title("a", t0), Limits{})
	cp := s.Clone()
	cp.Record(title("b", t0), Limits{})
	cp.Titles[0].Title = "changed"

	if s.HasID("b") || len(s.IDs) != 1 {
		t.Errorf("original ids changed: %v", s.IDs)
	}
	if s.Titles[0].Title != "Title a" {
		t.Errorf("original title changed: %q", s.Titles[0].Title)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	s := New()
	s.Revision = 7
	s.Record(title("a", t0), Limits{})

	data, err := Encode(s)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"seen_ids"`, `"seen_titles"`, "\n  ", `"fingerprint": "fp a"`} {
		if !strings.Contains(text, want) {
			t.Errorf("encoded state missing %q:\n%s", want, text)
		}
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Revision != 7 || !got.HasID("a") || !got.Titles[0].SeenAt.Equal(t0) {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"truncated", `{"version":1,"seen_ids":["a"`},
		{"not json", "seen_ids: [a]"},
		{"unknown field", `{"version":1,"seen_ids":[],"seen_titles":[],"extra":1}`},
		{"missing version", `{"seen_ids":[],"seen_titles":[]}`},
		{"future version", `{"version":99,"seen_ids":[],"seen_titles":[]}`},
		{"empty id", `{"version":1,"seen_ids":[""],"seen_titles":[]}`},
		{"title without fingerprint", `{"version":1,"seen_ids":[],"seen_titles":[{"title":"x","id":"a"}]}`},
		{"wrong type", `{"version":1,"seen_ids":"a","seen_titles":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Decode err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDecode_NullListsBecomeEmpty(t *testing.T) {
	t.Parallel()

	s, err := Decode([]byte(`{"version":1,"revision":0,"seen_ids":null,"seen_titles":null}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if s.IDs == nil || s.Titles == nil {
		t.Error("lists should decode to empty, not nil")
	}
}

func TestSummarize_NewestFirst(t *testing.T) {
	t.Parallel()

	st := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, fp := range []string{"a", "b", "c"} {
		st.Record(Title{ID: fp, Fingerprint: fp, SeenAt: base.Add(time.Duration(i) * time.Hour)}, Limits{})
	}

	sum := st.Summarize(2)
	if sum.IDs != 3 || sum.Titles != 3 {
		t.Errorf("sizes = %d/%d, want 3/3", sum.IDs, sum.Titles)
	}
	if len(sum.Recent) != 2 || sum.Recent[0].Fingerprint != "c" || sum.Recent[1].Fingerprint != "b" {
		t.Errorf("recent = %+v", sum.Recent)
	}
	if got := New().Summarize(5).Recent; got == nil || len(got) != 0 {
		t.Errorf("empty state recent = %v, want empty non-nil", got)
	}
}
