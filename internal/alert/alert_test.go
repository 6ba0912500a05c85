package alert

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestDecode_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	al, err := Decode([]byte(`{"Message":"port scan from 10.0.0.5"}`), now)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if al.Severity != DefaultSeverity {
		t.Errorf("Severity = %q, want %q", al.Severity, DefaultSeverity)
	}
	if al.Source != DefaultSource {
		t.Errorf("Source = %q, want %q", al.Source, DefaultSource)
	}
	if al.Message != "port scan from 10.0.0.5" {
		t.Errorf("Message = %q", al.Message)
	}
	if !al.ReceivedAt.Equal(now) {
		t.Errorf("ReceivedAt = %v, want %v", al.ReceivedAt, now)
	}
	if !strings.HasPrefix(al.ID, "ALERT-") {
		t.Errorf("ID = %q, want ALERT- prefix", al.ID)
	}
}

func TestDecode_AllFields(t *testing.T) {
	t.Parallel()

	al, err := Decode([]byte(`{"Severity":"High","Source":"GuardDuty","Message":"root login"}`), time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if al.Severity != "High" || al.Source != "GuardDuty" || al.Message != "root login" {
		t.Errorf("alert = %+v", al)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"truncated object", `{"Severity":"High"`},
		{"bare string", `"hello"`},
		{"number", `42`},
		{"null", `null`},
		{"array", `[{"Message":"x"}]`},
		{"empty", ``},
		{"wrong field type", `{"Message":123}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode([]byte(tt.in), time.Now())
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) err = %v, want ErrMalformed", tt.in, err)
			}
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestReader_SkipsBlankAndReportsMalformed(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"Severity":"High","Source":"IDS","Message":"one"}`,
		``,
		`not json`,
		`{"Message":"two"}`,
	}, "\n")

	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if first.Message != "one" {
		t.Errorf("first message = %q, want one", first.Message)
	}

	_, err = r.Next()
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("second Next err = %v, want ErrMalformed", err)
	}
	if !strings.Contains(err.Error(), "record 3") {
		t.Errorf("err = %q, want record position", err)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("third Next: %v", err)
	}
	if second.Message != "two" {
		t.Errorf("second message = %q, want two", second.Message)
	}
	if first.ID == second.ID {
		t.Errorf("ids collide: %q", first.ID)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("final Next err = %v, want io.EOF", err)
	}
}

func TestNewBatchReader_Array(t *testing.T) {
	t.Parallel()

	r, err := NewBatchReader([]byte(` [{"Message":"a"}, 7, {"Message":"b"}] `))
	if err != nil {
		t.Fatalf("NewBatchReader: %v", err)
	}

	var msgs []string
	var malformed int
	for {
		al, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformed) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		msgs = append(msgs, al.Message)
	}

	if len(msgs) != 2 || msgs[0] != "a" || msgs[1] != "b" {
		t.Errorf("messages = %v, want [a b]", msgs)
	}
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
}

func TestNewBatchReader_NDJSON(t *testing.T) {
	t.Parallel()

	r, err := NewBatchReader([]byte("{\"Message\":\"a\"}\n{\"Message\":\"b\"}\n"))
	if err != nil {
		t.Fatalf("NewBatchReader: %v", err)
	}
	a, err := r.Next()
	if err != nil || a.Message != "a" {
		t.Fatalf("first = %+v, %v", a, err)
	}
	b, err := r.Next()
	if err != nil || b.Message != "b" {
		t.Fatalf("second = %+v, %v", b, err)
	}
}

func TestNewBatchReader_BadArray(t *testing.T) {
	t.Parallel()

	if _, err := NewBatchReader([]byte(`[{"Message":`)); err == nil {
		t.Fatal("expected error for truncated array")
	}
}

func TestReader_SkipsOversizedLine(t *testing.T) {
	t.Parallel()

	huge := `{"Message":"` + strings.Repeat("x", maxLineBytes+10) + `"}`
	input := `{"Message":"first"}` + "\n" + huge + "\n" + `{"Message":"third"}`

	r := NewReader(strings.NewReader(input))

	var msgs []string
	var malformed []error
	for {
		al, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformed) {
			malformed = append(malformed, err)
			continue
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		msgs = append(msgs, al.Message)
	}

	if len(msgs) != 2 || msgs[0] != "first" || msgs[1] != "third" {
		t.Errorf("messages = %v, want [first third]", msgs)
	}
	if len(malformed) != 1 || !strings.Contains(malformed[0].Error(), "record 2") {
		t.Errorf("malformed = %v, want one error for record 2", malformed)
	}
}

func TestReader_OversizedFinalLine(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader(strings.Repeat("y", maxLineBytes+1)))

	if _, err := r.Next(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Next err = %v, want ErrMalformed", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next err = %v, want io.EOF", err)
	}
}

func TestReader_LineEndings(t *testing.T) {
	t.Parallel()

	r := NewReader(strings.NewReader("{\"Message\":\"a\"}\r\n{\"Message\":\"b\"}"))

	for _, want := range []string{"a", "b"} {
		al, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if al.Message != want {
			t.Errorf("message = %q, want %q", al.Message, want)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("final Next err = %v, want io.EOF", err)
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReader_ReadErrorIsTerminal(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	r := NewReader(io.MultiReader(strings.NewReader("{\"Message\":\"a\"}\n"), failingReader{boom}))

	if al, err := r.Next(); err != nil || al.Message != "a" {
		t.Fatalf("first Next = %+v, %v", al, err)
	}
	_, err := r.Next()
	if !errors.Is(err, boom) {
		t.Fatalf("Next err = %v, want %v", err, boom)
	}
	if errors.Is(err, ErrMalformed) {
		t.Errorf("read error should not be ErrMalformed: %v", err)
	}
}
