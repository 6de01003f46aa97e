package jsonenc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/lattice-substrate/json-guard/jsontoken"
)

func reencode(t *testing.T, in string) string {
	t.Helper()
	v, err := jsontoken.Parse([]byte(in))
	if err != nil {
		t.Fatalf("parse %q: %v", in, err)
	}
	out, err := Marshal(v, nil)
	if err != nil {
		t.Fatalf("marshal %q: %v", in, err)
	}
	return string(out)
}

func TestWriteWhitespaceRemoval(t *testing.T) {
	got := reencode(t, `{ "a" : [ 1 , 2 ] }`)
	if got != `{"a":[1,2]}` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteSortsKeys(t *testing.T) {
	got := reencode(t, `{"z":3,"a":1,"m":{"y":1,"b":2}}`)
	if got != `{"a":1,"m":{"b":2,"y":1},"z":3}` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteEscapesControlCharacters(t *testing.T) {
	got := reencode(t, `"\u0008\u0009\u000a\u000c\u000d\u001f"`)
	if got != `"\b\t\n\f\r\u001f"` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteNoHTMLEscaping(t *testing.T) {
	if got := reencode(t, `"<>&"`); got != `"<>&"` {
		t.Fatalf("got %q", got)
	}
	if got := reencode(t, `"a\/b"`); got != `"a/b"` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteLineSeparators(t *testing.T) {
	got, err := Marshal("a\u2028b\u2029c", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `"a\u2028b\u2029c"` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteInvalidUTF8Replaced(t *testing.T) {
	got, err := Marshal("a\xffb", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `"a\ufffdb"` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteNumbers(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{1e20, `100000000000000000000`},
		{1e21, `1e+21`},
		{1e-7, `1e-7`},
		{0.000001, `0.000001`},
		{-2.5, `-2.5`},
		{float32(0.1), `0.1`},
		{int8(-7), `-7`},
		{uint64(math.MaxUint64), `18446744073709551615`},
		{json.Number("12345678901234567890"), `12345678901234567890`},
	}
	for _, tc := range cases {
		got, err := Marshal(tc.in, nil)
		if err != nil {
			t.Fatalf("marshal %v: %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("marshal %v = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteLiterals(t *testing.T) {
	for _, in := range []string{`true`, `false`, `null`, `"hello"`, `42`} {
		if got := reencode(t, in); got != in {
			t.Fatalf("got %q want %q", got, in)
		}
	}
}

func TestWriteSurrogatePairDecode(t *testing.T) {
	got := reencode(t, `"\uD83D\uDE00"`)
	if got != "\"\U0001F600\"" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteQuoteBackslash(t *testing.T) {
	got := reencode(t, `"a\"b\\c"`)
	if got != `"a\"b\\c"` {
		t.Fatalf("got %q", got)
	}
}

func TestWriteRejectsUnresolvedValue(t *testing.T) {
	if _, err := Write([]any{struct{}{}}); err == nil {
		t.Fatal("expected error for unresolved value")
	}
}
