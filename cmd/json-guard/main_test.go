package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lattice-substrate/json-guard/binfmt"
	"github.com/lattice-substrate/json-guard/guarderr"
	"github.com/lattice-substrate/json-guard/textenc"
)

type cliResult struct {
	exitCode int
	stdout   string
	stderr   string
}

func runCLI(t *testing.T, args []string, stdin []byte) cliResult {
	t.Helper()
	t.Setenv("JSON_GUARD_CONFIG", "")
	var stdout, stderr bytes.Buffer
	code := run(args, bytes.NewReader(stdin), &stdout, &stderr)
	return cliResult{exitCode: code, stdout: stdout.String(), stderr: stderr.String()}
}

func assertExit(t *testing.T, res cliResult, want int) {
	t.Helper()
	if res.exitCode != want {
		t.Fatalf("expected exit %d, got %d stdout=%q stderr=%q", want, res.exitCode, res.stdout, res.stderr)
	}
}

func TestUsage(t *testing.T) {
	assertExit(t, runCLI(t, nil, nil), exitInvalid)
	res := runCLI(t, []string{"frobnicate"}, nil)
	assertExit(t, res, exitInvalid)
	if !strings.Contains(res.stderr, "unknown command") {
		t.Fatalf("stderr=%q", res.stderr)
	}
	assertExit(t, runCLI(t, []string{"check", "--bogus"}, nil), exitInvalid)
	assertExit(t, runCLI(t, []string{"check", "a", "b"}, nil), exitInvalid)
	assertExit(t, runCLI(t, []string{"check", "--help"}, nil), exitSuccess)
}

func TestCheck(t *testing.T) {
	res := runCLI(t, []string{"check", "-"}, []byte(`{"a":[1,2]}`))
	assertExit(t, res, exitSuccess)
	if res.stdout != "ok\n" {
		t.Fatalf("stdout=%q", res.stdout)
	}
	res = runCLI(t, []string{"check", "--quiet"}, []byte(`[]`))
	assertExit(t, res, exitSuccess)
	if res.stdout != "" {
		t.Fatalf("quiet stdout=%q", res.stdout)
	}
}

func TestCheckDepthBomb(t *testing.T) {
	for _, backend := range []string{"pure", "accelerated"} {
		t.Run(backend, func(t *testing.T) {
			depth := 100000
			input := strings.Repeat(`{"a":`, depth) + "1" + strings.Repeat("}", depth)
			res := runCLI(t, []string{"check", "--backend", backend}, []byte(input))
			assertExit(t, res, exitInvalid)
			if !strings.Contains(res.stderr, string(guarderr.RecursionLimitExceeded)) {
				t.Fatalf("stderr=%q", res.stderr)
			}
		})
	}
}

func TestCheckMaxDepthFlag(t *testing.T) {
	assertExit(t, runCLI(t, []string{"check", "--max-depth", "3"}, []byte(`[[[1]]]`)), exitSuccess)
	assertExit(t, runCLI(t, []string{"check", "--max-depth", "2"}, []byte(`[[[1]]]`)), exitInvalid)
	assertExit(t, runCLI(t, []string{"check", "--max-depth", "0"}, []byte(`[]`)), exitInvalid)
}

func TestCheckWideText(t *testing.T) {
	wide, err := textenc.FromUTF8([]byte(`{"k":"v"}`), textenc.UTF16BE)
	if err != nil {
		t.Fatal(err)
	}
	assertExit(t, runCLI(t, []string{"check"}, wide), exitSuccess)
	assertExit(t, runCLI(t, []string{"check", "--encoding", "utf-16be"}, wide), exitSuccess)
	assertExit(t, runCLI(t, []string{"check", "--encoding", "ebcdic"}, wide), exitInvalid)
}

func TestCheckJSONC(t *testing.T) {
	input := []byte("{\n  // note\n  \"a\": 1,\n}")
	assertExit(t, runCLI(t, []string{"check"}, input), exitInvalid)
	assertExit(t, runCLI(t, []string{"check", "--jsonc"}, input), exitSuccess)
}

func TestCheckErrors(t *testing.T) {
	cases := []struct {
		name  string
		input []byte
		class guarderr.FailureClass
	}{
		{"grammar", []byte(`{"a" 1}`), guarderr.InvalidGrammar},
		{"utf8", []byte{'"', 0xff, '"'}, guarderr.InvalidUTF8},
		{"huge exponent", []byte(`1e999999`), guarderr.UnsupportedValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := runCLI(t, []string{"check"}, tc.input)
			assertExit(t, res, tc.class.ExitCode())
			if !strings.Contains(res.stderr, string(tc.class)) {
				t.Fatalf("stderr missing %s: %q", tc.class, res.stderr)
			}
		})
	}
}

func TestCheckMissingFile(t *testing.T) {
	res := runCLI(t, []string{"check", filepath.Join(t.TempDir(), "absent.json")}, nil)
	assertExit(t, res, exitInvalid)
}

func TestDepth(t *testing.T) {
	res := runCLI(t, []string{"depth"}, []byte(`{"a":[{"b":[]}],"c":1}`))
	assertExit(t, res, exitSuccess)
	if res.stdout != "4\n" {
		t.Fatalf("stdout=%q", res.stdout)
	}
	res = runCLI(t, []string{"depth", "--max-depth", "3"}, []byte(`[[[[]]]]`))
	assertExit(t, res, exitInvalid)
}

func TestDepthRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{``, "  \n", `[01]`, `[1.e5]`, "[\"a\tb\"]"} {
		res := runCLI(t, []string{"depth"}, []byte(in))
		assertExit(t, res, exitInvalid)
		if res.stdout != "" || !strings.Contains(res.stderr, "INVALID_GRAMMAR") {
			t.Fatalf("input %q: stdout=%q stderr=%q", in, res.stdout, res.stderr)
		}
	}
}

func TestReencode(t *testing.T) {
	res := runCLI(t, []string{"reencode", "--backend", "accelerated"}, []byte(`{ "b" : 1, "a" : "<x>" }`))
	assertExit(t, res, exitSuccess)
	if res.stdout != `{"a":"<x>","b":1}` {
		t.Fatalf("stdout=%q", res.stdout)
	}
}

func TestReencodeCBORRoundTrip(t *testing.T) {
	res := runCLI(t, []string{"reencode", "--to", "cbor"}, []byte(`{"a":[true,null]}`))
	assertExit(t, res, exitSuccess)

	back := runCLI(t, []string{"reencode", "--from", "cbor"}, []byte(res.stdout))
	assertExit(t, back, exitSuccess)
	if back.stdout != `{"a":[true,null]}` {
		t.Fatalf("stdout=%q", back.stdout)
	}

	assertExit(t, runCLI(t, []string{"reencode", "--from", "msgpack"}, nil), exitInvalid)
	assertExit(t, runCLI(t, []string{"reencode", "--to", "bson"}, []byte(`1`)), exitInvalid)
}

func TestReencodeOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.msgpack")
	res := runCLI(t, []string{"reencode", "--to", "msgpack", "--output", out}, []byte(`{"k":[1,2]}`))
	assertExit(t, res, exitSuccess)
	if res.stdout != "" {
		t.Fatalf("stdout=%q", res.stdout)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want, err := binfmt.Marshal(binfmt.MessagePack, map[string]any{"k": []any{1.0, 2.0}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("file=%x want %x", got, want)
	}
	entries, err := os.ReadDir(filepath.Dir(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guard.yaml")
	if err := os.WriteFile(path, []byte("max_depth: 2\nbackend: accelerated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	assertExit(t, runCLI(t, []string{"check", "--config", path}, []byte(`[[1]]`)), exitSuccess)
	assertExit(t, runCLI(t, []string{"check", "--config", path}, []byte(`[[[1]]]`)), exitInvalid)
	assertExit(t, runCLI(t, []string{"check", "--config", path, "--max-depth", "3"}, []byte(`[[[1]]]`)), exitSuccess)

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("backend: cgo\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	assertExit(t, runCLI(t, []string{"check", "--config", bad}, []byte(`1`)), exitInvalid)
}

func TestVerboseLogsToStderr(t *testing.T) {
	res := runCLI(t, []string{"check", "--verbose"}, []byte(`1`))
	assertExit(t, res, exitSuccess)
	if !strings.Contains(res.stderr, "configured") {
		t.Fatalf("expected debug log, stderr=%q", res.stderr)
	}
	if quiet := runCLI(t, []string{"check"}, []byte(`1`)); quiet.stderr != "" {
		t.Fatalf("expected no logs, stderr=%q", quiet.stderr)
	}
}

func TestInputBound(t *testing.T) {
	data, err := readBounded(bytes.NewReader(make([]byte, 9)), 8)
	if !guarderr.Is(err, guarderr.BoundExceeded) {
		t.Fatalf("expected BOUND_EXCEEDED, got %v (%d bytes)", err, len(data))
	}
}

func TestWriteClassifiedErrorWrapped(t *testing.T) {
	inner := guarderr.New(guarderr.InvalidUTF8, 3, "bad byte")
	err := fmt.Errorf("outer: %w", inner)
	var stderr bytes.Buffer
	if code := writeClassifiedError(&stderr, err); code != guarderr.InvalidUTF8.ExitCode() {
		t.Fatalf("expected exit %d, got %d", guarderr.InvalidUTF8.ExitCode(), code)
	}
}

func TestWriteClassifiedErrorFallback(t *testing.T) {
	var stderr bytes.Buffer
	if code := writeClassifiedError(&stderr, fmt.Errorf("unclassified failure")); code != exitInternal {
		t.Fatalf("expected exit %d, got %d", exitInternal, code)
	}
}
