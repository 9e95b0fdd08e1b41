package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
	"time"

	"timeronline/backend/internal/codec"
)

func TestEncodeDecodeCommands(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"encode", "--kind", "stopwatch", "--pause", "0.5", "--name", "run"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("encode exit %d: %s", code, errOut.String())
	}
	token := strings.TrimSpace(out.String())
	if !strings.HasPrefix(token, "B,H0,") || !strings.HasSuffix(token, ",run") {
		t.Fatalf("unexpected token %q", token)
	}

	out.Reset()
	if code := run([]string{"decode", token}, &out, &errOut); code != 0 {
		t.Fatalf("decode exit %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"format": "`+codec.FormatCurrent+`"`) || !strings.Contains(out.String(), `"type": "stopwatch"`) {
		t.Fatalf("unexpected decode output %s", out.String())
	}
}

func TestEvalCommand(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	var out, errOut bytes.Buffer
	code := run([]string{
		"encode", "--active", "--pause", "600", "--duration", "600",
		"--start", strconv.FormatInt(start, 10),
	}, &out, &errOut)
	if code != 0 {
		t.Fatalf("encode exit %d: %s", code, errOut.String())
	}
	token := strings.TrimSpace(out.String())

	out.Reset()
	code = run([]string{"eval", token, "--at", strconv.FormatInt(start+90_000, 10), "--display", "minutes"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("eval exit %d: %s", code, errOut.String())
	}
	if got := strings.TrimSpace(out.String()); got != "8m 30.00s running" {
		t.Fatalf("unexpected eval output %q", got)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
	if code := run([]string{"decode", "x"}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1 for bad token, got %d", code)
	}
	if code := run([]string{"encode", "--kind", "egg"}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1 for bad kind, got %d", code)
	}
}
