package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/quillgate/internal/normalization"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		validateTextPath, validateContextPath = "", ""
		rootCmd.SetOut(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommandExitCodes(t *testing.T) {
	ctxPath := writeFile(t, "ctx.yaml", "pov:\n  pov_name: 张三\n")

	clean := writeFile(t, "clean.txt", "the lamp flickered while he waited by the door.")
	out, err := run(t, "validate", "--text", clean, "--context", ctxPath)
	if err != nil {
		t.Fatalf("clean draft: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if res["ok"] != true || res["action"] != "accept" {
		t.Fatalf("unexpected result: %v", res)
	}

	leaky := writeFile(t, "leaky.txt", "他并不知道的是，远处有人窥视。")
	out, err = run(t, "validate", "--text", leaky, "--context", ctxPath)
	var ec exitCodeError
	if !errors.As(err, &ec) || ec.code != 2 {
		t.Fatalf("expected exit 2, got %v", err)
	}
	if !strings.Contains(out, "E_POV_LEAK") {
		t.Fatalf("output missing pov leak: %s", out)
	}
}

func TestValidateCommandRejectsBadContext(t *testing.T) {
	ctxPath := writeFile(t, "ctx.yaml", "introduced_characters:\n  - name: \"\"\n")
	text := writeFile(t, "draft.txt", "hello")
	if _, err := run(t, "validate", "--text", text, "--context", ctxPath); err == nil {
		t.Fatalf("expected invalid context error")
	}
}

func TestHashCommand(t *testing.T) {
	p := writeFile(t, "draft.txt", "\ufeffline one\r\nline two  \n")
	out, err := run(t, "hash", p)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if strings.TrimSpace(out) != normalization.ContentHash("line one\nline two") {
		t.Fatalf("unexpected hash %q", out)
	}
}
