package generation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/quillgate/internal/modules/narrative/validation"
)

func TestStaticContextProvider(t *testing.T) {
	def := povOnly("甲")
	p := NewStaticContextProvider(def)
	id := uuid.New()
	p.Set(id, povOnly("乙"))

	got, err := p.NarrativeContext(context.Background(), id)
	if err != nil || got.POV.Name != "乙" {
		t.Fatalf("chapter context: %+v err=%v", got, err)
	}
	got, err = p.NarrativeContext(context.Background(), uuid.New())
	if err != nil || got.POV.Name != "甲" {
		t.Fatalf("default context: %+v err=%v", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.NarrativeContext(ctx, id); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestLoadContextFileSingleDocument(t *testing.T) {
	path := writeFile(t, "ctx.yaml", `
pov:
  pov_name: 张三
  pov_switch_allowed: false
introduced_characters:
  - name: 李四
outline_constraints:
  allowed_outline_nodes: [n1]
  forbidden_outline_nodes:
    - id: 回击
      keywords: [回击, 反杀, 大胜]
`)
	p, err := LoadContextFile(path)
	if err != nil {
		t.Fatalf("LoadContextFile: %v", err)
	}
	nc, _ := p.NarrativeContext(context.Background(), uuid.New())
	if nc.POV.Name != "张三" || len(nc.IntroducedCharacters) != 1 || len(nc.Outline.Forbidden[0].Keywords) != 3 {
		t.Fatalf("unexpected context: %+v", nc)
	}
}

func TestLoadContextFileChapterMap(t *testing.T) {
	id := uuid.New()
	path := writeFile(t, "ctx.yaml", `
default:
  pov:
    pov_name: 张三
chapters:
  "`+id.String()+`":
    pov:
      pov_name: 王五
      pov_switch_allowed: true
`)
	p, err := LoadContextFile(path)
	if err != nil {
		t.Fatalf("LoadContextFile: %v", err)
	}
	nc, _ := p.NarrativeContext(context.Background(), id)
	if nc.POV.Name != "王五" || !nc.POV.SwitchAllowed {
		t.Fatalf("chapter override lost: %+v", nc)
	}
	nc, _ = p.NarrativeContext(context.Background(), uuid.New())
	if nc.POV.Name != "张三" {
		t.Fatalf("default lost: %+v", nc)
	}
}

func TestLoadContextFileRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unnamed character": "introduced_characters:\n  - name: \"\"\n",
		"bad chapter key":   "chapters:\n  not-a-uuid:\n    pov:\n      pov_name: x\n",
		"not yaml":          "pov: [unclosed",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadContextFile(writeFile(t, "ctx.yaml", body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := LoadContextFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func povOnly(name string) validation.NarrativeContext {
	return validation.NarrativeContext{POV: validation.POVConfig{Name: name}}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadContextFileToleratesSparseOutlineNodes(t *testing.T) {
	body := "outline_constraints:\n  forbidden_outline_nodes:\n    - id: n1\n      keywords: []\n    - keywords: [\"\", vault]\n"
	p, err := LoadContextFile(writeFile(t, "ctx.yaml", body))
	if err != nil {
		t.Fatalf("LoadContextFile: %v", err)
	}
	nc, _ := p.NarrativeContext(context.Background(), uuid.New())
	if len(nc.Outline.Forbidden) != 2 {
		t.Fatalf("forbidden nodes: %+v", nc.Outline.Forbidden)
	}
	res := validation.Validate("vault opened, then the vault closed.", nc)
	hit, ok := res.Find(validation.CodeOutlineCompression)
	if !ok {
		t.Fatalf("expected outline compression, got %v", res.Codes())
	}
	if len(hit.Evidence) == 0 {
		t.Fatalf("missing evidence: %+v", hit)
	}
}
