package architecture_test

import (
	"bufio"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// layerRule bans imports of the listed internal prefixes from files under dir.
type layerRule struct {
	dir    string
	banned []string
}

var layerRules = []layerRule{
	{dir: "internal/domain/", banned: []string{"internal/data/", "internal/modules/", "internal/http/", "internal/app", "internal/platform/", "internal/observability"}},
	{dir: "internal/normalization/", banned: []string{"internal/"}},
	{dir: "internal/platform/", banned: []string{"internal/data/", "internal/modules/", "internal/http/", "internal/app", "internal/domain/"}},
	{dir: "internal/observability/", banned: []string{"internal/data/", "internal/modules/", "internal/http/", "internal/app"}},
	{dir: "internal/data/", banned: []string{"internal/modules/", "internal/http/", "internal/app"}},
	{dir: "internal/modules/", banned: []string{"internal/http/", "internal/app", "internal/data/db"}},
	{dir: "internal/http/", banned: []string{"internal/app", "internal/data/db"}},
}

func TestImportBoundaries(t *testing.T) {
	root, modulePath := moduleRoot(t)
	fset := token.NewFileSet()

	var violations []string
	walkErr := filepath.WalkDir(filepath.Join(root, "internal"), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		var rule *layerRule
		for i := range layerRules {
			if strings.HasPrefix(rel, layerRules[i].dir) {
				rule = &layerRules[i]
				break
			}
		}
		if rule == nil {
			return nil
		}

		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil || !strings.HasPrefix(imp, modulePath+"/") {
				continue
			}
			local := strings.TrimPrefix(imp, modulePath+"/")
			for _, bad := range rule.banned {
				if strings.HasPrefix(local, bad) {
					violations = append(violations, fmt.Sprintf("- %s imports %q (layer %s bans %q)", rel, imp, rule.dir, bad))
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		t.Fatalf("walk internal/: %v", walkErr)
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n%s", strings.Join(violations, "\n"))
	}
}

func TestNoForeignModuleImports(t *testing.T) {
	root, modulePath := moduleRoot(t)
	owner := modulePath[:strings.LastIndex(modulePath, "/")+1]
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range f.Imports {
			imp, _ := strconv.Unquote(spec.Path.Value)
			if strings.HasPrefix(imp, owner) && !strings.HasPrefix(imp, modulePath) {
				t.Errorf("%s imports sibling module %q", path, imp)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func moduleRoot(t *testing.T) (string, string) {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("go.mod not found")
		}
		dir = parent
	}
	mp, err := readModulePath(filepath.Join(dir, "go.mod"))
	if err != nil {
		t.Fatalf("read module path: %v", err)
	}
	return dir, mp
}

func readModulePath(goModPath string) (string, error) {
	f, err := os.Open(goModPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if mp, ok := strings.CutPrefix(line, "module "); ok {
			if mp = strings.TrimSpace(mp); mp == "" {
				return "", fmt.Errorf("empty module path in %s", goModPath)
			}
			return mp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("module path not found in %s", goModPath)
}
