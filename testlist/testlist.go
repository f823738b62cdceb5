// Package testlist collects the tests of a package from its _test.go files,
// in the order the files and declarations appear.
package testlist

import (
	"fmt"
	"go/ast"
	"go/build"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"

	"github.com/ethereum-optimism/infra/wetest/types"
)

const (
	suiteImportPath = "github.com/stretchr/testify/suite"
	directivePrefix = "//wetest:"
)

// FindModule walks up from dir to the nearest go.mod and returns the module
// root directory and the module path.
func FindModule(dir string) (root string, modulePath string, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for cur := dir; ; {
		goModPath := filepath.Join(cur, "go.mod")
		content, err := os.ReadFile(goModPath)
		if err == nil {
			modPath := modfile.ModulePath(content)
			if modPath == "" {
				return "", "", fmt.Errorf("could not find module name in %s", goModPath)
			}
			return cur, modPath, nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("failed to read go.mod: %w", err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", fmt.Errorf("no go.mod found in %s or any parent directory", dir)
		}
		cur = parent
	}
}

// ImportPath returns the import path of pkgDir inside the module rooted at root.
func ImportPath(root, modulePath, pkgDir string) (string, error) {
	rel, err := filepath.Rel(root, pkgDir)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return modulePath, nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("package %s is not in module %s", pkgDir, modulePath)
	}
	return path.Join(modulePath, rel), nil
}

// HasTestFiles reports whether dir contains a _test.go file go test would build.
func HasTestFiles(dir string) (bool, error) {
	files, err := testFiles(dir)
	return len(files) > 0, err
}

// FindTestPackages walks root and returns the directories holding test files
// as "./"-prefixed slash paths relative to root ("." for root itself), in
// lexical order. Hidden,
// underscore-prefixed, testdata and vendor directories are skipped, and so
// are nested modules.
func FindTestPackages(root string) ([]string, error) {
	var packages []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "vendor" {
				return filepath.SkipDir
			}
			if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
				return filepath.SkipDir
			}
		}
		ok, err := HasTestFiles(p)
		if err != nil {
			return err
		}
		if ok {
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			if rel == "." {
				packages = append(packages, ".")
			} else {
				packages = append(packages, "./"+filepath.ToSlash(rel))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find test packages under %s: %w", root, err)
	}
	return packages, nil
}

// CollectPackage parses the test files in pkgDir and returns one module scope
// per file that declares tests. Node file names are made relative to testDir.
//
// A top-level test that calls suite.Run with new(T) or &T{} is replaced by a
// class scope holding the Test methods of T, in declaration order.
func CollectPackage(pkgDir, importPath, testDir string) ([]*types.Scope, error) {
	files, err := testFiles(pkgDir)
	if err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	parsed := make([]*ast.File, 0, len(files))
	for _, name := range files {
		f, err := parser.ParseFile(fset, filepath.Join(pkgDir, name), nil, parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		parsed = append(parsed, f)
	}

	methods := suiteMethods(parsed)

	var scopes []*types.Scope
	for i, f := range parsed {
		relFile, err := filepath.Rel(testDir, filepath.Join(pkgDir, files[i]))
		if err != nil {
			return nil, err
		}
		base := types.TestCase{
			Package: importPath,
			Dir:     pkgDir,
			File:    filepath.ToSlash(relFile),
		}

		scope := &types.Scope{Kind: types.ScopeModule, Name: base.File}
		suitePkg := suiteImportName(f)
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv != nil || !isTestFunc(fn) {
				continue
			}

			if suiteType := suiteRunTarget(fn, suitePkg); suiteType != "" {
				class := &types.Scope{Kind: types.ScopeClass, Name: suiteType}
				for _, m := range methods[suiteKey{f.Name.Name, suiteType}] {
					tc := describe(base, m)
					tc.Suite = suiteType
					tc.Runner = fn.Name.Name
					class.Items = append(class.Items, types.ScopeItem{Test: &tc})
				}
				scope.Items = append(scope.Items, types.ScopeItem{Class: class})
				continue
			}

			tc := describe(base, fn)
			scope.Items = append(scope.Items, types.ScopeItem{Test: &tc})
		}
		if len(scope.Items) > 0 {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}

// testFiles lists the _test.go files of dir that match the current build
// context, sorted by name.
func testFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, "_test.go") {
			continue
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		match, err := build.Default.MatchFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check build constraints of %s: %w", name, err)
		}
		if match {
			files = append(files, name)
		}
	}
	return files, nil
}

func describe(base types.TestCase, fn *ast.FuncDecl) types.TestCase {
	tc := base
	tc.Name = fn.Name.Name
	if fn.Doc != nil {
		tc.Doc = fn.Doc.Text()
		for _, c := range fn.Doc.List {
			for _, marker := range directiveMarkers(c.Text) {
				switch marker {
				case types.MarkerAtomic:
					tc.Atomic = true
				case types.MarkerElectronic:
					tc.Electronic = true
				}
			}
		}
	}
	return tc
}

// directiveMarkers returns the marker names of a //wetest: directive line.
// Several markers may be separated by commas.
func directiveMarkers(comment string) []string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(comment), directivePrefix)
	if !ok {
		return nil
	}
	var markers []string
	for _, m := range strings.Split(rest, ",") {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	return markers
}

// isTest mirrors the go tool: the name must start with prefix and the next
// rune, if any, must not be lower case.
func isTest(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	if len(name) == len(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len(prefix):])
	return !unicode.IsLower(r)
}

// isTestFunc reports whether fn is a top-level func TestXxx(t *testing.T).
func isTestFunc(fn *ast.FuncDecl) bool {
	if !isTest(fn.Name.Name, "Test") || fn.Name.Name == "TestMain" {
		return false
	}
	params := fn.Type.Params.List
	if len(params) != 1 || len(params[0].Names) > 1 {
		return false
	}
	star, ok := params[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	sel, ok := star.X.(*ast.SelectorExpr)
	return ok && sel.Sel.Name == "T"
}

func suiteImportName(f *ast.File) string {
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != suiteImportPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return "suite"
	}
	return ""
}

// suiteRunTarget returns T when fn calls suite.Run(t, new(T)) or
// suite.Run(t, &T{...}).
func suiteRunTarget(fn *ast.FuncDecl, suitePkg string) string {
	if suitePkg == "" || suitePkg == "_" || fn.Body == nil {
		return ""
	}
	var target string
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		if target != "" {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) != 2 {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Run" {
			return true
		}
		if pkg, ok := sel.X.(*ast.Ident); !ok || pkg.Name != suitePkg {
			return true
		}
		target = constructedType(call.Args[1])
		return true
	})
	return target
}

func constructedType(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.CallExpr:
		if fun, ok := e.Fun.(*ast.Ident); ok && fun.Name == "new" && len(e.Args) == 1 {
			if id, ok := e.Args[0].(*ast.Ident); ok {
				return id.Name
			}
		}
	case *ast.UnaryExpr:
		if e.Op != token.AND {
			return ""
		}
		if lit, ok := e.X.(*ast.CompositeLit); ok {
			if id, ok := lit.Type.(*ast.Ident); ok {
				return id.Name
			}
		}
	}
	return ""
}

type suiteKey struct {
	pkg      string
	typeName string
}

// suiteMethods indexes the Test methods of every receiver type across the
// package's test files, in file and declaration order.
func suiteMethods(files []*ast.File) map[suiteKey][]*ast.FuncDecl {
	methods := make(map[suiteKey][]*ast.FuncDecl)
	for _, f := range files {
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || len(fn.Recv.List) != 1 {
				continue
			}
			if !strings.HasPrefix(fn.Name.Name, "Test") || fn.Type.Params.NumFields() != 0 {
				continue
			}
			recv := fn.Recv.List[0].Type
			if star, ok := recv.(*ast.StarExpr); ok {
				recv = star.X
			}
			id, ok := recv.(*ast.Ident)
			if !ok {
				continue
			}
			key := suiteKey{f.Name.Name, id.Name}
			methods[key] = append(methods[key], fn)
		}
	}
	return methods
}
