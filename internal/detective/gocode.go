package detective

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// GoStats is what a syntax-only pass over the Go files of a tree shows
type GoStats struct {
	Files          int
	ParseErrors    int
	Packages       []string // Import-path-like directories, sorted
	TestFiles      int
	TestFuncs      int
	GoStatements   int
	ErrgroupFiles  []string // Files importing golang.org/x/sync/errgroup
	WaitGroupFiles []string // Files using sync.WaitGroup
	ChannelFiles   []string // Files declaring channel types
	ExecFiles      []string // Files calling os/exec
}

// skipGoDir reports directories whose Go files are not the project's own
func skipGoDir(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == "vendor" || seg == "testdata" || seg == "node_modules" || (strings.HasPrefix(seg, ".") && seg != ".") {
			return true
		}
	}
	return false
}

// ScanGo parses every .go file of manifest (paths relative to root). Files
// that fail to parse are counted and skipped
func ScanGo(root string, manifest []string, maxBytes int64) GoStats {
	var st GoStats
	pkgs := map[string]bool{}
	fset := token.NewFileSet()

	for _, rel := range manifest {
		if !strings.HasSuffix(rel, ".go") || skipGoDir(path.Dir(rel)) {
			continue
		}
		src, _, ok, err := readText(filepath.Join(root, filepath.FromSlash(rel)), maxBytes)
		if err != nil || !ok {
			st.ParseErrors++
			continue
		}
		file, err := parser.ParseFile(fset, rel, src, 0)
		if err != nil {
			st.ParseErrors++
			continue
		}
		st.Files++
		pkgs[path.Dir(rel)] = true

		isTest := strings.HasSuffix(rel, "_test.go")
		if isTest {
			st.TestFiles++
		}

		imports := map[string]string{} // local name -> path
		for _, imp := range file.Imports {
			p, _ := strconv.Unquote(imp.Path.Value)
			name := path.Base(p)
			if imp.Name != nil {
				name = imp.Name.Name
			}
			imports[name] = p
			if p == "golang.org/x/sync/errgroup" {
				st.ErrgroupFiles = append(st.ErrgroupFiles, rel)
			}
		}

		var usesWG, usesChan, usesExec bool
		ast.Inspect(file, func(n ast.Node) bool {
			switch x := n.(type) {
			case *ast.GoStmt:
				st.GoStatements++
			case *ast.ChanType:
				usesChan = true
			case *ast.SelectorExpr:
				if id, ok := x.X.(*ast.Ident); ok {
					switch imports[id.Name] {
					case "sync":
						if x.Sel.Name == "WaitGroup" {
							usesWG = true
						}
					case "os/exec":
						usesExec = true
					}
				}
			case *ast.FuncDecl:
				if isTest && x.Recv == nil && isTestFunc(x.Name.Name) {
					st.TestFuncs++
				}
			}
			return true
		})
		if usesWG {
			st.WaitGroupFiles = append(st.WaitGroupFiles, rel)
		}
		if usesChan {
			st.ChannelFiles = append(st.ChannelFiles, rel)
		}
		if usesExec {
			st.ExecFiles = append(st.ExecFiles, rel)
		}
	}

	for p := range pkgs {
		st.Packages = append(st.Packages, p)
	}
	sort.Strings(st.Packages)
	return st
}

func isTestFunc(name string) bool {
	for _, prefix := range []string{"Test", "Benchmark", "Fuzz", "Example"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Concurrent reports whether the code fans work out in parallel
func (s GoStats) Concurrent() bool {
	return s.GoStatements > 0 || len(s.ErrgroupFiles) > 0 || len(s.WaitGroupFiles) > 0
}
