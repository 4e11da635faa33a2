package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
)

// NameUsage is a string literal bean name found in the source
type NameUsage struct {
	File     string
	Line     int
	Function string
	Name     string
}

// Report collects the bean names a project declares and looks up
type Report struct {
	Declared map[string][]NameUsage
	Lookups  []NameUsage
}

// Unresolved returns the lookups whose name no bean declares
func (r *Report) Unresolved() []NameUsage {
	var out []NameUsage
	for _, u := range r.Lookups {
		if _, ok := r.Declared[u.Name]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// Ambiguous returns names declared more than once
func (r *Report) Ambiguous() []string {
	var out []string
	for name, decls := range r.Declared {
		if len(decls) > 1 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ScanNames scans Go files under rootDir for bean names declared with
// .Named("...") or core.Named("...") and looked up with ResolveByName("...")
func ScanNames(rootDir string) (*Report, error) {
	report := &Report{Declared: make(map[string][]NameUsage)}

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if name := info.Name(); name == "vendor" || name == ".git" || (strings.HasPrefix(name, "_") && path != rootDir) {
				return filepath.SkipDir
			}
			return nil
		}
		// Skip test files
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.AllErrors)
		if err != nil {
			// Log warning but continue
			fmt.Fprintf(os.Stderr, "Warning: could not parse %s: %v\n", path, err)
			return nil
		}

		ast.Inspect(node, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) != 1 {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			lit, ok := call.Args[0].(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				return true
			}
			name, err := strconv.Unquote(lit.Value)
			if err != nil || name == "" {
				return true
			}

			usage := NameUsage{
				File:     path,
				Line:     fset.Position(call.Pos()).Line,
				Function: getFunctionName(node, call.Pos()),
				Name:     name,
			}
			switch sel.Sel.Name {
			case "Named":
				report.Declared[name] = append(report.Declared[name], usage)
			case "ResolveByName":
				report.Lookups = append(report.Lookups, usage)
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	return report, nil
}

// getFunctionName attempts to find the function containing the position
func getFunctionName(node *ast.File, pos token.Pos) string {
	var funcName string

	ast.Inspect(node, func(n ast.Node) bool {
		if fd, ok := n.(*ast.FuncDecl); ok {
			if fd.Pos() <= pos && pos <= fd.End() {
				if fd.Recv != nil {
					switch recv := fd.Recv.List[0].Type.(type) {
					case *ast.Ident:
						funcName = recv.Name + "." + fd.Name.Name
					case *ast.StarExpr:
						if ident, ok := recv.X.(*ast.Ident); ok {
							funcName = ident.Name + "." + fd.Name.Name
						} else {
							funcName = "method:" + fd.Name.Name
						}
					default:
						funcName = "method:" + fd.Name.Name
					}
				} else {
					funcName = fd.Name.Name
				}
				return false
			}
		}
		return true
	})

	if funcName == "" {
		return "unknown"
	}
	return funcName
}

// ValidateConfig loads and validates a configuration file
func ValidateConfig(path string) (*core.Config, error) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// printUsage prints the usage information
func printUsage() {
	fmt.Printf(`Usage: %s [options] [project-root]

Options:
  -config string   Configuration file (YAML or JSON) to load and validate
  -mode string     Validation mode: "warn" (default) or "strict"
                   - warn: Report problems but don't fail
                   - strict: Exit with error if problems are found

  -help, -h       Show this help message

Examples:
  %s -config doffy.yaml
  %s -mode=strict ./my-project

`, os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	var mode, configPath string
	var help bool

	flag.StringVar(&configPath, "config", "", "Configuration file to validate")
	flag.StringVar(&mode, "mode", "warn", "Validation mode: warn or strict")
	flag.BoolVar(&help, "help", false, "Show help")
	flag.BoolVar(&help, "h", false, "Show help")
	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}

	if mode != "warn" && mode != "strict" {
		fmt.Fprintf(os.Stderr, "Error: Invalid mode '%s'. Must be 'warn' or 'strict'\n\n", mode)
		printUsage()
		os.Exit(1)
	}

	if configPath == "" && flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: Nothing to validate\n\n")
		printUsage()
		os.Exit(1)
	}

	if configPath != "" {
		cfg, err := ValidateConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Configuration %s is valid (executor %s/%d, conversation timeout %s)\n",
			configPath, cfg.Executor.Type, cfg.Executor.ThreadPoolSize, cfg.Conversation.Timeout)
	}

	if flag.NArg() < 1 {
		return
	}

	rootDir := flag.Arg(0)
	if _, err := os.Stat(rootDir); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: Directory '%s' does not exist\n", rootDir)
		os.Exit(1)
	}

	fmt.Printf("Scanning Go files in %s for bean names...\n\n", rootDir)
	report, err := ScanNames(rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nValidation failed: %v\n", err)
		os.Exit(1)
	}

	problems := 0
	for _, u := range report.Unresolved() {
		relPath, _ := filepath.Rel(rootDir, u.File)
		fmt.Printf("%s:%d: %s -> ResolveByName(%q) has no declared bean\n", relPath, u.Line, u.Function, u.Name)
		problems++
	}
	for _, name := range report.Ambiguous() {
		fmt.Printf("bean name %q is declared %d times:\n", name, len(report.Declared[name]))
		for _, d := range report.Declared[name] {
			relPath, _ := filepath.Rel(rootDir, d.File)
			fmt.Printf("  %s:%d\n", relPath, d.Line)
		}
		problems++
	}

	if problems == 0 {
		fmt.Println("✓ No unresolved or ambiguous bean names found")
	} else if mode == "strict" {
		fmt.Fprintf(os.Stderr, "\nValidation failed: %d problems found in strict mode\n", problems)
		os.Exit(1)
	}

	fmt.Println("\n✓ Validation completed")
}
