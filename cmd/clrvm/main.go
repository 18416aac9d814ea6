package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/clrvm/cil"
	"github.com/wippyai/clrvm/debug"
	"github.com/wippyai/clrvm/errors"
	"github.com/wippyai/clrvm/interp"
	"github.com/wippyai/clrvm/metadata"
)

func main() {
	var (
		asmPath     = flag.String("asm", "", "Path to entry assembly")
		searchPath  = flag.String("L", "", "Search path for referenced assemblies (dir,dir,...)")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		interactive = flag.Bool("i", false, "Break into the step debugger on brk")
		disasmTok   = flag.String("disasm", "", "Disassemble a MethodDef token (e.g. 0x06000001) and exit")
		lint        = flag.Bool("lint", false, "Run verifier-lite diagnostics and exit")
	)
	flag.Parse()

	if *asmPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: clrvm -asm <file> [-L dir,dir,...] [-verbose] [-i] [-disasm token] [-lint]")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			os.Exit(1)
		}
		interp.SetLogger(logger)
	}

	data, err := os.ReadFile(*asmPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
		os.Exit(1)
	}
	asm, err := metadata.Load(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load: %v\n", err)
		os.Exit(1)
	}

	if *lint {
		findings := metadata.Lint(asm)
		if len(findings) == 0 {
			fmt.Println("no findings")
			return
		}
		for _, f := range findings {
			fmt.Println(f)
		}
		os.Exit(1)
	}

	if *disasmTok != "" {
		tok, err := parseToken(*disasmTok)
		if err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		_, code, err := interp.LoadMethodBody(asm, tok)
		if err != nil {
			fmt.Fprintf(os.Stderr, "disasm: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(cil.Disassemble(code))
		return
	}

	rt := interp.New(0)
	if *searchPath != "" {
		rt.AddAssemblyLoader(filesystemLoader(strings.Split(*searchPath, ",")))
	}
	if *interactive {
		rt.SetBreakHook(debug.Hook())
	}

	code, err := rt.Run(asm)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
	os.Exit(int(code))
}

// filesystemLoader searches each directory in roots for "<name>.dll",
// falling back to a bare "<name>" file. This is the one concrete
// AssemblyLoader implementation in the module; spec.md treats the search
// strategy itself as an external collaborator, so it lives here rather
// than in interp.
func filesystemLoader(roots []string) interp.AssemblyLoader {
	return func(name string) (*metadata.Assembly, error) {
		for _, root := range roots {
			for _, candidate := range []string{name + ".dll", name} {
				path := filepath.Join(root, candidate)
				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				asm, err := metadata.Load(data)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseLoad, errors.KindBadImage, err,
						fmt.Sprintf("resolving assembly %q from %s", name, path))
				}
				return asm, nil
			}
		}
		return nil, nil
	}
}

func parseToken(s string) (metadata.Token, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, err
	}
	return metadata.Token(v), nil
}
