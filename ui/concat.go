//go:build ignore

// concat.go - собирает static/js/src/*.js в один static/js/app.js
// Usage: go run concat.go [-src dir] [-out file]

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

func main() {
	srcDir := flag.String("src", "static/js/src", "directory with numbered JS sources")
	outFile := flag.String("out", "static/js/app.js", "generated bundle")
	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*srcDir, "*.js"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "glob %s: %v\n", *srcDir, err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no .js files in %s\n", *srcDir)
		os.Exit(1)
	}

	// 00-api.js, 10-render.js, ... порядок задаётся префиксом
	sort.Strings(files)

	var buf bytes.Buffer
	buf.WriteString("// Generated from static/js/src by concat.go. Do not edit.\n")
	buf.WriteString("// Rebuild with 'go generate ./ui'.\n\n")

	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", f, err)
			os.Exit(1)
		}
		fmt.Fprintf(&buf, "// --- %s ---\n", filepath.Base(f))
		buf.Write(bytes.TrimRight(content, "\n"))
		buf.WriteString("\n\n")
	}

	// Не трогаем файл, если содержимое не поменялось
	if old, err := os.ReadFile(*outFile); err == nil && bytes.Equal(old, buf.Bytes()) {
		return
	}
	if err := os.WriteFile(*outFile, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outFile, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s from %d files\n", *outFile, len(files))
}
