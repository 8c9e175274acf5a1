// Command admin is a thin CLI over the server's loopback admin endpoints.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "stats":
		statsCmd(os.Args[2:])
	case "seed":
		seedCmd(os.Args[2:])
	case "convert":
		convertCmd(os.Args[2:])
	case "restore":
		restoreCmd(os.Args[2:])
	case "open":
		openCmd(os.Args[2:])
	case "clear-scope":
		clearScopeCmd(os.Args[2:])
	case "clear-all":
		clearAllCmd(os.Args[2:])
	case "cleanup":
		cleanupCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  stats        show coordinator counters and loaded tables
  seed         add a world-generated container
  convert      convert all eligible containers into loot containers
  restore      restore a container's original contents
  open         open a container as an actor
  clear-scope  reset first-open markers for one world
  clear-all    reset every first-open marker and cooldown
  cleanup      purge stale markers and lapsed cooldowns`)
}

func serverFlag(fs *flag.FlagSet) *string {
	return fs.String("server", "http://127.0.0.1:8080", "server base url")
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	server := serverFlag(fs)
	_ = fs.Parse(args)
	do(http.MethodGet, *server+"/admin/v1/stats", nil)
}

func seedCmd(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	server := serverFlag(fs)
	kind := fs.String("kind", "chest", "container kind")
	x := fs.Int("x", 0, "x")
	y := fs.Int("y", 64, "y")
	z := fs.Int("z", 0, "z")
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/seed",
		map[string]any{"kind": *kind, "x": *x, "y": *y, "z": *z})
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	server := serverFlag(fs)
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/convert_all", nil)
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	server := serverFlag(fs)
	x := fs.Int("x", 0, "x")
	y := fs.Int("y", 64, "y")
	z := fs.Int("z", 0, "z")
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/restore",
		map[string]any{"x": *x, "y": *y, "z": *z})
}

func openCmd(args []string) {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	server := serverFlag(fs)
	actor := fs.String("actor", "admin", "actor id")
	x := fs.Int("x", 0, "x")
	y := fs.Int("y", 64, "y")
	z := fs.Int("z", 0, "z")
	bypass := fs.Bool("bypass", false, "skip the first-open gate")
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/open",
		map[string]any{"actor": *actor, "x": *x, "y": *y, "z": *z, "bypass": *bypass})
}

func clearScopeCmd(args []string) {
	fs := flag.NewFlagSet("clear-scope", flag.ExitOnError)
	server := serverFlag(fs)
	scope := fs.String("scope", "", "world id to clear (required)")
	_ = fs.Parse(args)
	if *scope == "" {
		fmt.Fprintln(os.Stderr, "missing -scope")
		os.Exit(2)
	}
	do(http.MethodPost, *server+"/admin/v1/clear_scope?scope="+*scope, nil)
}

func clearAllCmd(args []string) {
	fs := flag.NewFlagSet("clear-all", flag.ExitOnError)
	server := serverFlag(fs)
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/clear_all", nil)
}

func cleanupCmd(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	server := serverFlag(fs)
	maxAge := fs.Duration("max_age", 30*24*time.Hour, "purge markers older than this")
	_ = fs.Parse(args)
	do(http.MethodPost, *server+"/admin/v1/cleanup?max_age="+maxAge.String(), nil)
}

func do(method, url string, body any) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fmt.Fprintln(os.Stderr, "encode:", err)
			os.Exit(1)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "call:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Print(string(out))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
