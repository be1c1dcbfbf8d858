// Command lcoll inspects a store written by package lcoll.
//
// Usage:
//
//	lcoll [-config lcoll.yaml] [-env .env] namespaces
//	lcoll [flags] dump <namespace>
//	lcoll [flags] keys <namespace>
//	lcoll [flags] get <namespace> <key>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/lcoll"
)

func main() {
	configPath := flag.String("config", "lcoll.yaml", "config file")
	envPath := flag.String("env", ".env", "dotenv file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(*configPath, *envPath, os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lcoll: %v\n", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := cfg.openStore(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lcoll: %v\n", err)
		os.Exit(1)
	}
	err = run(store, os.Stdout, flag.Args())
	store.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lcoll: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: lcoll [flags] namespaces | dump <ns> | keys <ns> | get <ns> <key>\n")
	flag.PrintDefaults()
}

func run(store lcoll.Store, w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("command required")
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "namespaces":
		if len(args) != 0 {
			return fmt.Errorf("namespaces: no arguments expected")
		}
		names, err := store.Namespaces()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(w, name)
		}
		return nil

	case "dump":
		if len(args) != 1 {
			return fmt.Errorf("dump: namespace required")
		}
		ns, err := store.Namespace(args[0])
		if err != nil {
			return err
		}
		s, err := lcoll.Dump(ns, lcoll.DumpAll)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, s)
		return err

	case "keys":
		if len(args) != 1 {
			return fmt.Errorf("keys: namespace required")
		}
		return printEntry(store, w, args[0], lcoll.IndexKey)

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("get: namespace and key required")
		}
		return printEntry(store, w, args[0], args[1])

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printEntry(store lcoll.Store, w io.Writer, nsName, key string) error {
	ns, err := store.Namespace(nsName)
	if err != nil {
		return err
	}
	raw, err := ns.Get(key)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%s: key not found", nsName)
	}
	kind, data, err := lcoll.DecodeEntry(raw)
	if err != nil {
		return err
	}

	var v any
	err = msgpack.Unmarshal(data, &v)
	if err != nil {
		return fmt.Errorf("decoding %v: %w", kind, err)
	}
	j, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", j)
	return nil
}
