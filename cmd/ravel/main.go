// Command ravel manages content sessions: load a document or corpus once,
// explore it with handle-backed search and structure-aware chunking, fan
// questions out to external reasoning workers, and record a final answer
// for retrieval.
package main

import (
	"context"
	"fmt"
	"os"
)

type command struct {
	name  string
	short string
	run   func(ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"init", "create a session from a file or directory", cmdInit},
		{"status", "summarize a session", cmdStatus},
		{"reset", "delete a session snapshot", cmdReset},
		{"peek", "print a slice of the session content", cmdPeek},
		{"add-buffer", "append text to the session's buffers", cmdAddBuffer},
		{"export-buffers", "write all buffers to a file", cmdExportBuffers},
		{"grep", "regex search the content into a handle", cmdGrep},
		{"handles", "list active handles", cmdHandles},
		{"expand", "materialize items from a handle", cmdExpand},
		{"count", "count items in a handle", cmdCount},
		{"filter", "filter a handle into a new handle", cmdFilter},
		{"map", "project one field from a handle", cmdMapField},
		{"sum", "sum a numeric field across a handle", cmdSumField},
		{"delete-handle", "drop a handle", cmdDeleteHandle},
		{"chunk", "split the content into chunk files", cmdChunk},
		{"index", "index chunk files for keyword search", cmdIndex},
		{"search", "keyword-search indexed chunks", cmdSearch},
		{"query", "send one prompt to a reasoning worker", cmdQuery},
		{"batch", "send many prompts with retry and a concurrency cap", cmdBatch},
		{"finalize", "record the session's final answer", cmdFinalize},
		{"get-final-answer", "print the final answer as JSON", cmdGetFinalAnswer},
		{"watch", "report when source content changes on disk", cmdWatch},
	}
}

func main() {
	loadEnv()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage()
		if len(args) == 0 {
			os.Exit(2)
		}
		return
	}

	for _, c := range commands {
		if c.name == args[0] {
			if err := c.run(context.Background(), args[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "ravel %s: %v\n", c.name, err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "ravel: unknown command %q\n\n", args[0])
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ravel <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", c.name, c.short)
	}
}
