package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/selimbzr/ravel/internal/chunker"
	"github.com/selimbzr/ravel/internal/handle"
	"github.com/selimbzr/ravel/internal/ingest"
	"github.com/selimbzr/ravel/internal/sandbox"
	"github.com/selimbzr/ravel/internal/search"
	"github.com/selimbzr/ravel/internal/session"
	"github.com/selimbzr/ravel/internal/structure"
)

// chunkDBName is the chunk database inside a session directory; the keyword
// index lives next to it.
const chunkDBName = "chunks.db"

func cmdChunk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	outDir := fs.String("out", "", "chunk output directory (default: <session dir>/chunks)")
	strategy := fs.String("strategy", "smart", "smart or fixed")
	target := fs.Int("target", chunker.DefaultTargetSize, "target chunk size for smart chunking")
	maxSize := fs.Int("max", chunker.DefaultMaxSize, "hard maximum chunk size for smart chunking")
	size := fs.Int("size", chunker.DefaultFixedSize, "chunk size for fixed chunking")
	overlap := fs.Int("overlap", 0, "overlap for fixed chunking")
	hints := fs.Bool("hints", true, "include content hints in the manifest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Join(session.Dir(path), "chunks")
	}

	engine := chunker.NewEngine(structure.NewToolAnalyzer(sandbox.NewDefaultRunner()))
	engine.TargetSize = *target
	engine.MaxSize = *maxSize

	var paths []string
	var manifest *chunker.Manifest
	switch *strategy {
	case "smart":
		paths, manifest, err = engine.Smart(ctx, sess.Context.Content, sess.Context.Path, dir, sess.ID)
	case "fixed":
		paths, manifest, err = engine.Fixed(ctx, sess.Context.Content, sess.Context.Path, dir, sess.ID, *size, *overlap, *hints)
	default:
		return fmt.Errorf("unknown strategy %q (want smart or fixed)", *strategy)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d chunks to %s (%s)\n", len(paths), dir, manifest.ChunkingMethod)
	for _, c := range manifest.Chunks {
		fmt.Printf("  %s: chars [%d, %d) lines %d-%d (%s)\n",
			c.ID, c.StartChar, c.EndChar, c.StartLine, c.EndLine, c.SplitReason)
	}
	return nil
}

func cmdIndex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	chunkDir := fs.String("chunks", "", "chunk directory (default: <session dir>/chunks)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	dir := *chunkDir
	if dir == "" {
		dir = filepath.Join(session.Dir(path), "chunks")
	}

	manifest, err := chunker.ReadManifest(dir)
	if err != nil {
		return err
	}

	docs := make([]search.Document, 0, len(manifest.Chunks))
	for _, c := range manifest.Chunks {
		text, err := ingest.ReadTextFile(filepath.Join(dir, c.File), 0)
		if err != nil {
			return fmt.Errorf("chunk file missing for %s: %w", c.ID, err)
		}
		docs = append(docs, search.Document{
			ChunkID:   c.ID,
			SessionID: sess.ID,
			File:      c.File,
			Format:    c.Format,
			StartChar: c.StartChar,
			EndChar:   c.EndChar,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Preview:   c.Preview,
			Text:      text,
		})
	}

	dbPath := filepath.Join(session.Dir(path), chunkDBName)
	store, err := search.NewChunkStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// A new chunking run supersedes the previous one entirely.
	if _, err := store.DeleteSession(ctx, sess.ID); err != nil {
		return err
	}
	if err := store.Upsert(ctx, docs); err != nil {
		return err
	}

	index, err := search.OpenIndex(dbPath)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.IndexDocs(docs); err != nil {
		return err
	}

	fmt.Printf("Indexed %d chunks from %s\n", len(docs), dir)
	return nil
}

func cmdSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	query := fs.String("query", "", "keyword query")
	k := fs.Int("k", 10, "maximum hits")
	raw := fs.Bool("raw", false, "print hits directly instead of storing a handle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *query == "" {
		return fmt.Errorf("missing required -query flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	dbPath := filepath.Join(session.Dir(path), chunkDBName)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no index found; run: ravel index -state %s", path)
	}

	index, err := search.OpenIndex(dbPath)
	if err != nil {
		return err
	}
	defer index.Close()

	hits, err := index.Search(*query, sess.ID, *k)
	if err != nil {
		return err
	}
	if *raw && len(hits) == 0 {
		fmt.Println("No hits.")
		return nil
	}

	store, err := search.NewChunkStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	items := make([]any, 0, len(hits))
	for _, hit := range hits {
		item := map[string]any{
			"chunk_id": hit.ChunkID,
			"score":    hit.Score,
		}
		if doc, err := store.Get(ctx, hit.ChunkID); err == nil && doc != nil {
			item["file"] = doc.File
			item["start_char"] = doc.StartChar
			item["end_char"] = doc.EndChar
			item["start_line"] = doc.StartLine
			item["end_line"] = doc.EndLine
			item["snippet"] = ingest.Truncate(doc.Preview, 200)
		}
		items = append(items, item)
	}

	if *raw {
		for i, item := range items {
			m := item.(map[string]any)
			fmt.Printf("%d. %s (score %.3f)\n", i+1, m["chunk_id"], m["score"])
			if file, ok := m["file"]; ok {
				fmt.Printf("   %s chars [%v, %v) lines %v-%v\n", file, m["start_char"], m["end_char"], m["start_line"], m["end_line"])
			}
			if snippet, ok := m["snippet"].(string); ok && snippet != "" {
				fmt.Printf("   %s\n", snippet)
			}
		}
		return nil
	}

	reg := handle.NewRegistry(sess)
	stub := reg.Store("search", items)
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Println(stub)
	return nil
}
