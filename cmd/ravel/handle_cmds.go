package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/selimbzr/ravel/internal/handle"
	"github.com/selimbzr/ravel/internal/search"
	"github.com/selimbzr/ravel/internal/session"
)

func cmdGrep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("grep", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	pattern := fs.String("pattern", "", "regular expression")
	maxMatches := fs.Int("max", search.DefaultMaxMatches, "maximum matches to collect")
	window := fs.Int("window", search.DefaultWindow, "snippet context characters")
	ignoreCase := fs.Bool("i", false, "case-insensitive match")
	raw := fs.Bool("raw", false, "print matches as JSON instead of storing a handle")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *pattern == "" {
		return fmt.Errorf("missing required -pattern flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	items, err := search.Grep(sess.Context.Content, *pattern, *maxMatches, *window, *ignoreCase)
	if err != nil {
		return err
	}

	if *raw {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	reg := handle.NewRegistry(sess)
	stub := reg.Store("grep", items)
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Println(stub)
	return nil
}

func cmdHandles(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("handles", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
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
	fmt.Println(handle.NewRegistry(sess).List())
	return nil
}

func cmdExpand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("expand", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	limit := fs.Int("limit", 10, "maximum items to materialize")
	offset := fs.Int("offset", 0, "items to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" {
		return fmt.Errorf("missing required -handle flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	items, err := handle.NewRegistry(sess).Expand(*ref, *limit, *offset)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func cmdCount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" {
		return fmt.Errorf("missing required -handle flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}
	n, err := handle.NewRegistry(sess).Count(*ref)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func cmdFilter(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	pattern := fs.String("pattern", "", "regular expression to keep items by")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" || *pattern == "" {
		return fmt.Errorf("both -handle and -pattern are required")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	reg := handle.NewRegistry(sess)
	stub, err := reg.Filter(*ref, *pattern)
	if err != nil {
		return err
	}
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Println(stub)
	return nil
}

func cmdMapField(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	field := fs.String("field", "", "field to project")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" || *field == "" {
		return fmt.Errorf("both -handle and -field are required")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	reg := handle.NewRegistry(sess)
	stub, err := reg.MapField(*ref, *field)
	if err != nil {
		return err
	}
	if err := session.Save(sess, path); err != nil {
		return err
	}
	fmt.Println(stub)
	return nil
}

func cmdSumField(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sum", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	field := fs.String("field", "", "numeric field to sum")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" || *field == "" {
		return fmt.Errorf("both -handle and -field are required")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}
	total, err := handle.NewRegistry(sess).SumField(*ref, *field)
	if err != nil {
		return err
	}
	fmt.Println(total)
	return nil
}

func cmdDeleteHandle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-handle", flag.ExitOnError)
	statePath := fs.String("state", "", "snapshot path")
	ref := fs.String("handle", "", "handle name or stub")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireState(*statePath)
	if err != nil {
		return err
	}
	if *ref == "" {
		return fmt.Errorf("missing required -handle flag")
	}

	sess, err := session.Load(path)
	if err != nil {
		return err
	}

	deleted := handle.NewRegistry(sess).Delete(*ref)
	if deleted {
		if err := session.Save(sess, path); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", handle.Canonicalize(*ref))
	} else {
		fmt.Printf("No such handle: %s\n", handle.Canonicalize(*ref))
	}
	return nil
}
