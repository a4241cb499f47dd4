// Command segctl is a small flag-based CLI for inspecting and advancing
// a segment-set manifest directory, in the spirit of cmd/server/main.go's
// flag-parse-then-log-and-run shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/epokhe/segidx/commit"
	"github.com/epokhe/segidx/discover"
	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/manifest"
	"github.com/epokhe/segidx/segset"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  segctl -dir <index-dir> status\n")
	fmt.Fprintf(os.Stderr, "  segctl -dir <index-dir> -name <seg> -codec <name> -docs <n> add-segment\n")
	os.Exit(1)
}

func main() {
	var (
		dirPath = flag.String("dir", "", "path to the index directory")
		segName = flag.String("name", "", "segment name, for add-segment")
		codec   = flag.String("codec", "CurrentCodec", "codec name, for add-segment")
		docs    = flag.Int("docs", 0, "document count, for add-segment")
	)
	flag.Parse()

	args := flag.Args()
	if *dirPath == "" || len(args) == 0 {
		usage()
	}

	dir, err := fsdir.OpenOrCreate(*dirPath)
	if err != nil {
		log.Fatalf("open directory: %v", err)
	}

	switch args[0] {
	case "status":
		runStatus(dir)
	case "add-segment":
		if *segName == "" {
			usage()
		}
		runAddSegment(dir, *segName, *codec, *docs)
	default:
		usage()
	}
}

func runStatus(dir fsdir.Directory) {
	finder := discover.New(discover.FinderConfig{InfoStream: os.Stderr})
	result, err := finder.Find(context.Background(), dir, "", func(name string) (any, error) {
		return manifest.New(dir).Read(name)
	})
	if err != nil {
		log.Fatalf("find current generation: %v", err)
	}

	set := result.(*segset.Set)
	fmt.Printf("generation=%d version=%d counter=%d segments=%d\n",
		set.LastGeneration, set.VersionNum, set.Counter, set.Len())
	for _, d := range set.Segments() {
		fmt.Printf("  %s\n", d.String())
	}
}

func runAddSegment(dir fsdir.Directory, name, codecName string, docs int) {
	finder := discover.New(discover.FinderConfig{})
	var set *segset.Set

	result, err := finder.Find(context.Background(), dir, "", func(n string) (any, error) {
		return manifest.New(dir).Read(n)
	})
	if err != nil {
		set = segset.New()
		set.UserData = map[string]string{}
	} else {
		set = result.(*segset.Set)
	}

	d := segset.NewDescriptor(fmt.Sprintf("%p", dir), name, codecName, docs, -1, 0, "unknown")
	if err := set.Add(d); err != nil {
		log.Fatalf("add segment: %v", err)
	}
	set.Changed()

	engine := commit.New(dir, set)
	if err := engine.Prepare(); err != nil {
		log.Fatalf("prepare: %v", err)
	}
	if err := engine.Finish(); err != nil {
		if rbErr := engine.Rollback(); rbErr != nil {
			log.Printf("rollback also failed: %v", rbErr)
		}
		log.Fatalf("finish: %v", err)
	}

	log.Printf("committed generation %d with segment %s", set.LastGeneration, name)
}
