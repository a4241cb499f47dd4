package main

import (
	"context"
	"fmt"
	"os"

	"github.com/epokhe/segidx/commit"
	"github.com/epokhe/segidx/discover"
	"github.com/epokhe/segidx/fsdir"
	"github.com/epokhe/segidx/manifest"
	"github.com/epokhe/segidx/segset"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  segidx <dir> status\n")
	fmt.Fprintf(os.Stderr, "  segidx <dir> init\n")
	os.Exit(1)
}

func main() {
	// os.Args[0] is program name; we need at least a directory and an
	// action.
	if len(os.Args) < 3 {
		usage()
	}

	dirPath := os.Args[1]
	action := os.Args[2]

	switch action {
	case "status":
		if len(os.Args) != 3 {
			usage()
		}
		runStatus(dirPath)

	case "init":
		if len(os.Args) != 3 {
			usage()
		}
		runInit(dirPath)

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		usage()
	}
}

// runStatus opens dirPath, locates its current segments_N manifest
// through the full generation-discovery retry loop, and prints a one-
// line summary plus every live segment.
func runStatus(dirPath string) {
	dir, err := fsdir.Open(dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open directory: %v\n", err)
		os.Exit(1)
	}

	finder := discover.New(discover.FinderConfig{})
	codec := manifest.New(dir)
	result, err := finder.Find(context.Background(), dir, "", func(name string) (any, error) {
		return codec.Read(name)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find the current generation: %v\n", err)
		os.Exit(1)
	}

	set := result.(*segset.Set)
	fmt.Printf("generation=%d version=%d counter=%d segments=%d\n",
		set.LastGeneration, set.VersionNum, set.Counter, set.Len())
	for _, d := range set.Segments() {
		fmt.Println(" ", d.String())
	}
}

// runInit creates dirPath if needed and commits an empty generation-1
// manifest, the way a brand new index is born.
func runInit(dirPath string) {
	dir, err := fsdir.OpenOrCreate(dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create directory: %v\n", err)
		os.Exit(1)
	}

	set := segset.New()
	set.UserData = map[string]string{}

	engine := commit.New(dir, set)
	if err := engine.Prepare(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare commit: %v\n", err)
		os.Exit(1)
	}
	if err := engine.Finish(); err != nil {
		if rbErr := engine.Rollback(); rbErr != nil {
			fmt.Fprintf(os.Stderr, "rollback also failed: %v\n", rbErr)
		}
		fmt.Fprintf(os.Stderr, "failed to finish commit: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("initialized empty index at generation %d\n", set.LastGeneration)
}
