// Command mailest-dbtool performs offline maintenance on a mailestd
// index file: compacting stale space out of the bbolt B-tree, or
// taking a consistent backup, without the daemon running.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	bolt "go.etcd.io/bbolt"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	switch os.Args[1] {
	case "compact":
		runCompact(os.Args[2:])
	case "backup":
		runBackup(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mailest-dbtool <compact|backup> [flags]")
	fmt.Fprintln(os.Stderr, "  compact -db PATH [-out PATH]   rewrite PATH into a compacted file")
	fmt.Fprintln(os.Stderr, "  backup  -db PATH -out PATH     copy a consistent snapshot of PATH")
}

func runCompact(args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	dbPath := fs.String("db", "", "index file to compact (required)")
	outPath := fs.String("out", "", "compacted output path (default: <db>.compact)")
	fs.Parse(args)

	if *dbPath == "" {
		log.Fatal("-db is required")
	}
	if *outPath == "" {
		*outPath = *dbPath + ".compact"
	}

	src, err := bolt.Open(*dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("open source index %s: %v", *dbPath, err)
	}
	defer src.Close()

	dst, err := bolt.Open(*outPath, 0600, nil)
	if err != nil {
		log.Fatalf("create compacted index %s: %v", *outPath, err)
	}
	defer dst.Close()

	log.Printf("compacting %s -> %s", *dbPath, *outPath)
	before := fileSize(*dbPath)

	if err := bolt.Compact(dst, src, 0); err != nil {
		log.Fatalf("compact failed: %v", err)
	}

	after := fileSize(*outPath)
	log.Printf("✓ compacted: %d bytes -> %d bytes (%.1f%% of original)",
		before, after, 100*float64(after)/float64(before))
}

func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dbPath := fs.String("db", "", "index file to back up (required)")
	outPath := fs.String("out", "", "backup destination path (required)")
	fs.Parse(args)

	if *dbPath == "" || *outPath == "" {
		log.Fatal("-db and -out are required")
	}

	db, err := bolt.Open(*dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("open index %s: %v", *dbPath, err)
	}
	defer db.Close()

	log.Printf("backing up %s -> %s", *dbPath, *outPath)
	err = db.View(func(tx *bolt.Tx) error {
		f, err := os.OpenFile(*outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		return err
	})
	if err != nil {
		log.Fatalf("backup failed: %v", err)
	}
	log.Printf("✓ backup complete: %d bytes", fileSize(*outPath))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
