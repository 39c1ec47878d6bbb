// Command tonk is a small CLI demonstrating the public facade: create a
// store on disk, write and read a few documents through the virtual file
// system, then pack the whole tree into a portable bundle.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tonk-sync/tonk/internal/bundle"
	"github.com/tonk-sync/tonk/pkg/tonk"
)

func main() {
	ctx := context.Background()

	appDataDir := os.Getenv("XDG_DATA_HOME")
	if appDataDir == "" {
		home, _ := os.UserHomeDir()
		appDataDir = filepath.Join(home, ".local", "share", "tonk")
	}
	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	tk, err := tonk.New(ctx, tonk.Options{DataDir: appDataDir})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Tonk store opened at", appDataDir)
	fmt.Println("Peer ID:", tk.PeerID())

	if err := tk.CreateDirectory(ctx, "/notes"); err != nil {
		log.Fatal(err)
	}
	if _, err := tk.CreateDocument(ctx, "/notes/todo.txt", "buy milk"); err != nil {
		log.Fatal(err)
	}

	value, ok, err := tk.ReadDocument(ctx, "/notes/todo.txt")
	if err != nil {
		log.Fatal(err)
	}
	if ok {
		fmt.Printf("/notes/todo.txt = %v\n", value)
	}

	names, err := tk.List(ctx, "/notes")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("/notes contains:", names)

	bundlePath := filepath.Join(appDataDir, "export.tonk")
	out, err := os.Create(bundlePath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	if err := tk.Pack(ctx, out, bundle.PackOptions{
		NetworkURIs: []string{"ws://localhost:8081/sync"},
		Passphrase:  os.Getenv("TONK_BUNDLE_PASSPHRASE"),
	}); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Wrote bundle to", bundlePath)
}
