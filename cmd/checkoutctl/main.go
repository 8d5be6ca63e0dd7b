package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-realtime-checkout/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
