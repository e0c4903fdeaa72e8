package main

import (
	"fmt"
	"os"

	"github.com/ad/go-workshop-progress/internal/cli"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
