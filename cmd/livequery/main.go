package main

import (
	"log"

	"github.com/perangel/livequery/internal/cli"
)

func main() {
	if err := cli.LiveQueryCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
