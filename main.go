package main

import (
	"log"

	"github.com/opsarka/samradar/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
