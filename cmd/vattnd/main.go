package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"vattn/internal/vmm"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		if vmm.IsFatal(err) {
			log.Fatal().Err(err).Msg("paging core failed")
		}
		fmt.Fprintln(os.Stderr, "vattnd:", err)
		os.Exit(1)
	}
}
