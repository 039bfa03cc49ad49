package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/ShrinkLens/go-reduce-lens/lens"
	"github.com/ShrinkLens/go-reduce-lens/lens/cmd"
)

const pprofDebug = false

func main() {
	log.SetFlags(log.LstdFlags)

	if pprofDebug {
		go func() {
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Printf("pprof server failure: %v", err)
			}
		}()
	}

	config, err := cmd.ParseFlags(nil) // No custom flags for standard redlens
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}

	if config.TransName != "" {
		runSingle(config)
		return
	}

	engine, err := lens.NewReductionEngine(*config)
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	if _, err := engine.Run(); err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
}

// runSingle handles -trans mode: one counted rewrite, or a -query instance
// count, against the file in place.
func runSingle(config *lens.Config) {
	if config.Query {
		count, err := lens.CountSingle(config.InputFile, config.TransName)
		if err != nil {
			log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
		}
		fmt.Println(count)
		return
	}

	outcome, err := lens.ApplySingle(config.InputFile, config.TransName, config.Counter)
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
	switch outcome.Kind {
	case lens.OutcomeCommitted:
		log.Printf("Rewrote %s instance %d of %d in %s",
			config.TransName, config.Counter, outcome.Instances, config.InputFile)
	case lens.OutcomeOutOfRange:
		log.Fatalf("%sinstance %d out of range, %s has %d instances",
			lens.ErrorLogPrefix, config.Counter, config.InputFile, outcome.Instances)
	case lens.OutcomeFailed:
		log.Fatalf("%srewrite failure: %v", lens.ErrorLogPrefix, outcome.Err)
	}
}
