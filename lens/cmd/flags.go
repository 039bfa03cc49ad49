package cmd

import (
	"errors"
	"flag"
	"strconv"
	"strings"

	"github.com/ShrinkLens/go-reduce-lens/lens"
)

// CustomFlag defines a custom CLI option.
type CustomFlag struct {
	Name         string
	DefaultValue any
	Usage        string
	Type         string // "string", "int", "bool"
}

// ParseFlags builds Config from standard and custom flags.
func ParseFlags(customFlags []CustomFlag) (*lens.Config, error) {
	config := &lens.Config{CustomFlags: make(map[string]string)}

	// Define all standard flags
	inputFile := flag.String("file", "", "Path to the C source file to reduce")
	testCommand := flag.String("test", "", "Interestingness command, exit 0 keeps a candidate (e.g., \"sh check.sh\")")
	transName := flag.String("trans", "", "Apply a single transformation instead of running the reduction loop")
	counter := flag.Int("counter", 1, "Instance number to rewrite in single transformation mode")
	query := flag.Bool("query", false, "Print the instance count for -trans instead of rewriting")
	passes := flag.String("passes", "", "Comma-separated transformation passes to run (default all registered)")
	cacheDir := flag.String("cachedir", "", "Directory for the persistent attempt cache (default in-memory only)")
	cacheMB := flag.Int("cachemb", 200, "Cache memory budget in MB")
	reportJsonFile := flag.String("json", "redreport.json", "File to output reduction details")
	reportChartsFile := flag.String("charts", "redreport.png", "File to output reduction overview chart image")
	parallelism := flag.Int("parallel", 0, "Candidate evaluations to run concurrently (default NumCPU)")
	maxSweeps := flag.Int("maxsweeps", 100, "Maximum pass sweeps before giving up on a fixpoint")
	keepWorkDirs := flag.Bool("keepwork", false, "Keep candidate work directories for debugging")

	// Define custom flags
	customPtrs := make(map[string]interface{})
	for _, cf := range customFlags {
		switch cf.Type {
		case "string":
			customPtrs[cf.Name] = flag.String(cf.Name, cf.DefaultValue.(string), cf.Usage)
		case "int":
			customPtrs[cf.Name] = flag.Int(cf.Name, cf.DefaultValue.(int), cf.Usage)
		case "bool":
			customPtrs[cf.Name] = flag.Bool(cf.Name, cf.DefaultValue.(bool), cf.Usage)
		}
	}

	flag.Parse()

	// Validate standard flags
	if *inputFile == "" {
		return nil, errors.New("reduction Usage: -file crash.c -test \"sh check.sh\"\nsingle transformation Usage: -file crash.c -trans simplify-callexpr -counter 2\nquery Usage: -file crash.c -trans simplify-callexpr -query")
	} else if *transName == "" && *testCommand == "" {
		return nil, errors.New("-test is required unless -trans selects single transformation mode")
	} else if *query && *transName == "" {
		return nil, errors.New("-query requires -trans")
	}

	// Populate config
	config.InputFile = *inputFile
	config.TestCommand = splitCommand(*testCommand)
	config.TransName = *transName
	config.Counter = *counter
	config.Query = *query
	config.Passes = splitCommaList(*passes)
	config.CacheDir = *cacheDir
	config.CacheMB = *cacheMB
	config.ReportJsonFile = *reportJsonFile
	config.ReportChartsFile = *reportChartsFile
	config.Parallelism = *parallelism
	config.MaxSweeps = *maxSweeps
	config.KeepWorkDirs = *keepWorkDirs

	// Populate custom flags - convert all to strings for ease of use
	for name, ptr := range customPtrs {
		switch v := ptr.(type) {
		case *string:
			config.CustomFlags[name] = *v
		case *int:
			config.CustomFlags[name] = strconv.Itoa(*v)
		case *bool:
			config.CustomFlags[name] = strconv.FormatBool(*v)
		}
	}

	return config, nil
}

// splitCommand breaks the -test value on whitespace. Commands needing shell
// quoting should be wrapped in a script and invoked as "sh script.sh".
func splitCommand(s string) []string {
	return strings.Fields(s)
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
