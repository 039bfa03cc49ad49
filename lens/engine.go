package lens

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"
)

const acceptDiffLogLines = 40

// Config holds settings and state for a ReductionEngine.
type Config struct {
	InputFile                        string
	TestCommand                      []string
	Passes                           []string
	CacheDir                         string
	CacheMB                          int
	ReportJsonFile, ReportChartsFile string
	Parallelism                      int
	MaxSweeps                        int
	KeepWorkDirs                     bool
	// Single-shot mode fields, used by the CLI instead of the engine
	TransName string
	Counter   int
	Query     bool
	// Custom flags support - all stored as strings for ease of use
	CustomFlags map[string]string
}

// ReductionEngine drives transformation passes over the input file, judging
// each candidate variant with the interestingness command and committing the
// first accepted one. It repeats passes until a full sweep commits nothing.
type ReductionEngine struct {
	config   Config
	runID    string
	storage  Storage
	hotCache *ristretto.Cache[string, bool]
	stats    map[string]*PassStats
	history  []IterationMetric
}

// NewReductionEngine validates config and prepares the engine, opening the
// attempt cache. Callers must invoke Run exactly once; Run closes the cache.
func NewReductionEngine(config Config) (*ReductionEngine, error) {
	if config.InputFile == "" {
		return nil, errors.New("input file required")
	} else if !FileExists(config.InputFile) {
		return nil, fmt.Errorf("input file not found: %s", config.InputFile)
	} else if len(config.TestCommand) == 0 {
		return nil, errors.New("interestingness command required")
	}
	if len(config.Passes) == 0 {
		config.Passes = TransformationNames()
	}
	for _, pass := range config.Passes {
		if _, ok := Lookup(pass); !ok {
			return nil, fmt.Errorf("unknown transformation %q (known: %v)", pass, TransformationNames())
		}
	}
	if config.Parallelism < 1 {
		config.Parallelism = runtime.NumCPU()
	}
	if config.MaxSweeps < 1 {
		config.MaxSweeps = 100
	}
	if config.CacheMB < 16 {
		config.CacheMB = 16
	}

	var storage Storage
	if config.CacheDir == "" {
		storage = NewMemStorage()
	} else {
		var err error
		if storage, err = NewBadgerStorage(config.CacheDir, config.CacheMB); err != nil {
			return nil, err
		}
	}
	// cache is shared across runs, scope keys to this input file
	storage = ScopeStorage(storage, filepath.Base(config.InputFile))

	hotCache, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: 1_000_000,
		MaxCost:     int64(config.CacheMB) << 19, // half the budget, rest goes to badger
		BufferItems: 64,
	})
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("verdict cache init failure: %w", err)
	}

	engine := &ReductionEngine{
		config:   config,
		runID:    uuid.NewString(),
		storage:  storage,
		hotCache: hotCache,
		stats:    make(map[string]*PassStats),
	}
	for _, pass := range config.Passes {
		engine.stats[pass] = &PassStats{Name: pass}
	}
	return engine, nil
}

// Run executes the reduction to fixpoint and writes the reduced source back to
// the input file. The original input is preserved next to it as a .orig copy.
func (e *ReductionEngine) Run() (*ReportMetrics, error) {
	defer e.storage.Close()
	defer e.hotCache.Close()
	startTime := time.Now()

	source, err := os.ReadFile(e.config.InputFile)
	if err != nil {
		return nil, fmt.Errorf("input read failure: %w", err)
	}
	if prog, err := ParseC(e.config.InputFile, source); err != nil {
		return nil, err
	} else if prog.HasSyntaxError() {
		log.Printf("WARN: input %s has syntax errors, reduction may be limited", e.config.InputFile)
	}

	log.Printf("Verifying input is interesting (%d bytes)...", len(source))
	interesting, testOutput, err := e.judgeVariant(source)
	if err != nil {
		return nil, err
	} else if !interesting {
		return nil, fmt.Errorf("input does not pass the interestingness command:\n%s",
			limitStringLines(string(testOutput), acceptDiffLogLines, false))
	}

	if _, err := BackupFile(e.config.InputFile); err != nil {
		return nil, err
	}

	current := source
	for sweep := 1; sweep <= e.config.MaxSweeps; sweep++ {
		log.Printf("Sweep %d (current size %d bytes)", sweep, len(current))
		sweepAccepts := 0
		for _, pass := range e.config.Passes {
			reduced, accepts, err := e.runPass(pass, current)
			if err != nil {
				return nil, err
			}
			current = reduced
			sweepAccepts += accepts
		}
		if sweepAccepts == 0 {
			log.Printf("Fixpoint reached after sweep %d", sweep)
			break
		}
	}

	if err := os.WriteFile(e.config.InputFile, current, 0o644); err != nil {
		return nil, fmt.Errorf("reduced output write failure: %w", err)
	}
	log.Printf("Reduction complete: %d -> %d bytes (%d accepted steps) in %s",
		len(source), len(current), len(e.history), time.Since(startTime).Round(time.Millisecond))

	metrics := e.buildMetrics(startTime, len(source), len(current))
	if e.config.ReportJsonFile != "" || e.config.ReportChartsFile != "" {
		if err := WriteReportFiles(e.config.ReportJsonFile, e.config.ReportChartsFile, metrics); err != nil {
			return metrics, err
		}
	}
	return metrics, nil
}

// runPass applies one transformation over all its instances in source,
// committing each accepted candidate before continuing. Candidates are judged
// in parallel batches; within a batch the lowest accepted ordinal wins so the
// result is independent of scheduling.
func (e *ReductionEngine) runPass(passName string, source []byte) ([]byte, int, error) {
	stats := e.stats[passName]
	current := source
	accepts := 0
	searchStart := time.Now()
	for ordinal := 1; ; {
		results, err := e.judgeBatch(passName, current, ordinal)
		if err != nil {
			return nil, accepts, err
		} else if len(results) == 0 {
			break // ordinal past the instance count, pass exhausted
		}

		committed := false
		for _, res := range results { // ordered by ordinal
			stats.Attempts++
			if res.cached {
				stats.CacheHits++
			}
			switch {
			case res.outcome == OutcomeFailed:
				stats.Failures++
				log.Printf(ErrorLogPrefix+"%s instance %d rewrite failure: %v", passName, res.ordinal, res.err)
			case res.outcome == OutcomeOutOfRange:
				stats.OutOfRange++
			case res.interesting:
				stats.Accepts++
				accepts++
				e.logAcceptedStep(passName, res.ordinal, current, res.text)
				e.history = append(e.history, IterationMetric{
					Index:      len(e.history) + 1,
					Pass:       passName,
					Ordinal:    res.ordinal,
					Size:       len(res.text),
					DurationMs: time.Since(searchStart).Milliseconds(),
				})
				current = res.text
				searchStart = time.Now()
				committed = true
			}
			if committed {
				break // instance numbering shifted, later batch results are stale
			}
		}
		if committed {
			// the committed instance is gone, its ordinal now names the next one
			ordinal = results[0].ordinal
		} else {
			ordinal += len(results)
		}
	}
	return current, accepts, nil
}

type candidateResult struct {
	ordinal     int
	outcome     OutcomeKind
	text        []byte
	interesting bool
	cached      bool
	err         error
}

// judgeBatch generates and judges up to Parallelism candidates starting at
// ordinal. Results come back sorted by ordinal; an empty slice means the first
// ordinal is already out of range.
func (e *ReductionEngine) judgeBatch(passName string, source []byte, ordinal int) ([]candidateResult, error) {
	results := make([]candidateResult, e.config.Parallelism)
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(e.config.Parallelism)
	for i := range results {
		errGroup.Go(func() error {
			res := &results[i]
			res.ordinal = ordinal + i

			trans, _ := Lookup(passName) // validated in NewReductionEngine
			prog, err := ParseC(e.config.InputFile, source)
			if err != nil {
				return err
			}
			outcome := trans.Apply(prog, res.ordinal)
			res.outcome = outcome.Kind
			res.err = outcome.Err
			if outcome.Kind != OutcomeCommitted {
				return nil
			}
			res.text = outcome.Text
			res.interesting, res.cached, err = e.judgeVariantCached(passName, res.ordinal, outcome.Text)
			return err
		})
	}
	if err := errGroup.Wait(); err != nil {
		return nil, err
	}

	// trim trailing out-of-range entries so the caller can detect exhaustion
	end := len(results)
	for end > 0 && results[end-1].outcome == OutcomeOutOfRange {
		end--
	}
	if end == len(results) {
		return results, nil
	}
	// everything past the first out-of-range ordinal is also out of range
	return results[:end], nil
}

// judgeVariantCached checks the verdict caches before running the
// interestingness command, and records fresh verdicts for future runs.
func (e *ReductionEngine) judgeVariantCached(passName string, ordinal int, text []byte) (bool, bool, error) {
	key := VariantKey(text)
	if verdict, ok := e.hotCache.Get(key); ok {
		return verdict, true, nil
	}
	if blob, found, err := e.storage.Get(key); err != nil {
		log.Printf(ErrorLogPrefix+"attempt cache read failure: %v", err)
	} else if found {
		if record, err := DecodeAttemptRecord(blob); err != nil {
			log.Printf(ErrorLogPrefix+"attempt cache decode failure: %v", err)
		} else {
			e.hotCache.Set(key, record.Interesting, 1)
			return record.Interesting, true, nil
		}
	}

	judgeStart := time.Now()
	interesting, _, err := e.judgeVariant(text)
	if err != nil {
		return false, false, err
	}

	e.hotCache.Set(key, interesting, 1)
	record := &AttemptRecord{
		RunID:       e.runID,
		Pass:        passName,
		Ordinal:     ordinal,
		Size:        len(text),
		Interesting: interesting,
		DurationMs:  time.Since(judgeStart).Milliseconds(),
	}
	if blob, err := record.Encode(); err != nil {
		log.Printf(ErrorLogPrefix+"attempt record encode failure: %v", err)
	} else if err := e.storage.Put(key, blob); err != nil {
		log.Printf(ErrorLogPrefix+"attempt cache write failure: %v", err)
	}
	return interesting, false, nil
}

// judgeVariant writes the candidate into a fresh work dir and runs the
// interestingness command against it.
func (e *ReductionEngine) judgeVariant(text []byte) (bool, []byte, error) {
	workDir, err := os.MkdirTemp("", "redlens-*")
	if err != nil {
		return false, nil, fmt.Errorf("work dir create failure: %w", err)
	}
	if !e.config.KeepWorkDirs {
		defer func() { _ = os.RemoveAll(workDir) }()
	}

	candidateFile := filepath.Join(workDir, filepath.Base(e.config.InputFile))
	if err := os.WriteFile(candidateFile, text, 0o644); err != nil {
		return false, nil, fmt.Errorf("candidate write failure: %w", err)
	}
	return RunCapturedInterestingnessTest(workDir, candidateFile, e.config.TestCommand)
}

func (e *ReductionEngine) logAcceptedStep(passName string, ordinal int, before, after []byte) {
	diff := difflib.UnifiedDiff{
		A:       difflib.SplitLines(string(before)),
		B:       difflib.SplitLines(string(after)),
		Context: 2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil || text == "" {
		log.Printf("Accepted %s instance %d (%d -> %d bytes)", passName, ordinal, len(before), len(after))
		return
	}
	log.Printf("Accepted %s instance %d (%d -> %d bytes):\n%s",
		passName, ordinal, len(before), len(after), limitStringLines(text, acceptDiffLogLines, true))
}

func (e *ReductionEngine) buildMetrics(startTime time.Time, startSize, finalSize int) *ReportMetrics {
	metrics := &ReportMetrics{
		RunID:      e.runID,
		InputFile:  e.config.InputFile,
		StartSize:  startSize,
		FinalSize:  finalSize,
		DurationMs: time.Since(startTime).Milliseconds(),
		Iterations: e.history,
	}
	for _, pass := range e.config.Passes { // config order, not map order
		metrics.Passes = append(metrics.Passes, *e.stats[pass])
	}
	return metrics
}
