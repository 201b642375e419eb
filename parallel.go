package encryptfs

import (
	"fmt"
	"runtime"
	"sync"
)

// ParallelConfig controls parallel block processing
type ParallelConfig struct {
	// Enabled enables parallel block processing
	Enabled bool

	// MaxWorkers is the maximum number of worker goroutines
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int

	// MinBlocksForParallel is the minimum number of blocks to use parallel processing
	// Below this threshold, sequential processing is used
	// Defaults to 4
	MinBlocksForParallel int
}

// Validate checks if the parallel configuration is valid
func (p *ParallelConfig) Validate() error {
	if !p.Enabled {
		return nil // Nothing to validate if disabled
	}

	if p.MaxWorkers < 0 {
		return newErr(Invalid, "ParallelConfig.Validate", "", fmt.Errorf("parallel max workers cannot be negative"))
	}
	if p.MaxWorkers > 1024 {
		return newErr(Invalid, "ParallelConfig.Validate", "", fmt.Errorf("parallel max workers must not exceed 1024"))
	}
	if p.MinBlocksForParallel < 1 {
		return newErr(Invalid, "ParallelConfig.Validate", "", fmt.Errorf("parallel min blocks threshold must be at least 1"))
	}

	return nil
}

// DefaultParallelConfig returns the default parallel processing configuration
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:              true,
		MaxWorkers:           runtime.NumCPU(),
		MinBlocksForParallel: 4,
	}
}

// blockJob is one block's worth of encrypt/decrypt work run against
// EncryptedFile: in holds the input (ciphertext payload to decrypt, or
// plaintext payload to encrypt), full reports whether this is a
// whole-block operation (block cipher mode) or a short final block
// (stream mode, or a padded block-mode fallback), and out receives the
// result.
type blockJob struct {
	index uint64
	in    []byte
	full  bool
	out   []byte
}

// runBlockJobs runs fn over jobs, fanned out across cfg.MaxWorkers
// goroutines when there are enough jobs to be worth it, and
// sequentially on the calling goroutine otherwise. It returns the first
// error any job reports; a worker panic is recovered and reported the
// same way.
func runBlockJobs(cfg ParallelConfig, jobs []blockJob, fn func(*blockJob) error) error {
	if len(jobs) == 0 {
		return nil
	}

	numWorkers := cfg.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	if !cfg.Enabled || len(jobs) < cfg.MinBlocksForParallel {
		for i := range jobs {
			if err := fn(&jobs[i]); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	jobChan := make(chan int, len(jobs))
	errChan := make(chan error, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic in block worker: %v", r)
					select {
					case errChan <- err:
					default:
					}
				}
			}()
			for idx := range jobChan {
				if err := fn(&jobs[idx]); err != nil {
					select {
					case errChan <- err:
					default:
					}
					return
				}
			}
		}()
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}
