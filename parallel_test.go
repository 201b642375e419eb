package encryptfs

import (
	"errors"
	"testing"
)

func TestRunBlockJobsSequentialBelowThreshold(t *testing.T) {
	cfg := ParallelConfig{Enabled: true, MaxWorkers: 4, MinBlocksForParallel: 100}
	jobs := make([]blockJob, 3)
	for i := range jobs {
		jobs[i] = blockJob{index: uint64(i), in: []byte{byte(i)}}
	}

	err := runBlockJobs(cfg, jobs, func(j *blockJob) error {
		j.out = append([]byte(nil), j.in[0]+1)
		return nil
	})
	if err != nil {
		t.Fatalf("runBlockJobs failed: %v", err)
	}
	for i, j := range jobs {
		if j.out[0] != byte(i)+1 {
			t.Errorf("job %d: out = %d, want %d", i, j.out[0], i+1)
		}
	}
}

func TestRunBlockJobsParallel(t *testing.T) {
	cfg := ParallelConfig{Enabled: true, MaxWorkers: 8, MinBlocksForParallel: 2}
	jobs := make([]blockJob, 50)
	for i := range jobs {
		jobs[i] = blockJob{index: uint64(i), in: []byte{byte(i)}}
	}

	err := runBlockJobs(cfg, jobs, func(j *blockJob) error {
		j.out = append([]byte(nil), j.in[0]*2)
		return nil
	})
	if err != nil {
		t.Fatalf("runBlockJobs failed: %v", err)
	}
	for i, j := range jobs {
		if j.out[0] != byte(i)*2 {
			t.Errorf("job %d: out = %d, want %d", i, j.out[0], i*2)
		}
	}
}

func TestRunBlockJobsPropagatesError(t *testing.T) {
	cfg := DefaultParallelConfig()
	jobs := make([]blockJob, 20)
	for i := range jobs {
		jobs[i] = blockJob{index: uint64(i)}
	}
	sentinel := errors.New("boom")

	err := runBlockJobs(cfg, jobs, func(j *blockJob) error {
		if j.index == 5 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

func TestParallelConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ParallelConfig
		ok   bool
	}{
		{"disabled skips checks", ParallelConfig{Enabled: false, MaxWorkers: -1}, true},
		{"valid", ParallelConfig{Enabled: true, MaxWorkers: 4, MinBlocksForParallel: 4}, true},
		{"negative workers", ParallelConfig{Enabled: true, MaxWorkers: -1, MinBlocksForParallel: 4}, false},
		{"too many workers", ParallelConfig{Enabled: true, MaxWorkers: 2000, MinBlocksForParallel: 4}, false},
		{"zero min blocks", ParallelConfig{Enabled: true, MaxWorkers: 4, MinBlocksForParallel: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
