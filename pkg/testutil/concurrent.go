package testutil

import (
	"context"
	"sync"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes int
	Errors    []error
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int {
	return r.Successes + len(r.Errors)
}

// RunConcurrent runs fn in n goroutines released at the same moment and
// collects the results.
func RunConcurrent(ctx context.Context, n int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
		res   = &ConcurrentResult{}
	)
	for i := range n {
		wg.Go(func() {
			<-start
			err := fn(ctx, i)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors = append(res.Errors, err)
				return
			}
			res.Successes++
		})
	}
	close(start)
	wg.Wait()
	return res
}
