// Package parallel splits row loops across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// Chunks returns the [start, end) ranges that split items over at most
// workers goroutines. Every range is non-empty.
func Chunks(items, workers int) [][2]int {
	if items <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items
	}
	size := (items + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for start := 0; start < items; start += size {
		out = append(out, [2]int{start, min(start+size, items)})
	}
	return out
}

// Parallelize runs fn over chunks of [0, items), one goroutine per CPU core,
// and waits for all of them.
//
// ワーカー内のpanicは呼び出し元のゴルーチンで再度panicする。
// 呼び出し側の errors.Recover で捕捉できる。
func Parallelize(items int, fn func(start, end int)) {
	chunks := Chunks(items, runtime.NumCPU())
	if len(chunks) == 0 {
		return
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		panicked interface{}
	)
	for _, c := range chunks {
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { panicked = r })
				}
			}()
			fn(start, end)
		}(c[0], c[1])
	}
	wg.Wait()

	if panicked != nil {
		panic(panicked)
	}
}

// ParallelizeWithThreshold runs fn sequentially over [0, items) unless items
// exceeds threshold.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		if items > 0 {
			fn(0, items)
		}
		return
	}
	Parallelize(items, fn)
}
