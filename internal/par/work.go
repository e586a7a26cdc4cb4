// Package par runs independent jobs with bounded parallelism.
package par

import (
	"errors"
	"sync"
)

// Work is a set of items, each processed at most once. Items must be valid
// map keys.
type Work[T comparable] struct {
	f       func(T) error
	running int

	mu      sync.Mutex
	index   map[T]int // position of each item in add order
	todo    []T       // items yet to be run, oldest first
	errs    []error   // result per item, in add order
	wait    sync.Cond // wait when todo is empty
	waiting int       // number of runners waiting for todo
}

// Add adds item to the work set if it hasn't already been added.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	if w.index == nil {
		w.index = make(map[T]int)
	}
	if _, ok := w.index[item]; !ok {
		w.index[item] = len(w.errs)
		w.errs = append(w.errs, nil)
		w.todo = append(w.todo, item)
		if w.waiting > 0 {
			w.wait.Signal()
		}
	}
	w.mu.Unlock()
}

// Len reports how many distinct items were added.
func (w *Work[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.errs)
}

// Do runs f on every item with at most n calls in flight. Items start in
// the order they were added; f may add more items. A failing item does not
// stop the others. Do returns the errors joined in add order, or nil.
// Do should only be called once on a given Work.
func (w *Work[T]) Do(n int, f func(item T) error) error {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	if w.running >= 1 {
		panic("par.Work.Do: already called Do")
	}

	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner()
		}()
	}
	w.runner()
	wg.Wait()

	return errors.Join(w.errs...)
}

// Errors returns the per-item results of Do in add order.
func (w *Work[T]) Errors() []error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]error(nil), w.errs...)
}

// runner executes work until nothing is left and every runner is idle.
func (w *Work[T]) runner() {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}
		item := w.todo[0]
		w.todo = w.todo[1:]
		w.mu.Unlock()

		err := w.f(item)

		w.mu.Lock()
		w.errs[w.index[item]] = err
		w.mu.Unlock()
	}
}
