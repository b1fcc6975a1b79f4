/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package errconcurrent

import (
	"fmt"
	"sync"
)

type token struct{}

// A Group runs a function over many items with bounded parallelism and,
// unlike errgroup, keeps going after a failure and reports every failed item
type Group[T any] struct {
	wg sync.WaitGroup

	sem chan token

	mu sync.Mutex

	results []Result[T]
}

// A Result is one failed item of the group
type Result[T any] struct {
	Task T
	Err  error
}

func NewGroup[T any]() *Group[T] {
	return &Group[T]{}
}

func (g *Group[T]) done() {
	if g.sem != nil {
		<-g.sem
	}
	g.wg.Done()
}

// Wait blocks until every function passed to Go returned and returns the failures
func (g *Group[T]) Wait() []Result[T] {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.results
}

// Go calls f(t) in a new goroutine, blocking while the group is at its limit
func (g *Group[T]) Go(t T, f func(t T) error) {
	if g.sem != nil {
		g.sem <- token{}
	}

	g.wg.Add(1)
	go func(t T) {
		defer g.done()

		if err := f(t); err != nil {
			g.mu.Lock()
			g.results = append(g.results, Result[T]{
				Task: t,
				Err:  err,
			})
			g.mu.Unlock()
		}
	}(t)
}

// SetLimit limits the number of active goroutines in this group to at most n.
// A negative value indicates no limit. The limit must not be modified while
// any goroutines in the group are active.
func (g *Group[T]) SetLimit(n int) {
	if n < 0 {
		g.sem = nil
		return
	}
	if len(g.sem) != 0 {
		panic(fmt.Errorf("errconcurrent: modify limit while %v goroutines in the group are still active", len(g.sem)))
	}
	g.sem = make(chan token, n)
}
