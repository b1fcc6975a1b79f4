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
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCollectsEveryFailure(t *testing.T) {
	g := NewGroup[int]()
	g.SetLimit(2)

	var active, peak int32
	for i := 0; i < 10; i++ {
		g.Go(i, func(n int) error {
			cur := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			defer atomic.AddInt32(&active, -1)
			if n%3 == 0 {
				return errors.New("odd one out")
			}
			return nil
		})
	}
	results := g.Wait()
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, 0, r.Task%3)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestGroupWithoutLimit(t *testing.T) {
	g := NewGroup[string]()
	g.Go("a", func(string) error { return nil })
	assert.Empty(t, g.Wait())
}
