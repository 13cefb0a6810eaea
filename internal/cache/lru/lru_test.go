// Copyright 2025 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lru

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxSize = 50

type testData struct {
	Value    int64
	DataSize uint64
}

func (td testData) Size() uint64 {
	return td.DataSize
}

func insertAndAssert(t *testing.T, c *Cache, key string, val ValueType, evicted []int64, wantErr string) {
	t.Helper()
	ret, err := c.Insert(key, val)

	if wantErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, wantErr)
	}
	require.Len(t, ret, len(evicted))
	for i, v := range ret {
		assert.Equal(t, evicted[i], v.(testData).Value)
	}
}

func TestLookUpInEmptyCache(t *testing.T) {
	c := NewCache(maxSize)

	assert.Nil(t, c.LookUp(""))
	assert.Nil(t, c.LookUp("taco"))
}

func TestInsertNilValue(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "taco", nil, nil, InvalidEntryErrorMsg)
}

func TestFillUpToCapacity(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")
	insertAndAssert(t, c, "taco", testData{Value: 26, DataSize: 20}, nil, "")
	insertAndAssert(t, c, "enchilada", testData{Value: 28, DataSize: 26}, nil, "")

	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).Value)
	assert.Equal(t, int64(26), c.LookUp("taco").(testData).Value)
	assert.Equal(t, int64(28), c.LookUp("enchilada").(testData).Value)
	assert.Equal(t, uint64(50), c.Size())
	assert.Equal(t, 3, c.EntryCount())
}

func TestExpiresLeastRecentlyUsed(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")
	insertAndAssert(t, c, "taco", testData{Value: 26, DataSize: 20}, nil, "") // least recent
	insertAndAssert(t, c, "enchilada", testData{Value: 28, DataSize: 26}, nil, "")

	// Promote burrito to most recent.
	require.NotNil(t, c.LookUp("burrito"))

	// Inserting another must evict taco.
	insertAndAssert(t, c, "queso", testData{Value: 34, DataSize: 5}, []int64{26}, "")

	assert.Nil(t, c.LookUp("taco"))
	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).Value)
	assert.Equal(t, int64(28), c.LookUp("enchilada").(testData).Value)
	assert.Equal(t, int64(34), c.LookUp("queso").(testData).Value)
}

func TestOverwriteRebalancesSize(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")
	insertAndAssert(t, c, "taco", testData{Value: 26, DataSize: 20}, nil, "")
	insertAndAssert(t, c, "enchilada", testData{Value: 28, DataSize: 20}, nil, "")
	insertAndAssert(t, c, "burrito", testData{Value: 33, DataSize: 6}, nil, "")

	// Growing the entry forces an eviction.
	insertAndAssert(t, c, "burrito", testData{Value: 33, DataSize: 12}, []int64{26}, "")

	assert.Nil(t, c.LookUp("taco"))
	assert.Equal(t, int64(33), c.LookUp("burrito").(testData).Value)
	assert.Equal(t, int64(28), c.LookUp("enchilada").(testData).Value)
}

func TestMultipleEviction(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")
	insertAndAssert(t, c, "taco", testData{Value: 26, DataSize: 20}, nil, "")
	insertAndAssert(t, c, "enchilada", testData{Value: 28, DataSize: 20}, nil, "")

	insertAndAssert(t, c, "large_data", testData{Value: 33, DataSize: 45}, []int64{23, 26, 28}, "")

	assert.Nil(t, c.LookUp("burrito"))
	assert.Nil(t, c.LookUp("taco"))
	assert.Nil(t, c.LookUp("enchilada"))
	assert.Equal(t, int64(33), c.LookUp("large_data").(testData).Value)
}

func TestEntryLargerThanCache(t *testing.T) {
	c := NewCache(maxSize)

	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")
	insertAndAssert(t, c, "taco", testData{Value: 26, DataSize: maxSize + 1}, nil, InvalidEntrySizeErrorMsg)

	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).Value)
}

func TestErase(t *testing.T) {
	c := NewCache(maxSize)
	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")

	deleted := c.Erase("burrito")

	assert.Equal(t, int64(23), deleted.(testData).Value)
	assert.Nil(t, c.LookUp("burrito"))
	assert.Zero(t, c.Size())

	assert.Nil(t, c.Erase("taco"))
}

func TestUpdateWithoutChangingOrder(t *testing.T) {
	c := NewCache(maxSize)
	insertAndAssert(t, c, "burrito1", testData{Value: 23, DataSize: 10}, nil, "")
	insertAndAssert(t, c, "burrito2", testData{Value: 2, DataSize: 40}, nil, "")

	require.NoError(t, c.UpdateWithoutChangingOrder("burrito1", testData{Value: 7, DataSize: 10}))

	// burrito1 stayed least recent, so the next insert evicts it.
	insertAndAssert(t, c, "burrito3", testData{Value: 3, DataSize: 5}, []int64{7}, "")
}

func TestUpdateErrors(t *testing.T) {
	c := NewCache(maxSize)
	insertAndAssert(t, c, "burrito", testData{Value: 23, DataSize: 4}, nil, "")

	assert.EqualError(t, c.UpdateWithoutChangingOrder("taco", testData{Value: 1, DataSize: 4}), EntryNotExistErrMsg)
	assert.EqualError(t, c.UpdateWithoutChangingOrder("burrito", testData{Value: 1, DataSize: 3}), InvalidUpdateEntrySizeErrorMsg)
}

func TestLookUpWithoutChangingOrder(t *testing.T) {
	c := NewCache(maxSize)
	insertAndAssert(t, c, "burrito1", testData{Value: 23, DataSize: 10}, nil, "")
	insertAndAssert(t, c, "burrito2", testData{Value: 2, DataSize: 40}, nil, "")

	v := c.LookUpWithoutChangingOrder("burrito1")
	require.NotNil(t, v)
	assert.Equal(t, int64(23), v.(testData).Value)
	assert.Nil(t, c.LookUpWithoutChangingOrder("absent"))

	// burrito1 stayed least recent, so the next insert evicts it.
	insertAndAssert(t, c, "burrito3", testData{Value: 3, DataSize: 5}, []int64{23}, "")
}

func TestEraseEntriesWithGivenPrefix(t *testing.T) {
	c := NewCache(maxSize)
	insertAndAssert(t, c, "10:0", testData{Value: 1, DataSize: 5}, nil, "")
	insertAndAssert(t, c, "10:1", testData{Value: 2, DataSize: 5}, nil, "")
	insertAndAssert(t, c, "11:0", testData{Value: 3, DataSize: 5}, nil, "")

	removed := c.EraseEntriesWithGivenPrefix("10:")

	assert.Len(t, removed, 2)
	assert.Nil(t, c.LookUp("10:0"))
	assert.Nil(t, c.LookUp("10:1"))
	assert.NotNil(t, c.LookUp("11:0"))
	assert.Equal(t, uint64(5), c.Size())
}

// Detects races under `-race` if locking is removed from any method.
func TestRaceCondition(t *testing.T) {
	c := NewCache(maxSize)
	const operationCount = 100
	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		for i := 0; i < operationCount; i++ {
			_, err := c.Insert("key", testData{Value: int64(i), DataSize: uint64(rand.Intn(maxSize))})
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < operationCount; i++ {
			c.Erase("key")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < operationCount; i++ {
			c.LookUp("key")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < operationCount; i++ {
			c.LookUpWithoutChangingOrder("key")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < operationCount; i++ {
			_ = c.UpdateWithoutChangingOrder("key", testData{Value: int64(i), DataSize: uint64(rand.Intn(maxSize))})
		}
	}()

	wg.Wait()
}
