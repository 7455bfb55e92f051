// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lookback

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// kernelCache holds specialized kernels keyed by the hash of their
// signature, so identical specializations share one kernel and its block
// scratch pools.
type kernelCache struct {
	mu      sync.Mutex
	kernels map[uint64]any
}

var kernels = &kernelCache{kernels: make(map[uint64]any)}

// lookup returns the kernel cached under sig, building it on a miss.
func lookup[T any](c *kernelCache, sig string, build func() T) T {
	h := xxhash.Sum64String(sig)
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[h].(T); ok {
		return k
	}
	k := build()
	c.kernels[h] = k
	return k
}

// len returns the number of cached kernels.
func (c *kernelCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kernels)
}

func typeName[T any]() string {
	t := reflect.TypeFor[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// signature identifies a kernel by kind, element types, direction
// and policy.
func signature(kind string, p Policy, parts ...string) string {
	var sb strings.Builder
	sb.WriteString(kind)
	for _, s := range parts {
		sb.WriteByte('/')
		sb.WriteString(s)
	}
	fmt.Fprintf(&sb, "/%+v", p)
	return sb.String()
}
