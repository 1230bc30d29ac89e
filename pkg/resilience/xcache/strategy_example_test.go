package xcache_test

import (
	"context"
	"fmt"
	"time"

	"github.com/faultline/faultline/pkg/resilience/xcache"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

func ExampleNewStrategy() {
	provider := newMemoryProviderStub()

	s, err := xcache.NewStrategy[string](provider, time.Minute)
	if err != nil {
		panic(err)
	}

	ec := xresilience.AcquireContext(context.Background())
	ec.OperationKey = "product:123"
	defer ec.Release()

	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		return "product data", nil
	}, ec)
	if err != nil {
		panic(err)
	}

	fmt.Println(value)
	// Output:
	// product data
}
