package xbulkhead_test

import (
	"context"
	"fmt"

	"github.com/faultline/faultline/pkg/resilience/xbulkhead"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

func ExampleNewStrategy() {
	s, err := xbulkhead.NewStrategy(4, 8)
	if err != nil {
		panic(err)
	}

	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		return "processed", nil
	}, ec)
	if err != nil {
		panic(err)
	}

	fmt.Println(value)
	// Output:
	// processed
}
