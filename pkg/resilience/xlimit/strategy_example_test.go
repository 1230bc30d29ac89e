package xlimit_test

import (
	"context"
	"fmt"

	"github.com/faultline/faultline/pkg/resilience/xlimit"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

func ExampleNewStrategy() {
	limiter, err := xlimit.NewLocal()
	if err != nil {
		panic(err)
	}
	defer limiter.Close(context.Background())

	s, err := xlimit.NewStrategy(limiter)
	if err != nil {
		panic(err)
	}

	ec := xresilience.AcquireContext(context.Background())
	defer ec.Release()

	value, err := s.Execute(func(_ *xresilience.ExecutionContext) (any, error) {
		return "handled", nil
	}, ec)
	if err != nil {
		panic(err)
	}

	fmt.Println(value)
	// Output:
	// handled
}
