// Package batch runs analysis operations across many inputs concurrently.
//
// Every input is resolved into its own snapshot and analyzed independently;
// outcomes come back in input order regardless of which worker finished
// first. Inputs never share state, so a failure in one cannot corrupt
// another.
package batch

import (
	"context"
	"sync"

	"tabstat/internal/analysis"
	"tabstat/internal/source"
)

// Input names one dataset to analyze.
type Input struct {
	// Name labels the outcome; empty derives a label from the request.
	Name string

	Request source.Request
}

// Outcome is the result of one input: the results of each requested
// operation in order, or the first error hit. A load failure leaves
// Results nil; an operation failure keeps the results that preceded it.
type Outcome struct {
	Name    string
	Results []analysis.Result
	Err     error
}

// DefaultWorkers bounds concurrency when the caller does not choose.
const DefaultWorkers = 4

// Run analyzes every input with every operation, at most workers inputs in
// flight at once. workers <= 0 picks DefaultWorkers. The returned slice
// matches inputs element for element.
//
// Cancellation stops handing out new inputs; outcomes not yet started carry
// the context error.
func Run(ctx context.Context, res *source.Resolver, inputs []Input, ops []analysis.Request, workers int) []Outcome {
	out := make([]Outcome, len(inputs))
	if len(inputs) == 0 {
		return out
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan int)
	completed := make([]bool, len(inputs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = runOne(ctx, res, inputs[idx], ops)
				completed[idx] = true
			}
		}()
	}

	// Producer. Closing jobs releases the workers; cancellation stops
	// feeding but lets in-flight inputs finish.
	go func() {
		defer close(jobs)
		for i := range inputs {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()

	for i := range out {
		if !completed[i] {
			out[i] = Outcome{Name: inputName(inputs[i]), Err: ctx.Err()}
		}
	}
	return out
}

func runOne(ctx context.Context, res *source.Resolver, in Input, ops []analysis.Request) Outcome {
	o := Outcome{Name: inputName(in)}

	ds, err := res.Resolve(ctx, in.Request)
	if err != nil {
		o.Err = err
		return o
	}

	for _, op := range ops {
		r, err := analysis.Run(ctx, ds, op)
		if err != nil {
			o.Err = err
			return o
		}
		o.Results = append(o.Results, *r)
	}
	return o
}

func inputName(in Input) string {
	if in.Name != "" {
		return in.Name
	}
	req := in.Request
	switch {
	case req.UploadName != "":
		return req.UploadName
	case req.Path != "":
		return req.Path
	case req.URL != "":
		return req.URL
	case req.Sheet != "":
		return req.Sheet
	case req.SQL != nil:
		return req.SQL.Driver + " query"
	default:
		return "input"
	}
}
