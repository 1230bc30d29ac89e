// faultlinectl is a command-line client for validating and exercising a
// declarative resilience pipeline configuration.
//
// Usage:
//
//	faultlinectl validate --config <path>
//	faultlinectl run --config <path> -- <command> [args...]
//
// validate loads and validates a pipeline configuration file without
// executing anything. run builds the pipeline described by the
// configuration and wraps the given command's execution in it, printing an
// ExecuteAndCapture-style summary — the exit code, output, and whether the
// pipeline classified the outcome as success, fault, or cancellation.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/urfave/cli/v3"

	faultline "github.com/faultline/faultline"
	"github.com/faultline/faultline/pkg/config/xconf"
	"github.com/faultline/faultline/pkg/resilience/xresilience"
)

// exitError signals a non-zero exit code for output already emitted by the
// command itself.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:  "faultlinectl",
		Usage: "validate and exercise declarative resilience pipelines",
		Commands: []*cli.Command{
			createValidateCommand(),
			createRunCommand(),
		},
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "load and validate a pipeline configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to a YAML or JSON pipeline configuration file",
				Required: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			opts, err := loadPipelineOptions(cmd.String("config"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid pipeline configuration: %v\n", err)
				return &exitError{code: 1}
			}
			fmt.Printf("pipeline %q is valid\n", opts.Name)
			return nil
		},
	}
}

// commandOutput is what run's wrapped Executable produces: the exit code
// and combined stdout/stderr of one invocation of the target command.
type commandOutput struct {
	output   string
	exitCode int
}

func createRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "build the configured pipeline and wrap a command's execution in it",
		ArgsUsage: "-- <command> [args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "path to a YAML or JSON pipeline configuration file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "operation key attached to the execution context",
				Value: "faultlinectl-run",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			commandArgs := cmd.Args().Slice()
			if len(commandArgs) == 0 {
				fmt.Fprintln(os.Stderr, "run requires a command after --, e.g. faultlinectl run --config pipeline.yaml -- curl https://example.com")
				return &exitError{code: 2}
			}

			opts, err := loadPipelineOptions(cmd.String("config"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid pipeline configuration: %v\n", err)
				return &exitError{code: 1}
			}

			pipeline := faultline.FromOptions(opts).Build()

			result := xresilience.ExecuteAndCapture[commandOutput](pipeline, ctx, func(ec *xresilience.ExecutionContext) (commandOutput, error) {
				return runOnce(ec.Context(), commandArgs)
			}, xresilience.WithOperationKey(cmd.String("key")))

			return reportResult(result)
		},
	}
}

// runOnce runs one attempt of the target command, returning ExitError as a
// normal (value, error) pair so retry/circuit-breaker/hedge treat a
// non-zero exit the same as any other handled fault.
func runOnce(ctx context.Context, commandArgs []string) (commandOutput, error) {
	c := exec.CommandContext(ctx, commandArgs[0], commandArgs[1:]...)
	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	err := c.Run()
	out := commandOutput{output: buf.String(), exitCode: c.ProcessState.ExitCode()}
	if err != nil {
		return out, err
	}
	return out, nil
}

func reportResult(result xresilience.PolicyResult[commandOutput]) error {
	value, _ := result.Outcome.Result()
	if value.output != "" {
		fmt.Print(value.output)
	}

	switch result.Kind {
	case xresilience.KindSuccess:
		fmt.Printf("faultlinectl: succeeded (exit %d)\n", value.exitCode)
		return nil
	case xresilience.KindCanceled:
		fmt.Fprintf(os.Stderr, "faultlinectl: canceled: %v\n", result.Outcome.Err())
		return &exitError{code: 130}
	default:
		fmt.Fprintf(os.Stderr, "faultlinectl: failed: %v\n", result.Outcome.Err())
		return &exitError{code: 1}
	}
}

func loadPipelineOptions(path string) (xconf.PipelineOptions, error) {
	return xconf.LoadPipelineConfig(path)
}

func run() int {
	app := createApp()

	if err := app.Run(context.Background(), os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
