package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/dlx/internal/bridge"
	"github.com/desertthunder/dlx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Ops prints the bridge catalogue.
func (r *Runner) Ops(ctx context.Context, cmd *cli.Command) error {
	ops := bridge.Catalogue()
	if r.dispatcher != nil {
		ops = r.dispatcher.Operations()
	}

	if cmd.Bool("json") {
		return r.writeJSON(ops, true)
	}

	r.writePlainHeader(fmt.Sprintf("%d operations", len(ops)))
	for _, op := range ops {
		r.writePlain("%-22s %s\n", op.Name, op.Summary)
		for _, arg := range op.Args {
			line := fmt.Sprintf("    %s: %s", arg.Name, arg.Kind)
			if !arg.Required() {
				line += fmt.Sprintf(" = %v", arg.Default)
			}
			r.writePlain("%s\n", line)
		}
	}
	return nil
}

// Call invokes one operation. The result is delivered asynchronously and printed once it is posted back.
func (r *Runner) Call(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireDispatcher(); err != nil {
		return err
	}

	method := cmd.StringArg("method")
	if method == "" {
		return fmt.Errorf("%w: method name", shared.ErrMissingArgument)
	}

	args, err := buildArguments(r.dispatcher, method, cmd.StringSlice("arg"), cmd.String("blob"))
	if err != nil {
		return err
	}

	results := make(chan bridge.Result, 1)
	r.dispatcher.Call(ctx, bridge.Request{Method: method, Arguments: args}, func(res bridge.Result) {
		results <- res
	})

	var res bridge.Result
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}

	if res.Err != nil {
		return res.Err
	}
	return r.writeValue(res.Value, cmd.Bool("pretty"))
}

// writeValue prints an engine response, formatting it when it is JSON.
func (r *Runner) writeValue(v any, pretty bool) error {
	switch value := v.(type) {
	case nil:
		return r.writePlain("ok\n")
	case string:
		var decoded any
		if json.Unmarshal([]byte(value), &decoded) == nil {
			return r.writeJSON(decoded, pretty)
		}
		return r.writePlain("%s\n", value)
	default:
		return r.writeJSON(value, pretty)
	}
}

// buildArguments turns key=value pairs and an optional blob into a request payload. Integer arguments are
// converted using the operation's argument specs; anything that does not convert is passed through for the
// bridge to reject.
func buildArguments(d *bridge.Dispatcher, method string, pairs []string, blob string) (any, error) {
	op, known := d.Lookup(method)

	if blob != "" {
		data, err := readBlob(blob)
		if err != nil {
			return nil, err
		}
		if known && op.Shape == bridge.ShapeBlob && len(pairs) == 0 {
			return data, nil
		}
		pairs = append(pairs, blobArgName(op)+"="+data)
	}

	if len(pairs) == 0 {
		return nil, nil
	}

	kinds := map[string]bridge.Kind{}
	if known {
		for _, spec := range op.Args {
			kinds[spec.Name] = spec.Kind
		}
	}

	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --arg %q is not key=value", shared.ErrInvalidFlag, pair)
		}
		if kinds[key] == bridge.KindInt {
			if n, err := strconv.Atoi(value); err == nil {
				args[key] = n
				continue
			}
		}
		args[key] = value
	}
	return args, nil
}

func blobArgName(op bridge.Operation) string {
	for _, spec := range op.Args {
		if spec.Kind == bridge.KindBlob {
			return spec.Name
		}
	}
	return "requestBlob"
}

// readBlob returns s, or the contents of the file when s is "@path".
func readBlob(s string) (string, error) {
	path, ok := strings.CutPrefix(s, "@")
	if !ok {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read blob file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
