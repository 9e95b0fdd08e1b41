// Command timertoken encodes, decodes and evaluates share tokens offline.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"timeronline/backend/internal/clock"
	"timeronline/backend/internal/codec"
	"timeronline/backend/internal/model"
)

const usage = `usage: timertoken <command> [flags]

commands:
  encode   build a token from flags
  decode   print the state carried by a token
  eval     print what a token shows at an instant
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "encode":
		err = runEncode(args[1:], stdout)
	case "decode":
		err = runDecode(args[1:], stdout)
	case "eval":
		err = runEval(args[1:], stdout, time.Now())
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "timertoken:", err)
		return 1
	}
	return 0
}

func runEncode(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("encode", pflag.ContinueOnError)
	kind := fs.String("kind", string(model.KindCountdown), "countdown or stopwatch")
	target := fs.Bool("target", false, "set the target mode bit")
	active := fs.Bool("active", false, "timer is running")
	pause := fs.Float64("pause", 0, "pause time in seconds")
	start := fs.Int64("start", 0, "start instant in epoch milliseconds (0 for none)")
	actual := fs.Int64("actual", 0, "original start in epoch milliseconds (0 for none)")
	duration := fs.Float64("duration", 0, "configured duration in seconds")
	name := fs.String("name", "", "timer name")
	legacy := fs.Bool("legacy", false, "write the legacy base-36 layout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k := model.Kind(*kind)
	if !k.Valid() {
		return fmt.Errorf("invalid kind %q", *kind)
	}
	state := model.TimerState{
		Kind:      k,
		Mode:      k.ModeForTargetBit(*target),
		IsActive:  *active,
		PauseTime: *pause,
		Duration:  *duration,
		TimerName: *name,
	}
	if *start != 0 {
		state.StartTime = model.Millis(*start)
	}
	if *actual != 0 {
		state.ActualStartTime = model.Millis(*actual)
	}

	if *legacy {
		fmt.Fprintln(stdout, codec.EncodeLegacy(state))
		return nil
	}
	fmt.Fprintln(stdout, codec.Encode(state))
	return nil
}

func runDecode(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("decode takes exactly one token")
	}

	state, format, ok := codec.DecodeCompat(fs.Arg(0))
	if !ok {
		return codec.ErrMalformedToken
	}

	out := struct {
		Format string           `json:"format"`
		State  model.TimerState `json:"state"`
	}{Format: format, State: state}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runEval(args []string, stdout io.Writer, now time.Time) error {
	fs := pflag.NewFlagSet("eval", pflag.ContinueOnError)
	at := fs.Int64("at", 0, "instant in epoch milliseconds (default now)")
	display := fs.String("display", "", "normal, minutes or seconds (default from token)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("eval takes exactly one token")
	}

	state, _, ok := codec.DecodeCompat(fs.Arg(0))
	if !ok {
		return codec.ErrMalformedToken
	}
	if *at != 0 {
		now = time.UnixMilli(*at)
	}
	mode := state.DisplayMode
	if *display != "" {
		mode = model.DisplayMode(*display)
		if !mode.Valid() {
			return fmt.Errorf("invalid display mode %q", *display)
		}
	}

	reading := clock.Evaluate(state, now)
	fmt.Fprintf(stdout, "%s %s\n", clock.Format(reading.DisplaySeconds, mode), clock.StatusOf(state, reading))
	return nil
}
