package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var commandContext = exec.CommandContext

// ProgressUpdate reports encoder position within the output clip.
type ProgressUpdate struct {
	// Percent is derived from OutTime against the requested output duration;
	// -1 when the duration is unknown.
	Percent float64
	OutTime time.Duration
	Speed   float64
	Done    bool
}

// Runner executes transcode requests.
type Runner interface {
	Run(ctx context.Context, req Request, progress func(ProgressUpdate)) error
}

// Option configures the CLI runner.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI runs requests through the ffmpeg command-line encoder.
type CLI struct {
	binary string
}

// NewCLI constructs a runner using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Run launches ffmpeg, streaming -progress output to the callback. A non-zero
// exit status returns an error carrying a stderr excerpt.
func (c *CLI) Run(ctx context.Context, req Request, progress func(ProgressUpdate)) error {
	if len(req.Inputs) == 0 {
		return errors.New("transcode request has no inputs")
	}
	if strings.TrimSpace(req.Output.Path) == "" {
		return errors.New("transcode request has no output path")
	}

	cmd := commandContext(ctx, c.binary, req.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	parser := newProgressParser(req.Output.DurationSeconds)
	for scanner.Scan() {
		if update, ok := parser.consume(scanner.Text()); ok && progress != nil {
			progress(update)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s exited: %w: %s", c.binary, err, stderr.Excerpt())
	}
	return nil
}

// progressParser folds ffmpeg -progress key=value lines into updates. One
// update is emitted per block, terminated by the "progress" key.
type progressParser struct {
	totalSeconds float64
	current      ProgressUpdate
}

func newProgressParser(totalSeconds float64) *progressParser {
	return &progressParser{totalSeconds: totalSeconds}
}

func (p *progressParser) consume(line string) (ProgressUpdate, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found {
		return ProgressUpdate{}, false
	}
	value = strings.TrimSpace(value)
	switch key {
	case "out_time_us", "out_time_ms":
		if micros, err := strconv.ParseInt(value, 10, 64); err == nil && micros >= 0 {
			p.current.OutTime = time.Duration(micros) * time.Microsecond
		}
	case "speed":
		if parsed, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			p.current.Speed = parsed
		}
	case "progress":
		update := p.current
		update.Done = value == "end"
		update.Percent = p.percent(update)
		p.current = ProgressUpdate{}
		return update, true
	}
	return ProgressUpdate{}, false
}

func (p *progressParser) percent(update ProgressUpdate) float64 {
	if update.Done {
		return 100
	}
	if p.totalSeconds <= 0 {
		return -1
	}
	percent := update.OutTime.Seconds() / p.totalSeconds * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// tailBuffer retains the last few KiB written so error messages carry a
// bounded stderr excerpt.
type tailBuffer struct {
	data []byte
}

const tailBufferLimit = 4096

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if overflow := len(b.data) - tailBufferLimit; overflow > 0 {
		b.data = b.data[overflow:]
	}
	return len(p), nil
}

func (b *tailBuffer) Excerpt() string {
	return strings.TrimSpace(string(b.data))
}
