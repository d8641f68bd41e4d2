// Package console runs the interactive terminal chat loop.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// StopCommand ends the loop when entered on its own line.
const StopCommand = "/stop"

// Responder produces the assistant reply for one instruction.
type Responder interface {
	GenerateResponse(ctx context.Context, instruction string) (string, error)
}

// Loop reads instructions from In and writes replies to Out.
type Loop struct {
	In     io.Reader
	Out    io.Writer
	Bot    Responder
	Logger zerolog.Logger
}

// Run prompts with "User: " until StopCommand, EOF or ctx is done. Failed
// exchanges print a fixed message and the loop goes on. Only read and write
// errors are returned.
func (l Loop) Run(ctx context.Context) error {
	sc := bufio.NewScanner(l.In)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if _, err := fmt.Fprint(l.Out, "User: "); err != nil {
			return err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			_, err := fmt.Fprintln(l.Out)
			return err
		}
		line := sc.Text()
		if strings.TrimSpace(line) == StopCommand {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		reply, err := l.Bot.GenerateResponse(ctx, line)
		if err != nil {
			l.Logger.Error().Err(err).Msg("generation failed")
			if _, werr := fmt.Fprint(l.Out, "\nBot: unable to generate a response\n\n"); werr != nil {
				return werr
			}
			continue
		}
		if _, err := fmt.Fprintf(l.Out, "\nBot: %s\n\n", reply); err != nil {
			return err
		}
	}
}
