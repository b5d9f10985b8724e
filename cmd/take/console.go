package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

var errInputClosed = errors.New("input closed")

// console serializes all terminal input through one reader goroutine, so the
// countdown can fire while a prompt is waiting.
type console struct {
	in    *bufio.Reader
	out   io.Writer
	lines chan string
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: bufio.NewReader(in), out: out}
}

// readLine reads synchronously. Only valid before start.
func (c *console) readLine(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", errInputClosed
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo when stdin is a terminal. Only valid before start.
func (c *console) readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return c.readLine(prompt)
	}
	fmt.Fprint(c.out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// start hands stdin to the reader goroutine; from here on use ask and lines.
func (c *console) start() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for {
			line, err := c.in.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" || err == nil {
				c.lines <- line
			}
			if err != nil {
				return
			}
		}
	}()
}

// ask prints prompt and waits for a line, ctx, or abort.
func (c *console) ask(ctx context.Context, abort <-chan struct{}, prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", errInputClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-abort:
		return "", errAborted
	}
}

var errAborted = errors.New("prompt aborted")

func (c *console) yes(ctx context.Context, abort <-chan struct{}, prompt string) (bool, error) {
	line, err := c.ask(ctx, abort, prompt+" [y/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (c *console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

func newStdConsole() *console {
	return newConsole(os.Stdin, os.Stdout)
}
