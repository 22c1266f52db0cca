package sdsim

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/aymanbagabas/go-pty"
	"golang.org/x/term"
)

const prompt = "sdsim> "

// Shell reads commands from in and executes them until "exit" or end of
// input. A terminal is put into raw mode for line editing, other input is
// executed like a script.
func Shell(in *os.File, out io.Writer, s *Session) error {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return s.RunScript(in, false)
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, state)

	return interact(struct {
		io.Reader
		io.Writer
	}{in, out}, s)
}

func interact(rw io.ReadWriter, s *Session) error {
	t := term.NewTerminal(rw, prompt)
	s.SetOutput(t)
	for {
		line, err := t.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
		if line == "exit" {
			return nil
		}
		if err := s.ExecLine(line); err != nil {
			fmt.Fprintln(t, "error:", err)
		}
	}
}

// servePty runs the shell on a new pseudo terminal until the client exits or
// the process is interrupted.
func servePty(s *Session) error {
	p, err := pty.New()
	if err != nil {
		return err
	}
	defer p.Close()
	log.Println("serving on", p.Name())

	done := make(chan error, 1)
	go func() { done <- interact(p, s) }()

	sigintr := make(chan os.Signal, 1)
	signal.Notify(sigintr, os.Interrupt)
	select {
	case err = <-done:
	case <-sigintr:
	}
	return err
}
