// test-runner runs a command that flashes and starts a test binary on a board
// and scans the test output for passed or failed tests. The output is read
// from the command's stdout, or from a serial device if -serial is given.
// When the result is known, the command is sent a SIGTERM after a short
// delay. The exit code will be 0 if all tests passed, otherwise 1.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
)

var (
	serial  = flag.String("serial", "", "Read test output from serial `device`")
	timeout = flag.Duration("timeout", 2*time.Minute, "Fail if no result is seen within `d`")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [arguments]\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.Default().SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cmd := exec.Command(flag.Arg(0), flag.Args()[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr

	var output io.Reader
	restore := func() {}
	if *serial != "" {
		dev, err := os.OpenFile(*serial, os.O_RDONLY, 0)
		if err != nil {
			log.Fatal("open serial:", err)
		}
		if term.IsTerminal(int(dev.Fd())) {
			state, err := term.MakeRaw(int(dev.Fd()))
			if err != nil {
				log.Fatal("serial raw mode:", err)
			}
			restore = func() { term.Restore(int(dev.Fd()), state) }
		}
		cmd.Stdout = os.Stdout
		output = dev
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Fatal("open stdout:", err)
		}
		output = stdout
	}

	err := cmd.Start()
	if err != nil {
		log.Fatal("start command:", err)
	}

	result := make(chan int, 1)
	go scan(output, result)

	code := 1
	select {
	case code = <-result:
		time.Sleep(500 * time.Millisecond)
	case <-time.After(*timeout):
		log.Println("test-runner: timeout")
	}
	syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	cmd.Wait()
	restore()
	os.Exit(code)
}

// scan prints the lines of r and sends the exit code as soon as the test
// result is known.
func scan(r io.Reader, result chan<- int) {
	scanner := bufio.NewScanner(r)
	sent := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		log.Println(line)
		if sent {
			continue
		}
		switch {
		case strings.HasPrefix(line, "fatal error:"), strings.HasPrefix(line, "panic:"):
			fallthrough
		case line == "FAIL":
			sent = true
			result <- 1
		case line == "PASS":
			sent = true
			result <- 0
		}
	}
	if !sent {
		result <- 1
	}
}
