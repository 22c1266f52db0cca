package sdsim

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/clktmr/sam3x/clock"
	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/sim"
	"github.com/clktmr/sam3x/soc"
)

func must[T any](ret T, err error) T {
	if err != nil {
		log.Fatalln(err)
	}
	return ret
}

const usageString = `SD card host controller simulator.

Usage:

	%s [flags] <command> [arguments]

The commands are:

	mkimage <image>	create a card image with a FAT32 partition
	shell		execute commands interactively
	run <script>...	execute commands from files, - for stdin

Use 'help' in the shell to list the host commands.

`

var (
	flags = flag.NewFlagSet("sdsim", flag.ExitOnError)

	image   = flags.String("image", "", "Card image, defaults to a card in memory")
	blocks  = flags.Int("blocks", 2048, "Blocks of the in memory card")
	chip    = flags.String("chip", "sam3x8e", "sam3x8e | sam3u4e")
	size    = flags.Int64("size", 64, "Size of a new image in MiB")
	trace   = flags.Bool("x", false, "Echo commands before running them")
	verbose = flags.Bool("v", false, "Log register accesses and state changes")
	usePty  = flags.Bool("pty", false, "Serve the shell on a pseudo terminal")
)

var chips = map[string]soc.Chip{
	"sam3x8e": soc.SAM3X8E,
	"sam3u4e": soc.SAM3U4E,
}

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "sdsim")
	flags.PrintDefaults()
}

func Main(args []string) {
	log.Default().SetFlags(0)
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() < 1 {
		flags.Usage()
		os.Exit(1)
	}
	if *verbose {
		debug.SetLogLevel(slog.LevelDebug)
	}

	switch flags.Arg(0) {
	case "mkimage":
		if flags.NArg() != 2 {
			flags.Usage()
			os.Exit(1)
		}
		err := MakeImage(flags.Arg(1), *size<<20)
		if err != nil {
			log.Fatalln("mkimage:", err)
		}
	case "shell":
		s, closeCard := newSession(os.Stdout)
		defer closeCard()
		if *usePty {
			err := servePty(s)
			if err != nil {
				log.Fatalln("pty:", err)
			}
			return
		}
		err := Shell(os.Stdin, os.Stdout, s)
		if err != nil {
			log.Fatalln(err)
		}
	case "run":
		if flags.NArg() < 2 {
			flags.Usage()
			os.Exit(1)
		}
		s, closeCard := newSession(os.Stdout)
		defer closeCard()
		for _, name := range flags.Args()[1:] {
			var r io.Reader = os.Stdin
			if name != "-" {
				f := must(os.Open(name))
				defer f.Close()
				r = f
			}
			if err := s.RunScript(r, *trace); err != nil {
				closeCard()
				log.Fatalf("%s: %v", name, err)
			}
		}
	default:
		fmt.Fprintf(flags.Output(), "unknown command: %s\n", flags.Arg(0))
		flags.Usage()
		os.Exit(1)
	}
}

func newSession(out io.Writer) (*Session, func()) {
	c, ok := chips[strings.ToLower(*chip)]
	if !ok {
		log.Fatalf("unknown chip: %s", *chip)
	}

	var card *sim.Card
	var f *os.File
	if *image != "" {
		f = must(os.OpenFile(*image, os.O_RDWR, 0))
		stat := must(f.Stat())
		card = sim.NewCard(f, stat.Size())
	} else {
		card = sim.NewMemCard(*blocks)
	}

	s := NewSession(out, c, card, clock.System)
	return s, func() {
		s.Close()
		if f != nil {
			f.Close()
		}
	}
}
