package sdsim

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"github.com/buildkite/shellwords"
	"github.com/kballard/go-shellquote"

	"github.com/clktmr/sam3x/clock"
	"github.com/clktmr/sam3x/debug"
	"github.com/clktmr/sam3x/drivers/sdhost"
	"github.com/clktmr/sam3x/drivers/sdio"
	"github.com/clktmr/sam3x/eventloop"
	"github.com/clktmr/sam3x/sim"
	"github.com/clktmr/sam3x/soc"
	"github.com/clktmr/sam3x/soc/hsmci"
	"github.com/clktmr/sam3x/soc/pmc"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrPoweredOff     = errors.New("host not powered on")
	ErrStuck          = errors.New("command didn't complete")
)

const maxDescriptors = 4

// Session runs host commands against a simulated card.
type Session struct {
	out     io.Writer
	m       *sim.Machine
	host    *sdhost.Host
	loop    *eventloop.Loop
	wide    bool
	powered bool

	// Timeout aborts a command that doesn't complete, which only happens if
	// the simulation is set up to never finish an operation.
	Timeout time.Duration

	done    bool
	results sdio.CommandResults
	dataErr sdio.DataError

	log *slog.Logger
}

// NewSession returns a session with card in the slot of a chip. Output of
// commands is written to out.
func NewSession(out io.Writer, chip soc.Chip, card *sim.Card, clk clock.Clock) *Session {
	s := &Session{
		out:     out,
		m:       sim.New(chip, card),
		loop:    eventloop.New(),
		wide:    true,
		Timeout: 5 * time.Second,
		log:     debug.Logger(debug.ComponentTool),
	}
	hw := sdhost.Hardware{
		Regs: hsmci.New(s.m, chip.HSMCIBase),
		PMC:  pmc.New(s.m, chip.PMCBase),
		DMA:  s.m.DMAC,
	}
	cfg := sdhost.Config{
		Chip:             chip,
		WideMode:         s.wide,
		MaxIoDescriptors: maxDescriptors,
	}
	s.host = sdhost.New(cfg, hw, clk, s.loop, s.complete)
	s.host.Init()
	return s
}

// Machine returns the simulated chip.
func (s *Session) Machine() *sim.Machine {
	return s.m
}

// SetOutput redirects the output of commands to w.
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

// Close powers off the host.
func (s *Session) Close() {
	s.host.Deinit()
}

func (s *Session) complete(results sdio.CommandResults, dataErr sdio.DataError) {
	s.done = true
	s.results = results
	s.dataErr = dataErr
}

// RunScript executes one command per line of r. Empty lines and lines
// starting with # are skipped. With trace each command is echoed before it
// runs. Execution stops at the first failing command.
func (s *Session) RunScript(r io.Reader, trace bool) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		args, err := splitLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
		if len(args) == 0 {
			continue
		}
		if trace {
			fmt.Fprintln(s.out, "+", shellquote.Join(args...))
		}
		if err := s.Exec(args); err != nil {
			return fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	return scanner.Err()
}

// ExecLine splits line like a shell and executes the command.
func (s *Session) ExecLine(line string) error {
	args, err := splitLine(line)
	if err != nil || len(args) == 0 {
		return err
	}
	return s.Exec(args)
}

func splitLine(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	return shellwords.Split(line)
}

const helpString = `Commands:

	poweron [init|full] [1|4]	power on the host
	clock init|full [1|4]		reconfigure bus speed and width
	cmd <index> <none|short|busy|long> [arg] [nocrc] [nocmdnum]
					send a command without data
	read <block> [count]		read blocks and dump them
	write <block> <count> <byte>	fill blocks with a byte
	fault <name> [on|off]		inject a fault, see 'fault list'
	fault clear			remove all faults
	timing <cmd|data|dma|disable> <reads>
					set simulated latencies
	reset				abort and power off
	status				show host and card state
`

// Exec executes a single command.
func (s *Session) Exec(args []string) error {
	s.log.Debug("exec", "args", args)
	switch args[0] {
	case "help":
		fmt.Fprint(s.out, helpString)
		return nil
	case "poweron":
		return s.powerOn(args[1:])
	case "clock":
		return s.clock(args[1:])
	case "cmd":
		return s.cmd(args[1:])
	case "read":
		return s.read(args[1:])
	case "write":
		return s.write(args[1:])
	case "fault":
		return s.fault(args[1:])
	case "timing":
		return s.timing(args[1:])
	case "reset":
		s.host.Reset()
		s.powered = false
		return nil
	case "status":
		s.status()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
}

func (s *Session) interfaceParams(args []string) (p sdio.InterfaceParams, err error) {
	p.BusWidth = 1
	if len(args) > 0 {
		switch args[0] {
		case "init":
		case "full":
			p.ClockFullSpeed = true
		default:
			return p, fmt.Errorf("%w: speed is init or full", ErrUsage)
		}
	}
	if len(args) > 1 {
		w, err := strconv.Atoi(args[1])
		if err != nil || (w != 1 && w != 4) || (w == 4 && !s.wide) {
			return p, fmt.Errorf("%w: bus width is 1 or 4", ErrUsage)
		}
		p.BusWidth = w
	}
	return p, nil
}

func (s *Session) powerOn(args []string) error {
	p, err := s.interfaceParams(args)
	if err != nil {
		return err
	}
	if s.powered {
		s.host.Reset()
	}
	s.host.StartPowerOn(p)
	s.host.CompletePowerOn()
	s.powered = true
	return nil
}

func (s *Session) clock(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: clock init|full [1|4]", ErrUsage)
	}
	if !s.powered {
		return ErrPoweredOff
	}
	p, err := s.interfaceParams(args)
	if err != nil {
		return err
	}
	s.host.ReconfigureInterface(p)
	return nil
}

// execute runs a command to completion.
func (s *Session) execute(p *sdio.CommandParams) error {
	if !s.powered {
		return ErrPoweredOff
	}
	s.done = false
	s.host.StartCommand(p)

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	if err := s.loop.RunUntil(ctx, func() bool { return s.done }); err != nil {
		s.host.Reset()
		s.powered = false
		return fmt.Errorf("%w: cmd%d: %w", ErrStuck, p.CmdIndex, err)
	}
	return s.results.Err(s.dataErr)
}

var responseTypes = map[string]sdio.ResponseType{
	"none":  sdio.ResponseNone,
	"short": sdio.ResponseShort,
	"busy":  sdio.ResponseShortBusy,
	"long":  sdio.ResponseLong,
}

func (s *Session) cmd(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: cmd <index> <none|short|busy|long> [arg] [nocrc] [nocmdnum]", ErrUsage)
	}
	idx, err := strconv.ParseUint(args[0], 0, 6)
	if err != nil {
		return fmt.Errorf("%w: command index: %w", ErrUsage, err)
	}
	rt, ok := responseTypes[args[1]]
	if !ok {
		return fmt.Errorf("%w: response type %q", ErrUsage, args[1])
	}
	p := sdio.CommandParams{CmdIndex: uint8(idx), ResponseType: rt}
	for _, a := range args[2:] {
		switch a {
		case "nocrc":
			p.Flags |= sdio.NoCRCCheck
		case "nocmdnum":
			p.Flags |= sdio.NoCmdNumCheck
		default:
			arg, err := strconv.ParseUint(a, 0, 32)
			if err != nil {
				return fmt.Errorf("%w: argument: %w", ErrUsage, err)
			}
			p.Argument = uint32(arg)
		}
	}

	err = s.execute(&p)
	if errors.Is(err, ErrPoweredOff) || errors.Is(err, ErrStuck) {
		return err
	}
	fmt.Fprintf(s.out, "cmd%d: %v", p.CmdIndex, s.results.ErrorCode)
	switch {
	case s.results.ErrorCode != sdio.CmdErrorNone || rt == sdio.ResponseNone:
	case rt == sdio.ResponseLong:
		r := s.results.Response
		fmt.Fprintf(s.out, " %08x %08x %08x %08x", r[0], r[1], r[2], r[3])
	default:
		fmt.Fprintf(s.out, " %08x", s.results.Response[0])
	}
	fmt.Fprintln(s.out)
	return err
}

func parseBlocks(args []string, usage string) (block uint32, count int, err error) {
	if len(args) < 1 {
		return 0, 0, fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	b, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: block: %w", ErrUsage, err)
	}
	count = 1
	if len(args) > 1 {
		count, err = strconv.Atoi(args[1])
		if err != nil || count < 1 || count > sdio.MaxIoBlocks {
			return 0, 0, fmt.Errorf("%w: block count", ErrUsage)
		}
	}
	return uint32(b), count, nil
}

// transfer builds the parameters of a block read or write.
func transfer(dir sdio.Direction, block uint32, count int) *sdio.CommandParams {
	p := &sdio.CommandParams{
		ResponseType: sdio.ResponseShort,
		Direction:    dir,
		Argument:     block,
		NumBlocks:    uint16(count),
		DataVector:   sdio.NewTransferVector(count, maxDescriptors),
	}
	switch {
	case dir == sdio.DirRead && count == 1:
		p.CmdIndex = 17
	case dir == sdio.DirRead:
		p.CmdIndex = 18
	case count == 1:
		p.CmdIndex = 24
	default:
		p.CmdIndex = 25
	}
	return p
}

// stop sends STOP_TRANSMISSION after a multiple block transfer.
func (s *Session) stop() error {
	return s.execute(&sdio.CommandParams{CmdIndex: 12, ResponseType: sdio.ResponseShortBusy})
}

func bufferBytes(b sdio.Buffer) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(b))), 4*len(b))
}

func (s *Session) read(args []string) error {
	block, count, err := parseBlocks(args, "read <block> [count]")
	if err != nil {
		return err
	}
	p := transfer(sdio.DirRead, block, count)
	if err := s.execute(p); err != nil {
		return fmt.Errorf("read %d+%d: %w", block, count, err)
	}
	if count > 1 {
		if err := s.stop(); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}

	dumper := hex.Dumper(s.out)
	for _, buf := range p.DataVector {
		dumper.Write(bufferBytes(buf))
	}
	return dumper.Close()
}

func (s *Session) write(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: write <block> <count> <byte>", ErrUsage)
	}
	block, count, err := parseBlocks(args, "")
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		return fmt.Errorf("%w: fill byte: %w", ErrUsage, err)
	}

	p := transfer(sdio.DirWrite, block, count)
	for _, buf := range p.DataVector {
		for i := range buf {
			buf[i] = uint32(v) * 0x01010101
		}
	}
	if err := s.execute(p); err != nil {
		return fmt.Errorf("write %d+%d: %w", block, count, err)
	}
	if count > 1 {
		if err := s.stop(); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}
	fmt.Fprintf(s.out, "wrote %d blocks\n", count)
	return nil
}

var faultFlags = map[string]func(f *sim.Faults) *bool{
	"noresponse":  func(f *sim.Faults) *bool { return &f.NoResponse },
	"cmdcrc":      func(f *sim.Faults) *bool { return &f.CorruptCommandCRC },
	"rspcrc":      func(f *sim.Faults) *bool { return &f.CorruptResponseCRC },
	"index":       func(f *sim.Faults) *bool { return &f.WrongResponseIndex },
	"busy":        func(f *sim.Faults) *bool { return &f.BusyStuck },
	"datatimeout": func(f *sim.Faults) *bool { return &f.DataTimeout },
	"dmastall":    func(f *sim.Faults) *bool { return &f.DMAStall },
}

var faultStatus = map[string]hsmci.Status{
	"rinde": hsmci.RINDE,
	"rdire": hsmci.RDIRE,
	"rcrce": hsmci.RCRCE,
	"rende": hsmci.RENDE,
	"rtoe":  hsmci.RTOE,
	"cstoe": hsmci.CSTOE,
	"dcrce": hsmci.DCRCE,
	"dtoe":  hsmci.DTOE,
	"ovre":  hsmci.OVRE,
	"unre":  hsmci.UNRE,
}

func (s *Session) fault(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: fault <name> [on|off]", ErrUsage)
	}
	faults := &s.m.Faults
	switch args[0] {
	case "clear":
		*faults = sim.Faults{}
		return nil
	case "list":
		fmt.Fprintln(s.out, "flags: noresponse cmdcrc rspcrc index busy datatimeout dmastall")
		fmt.Fprintln(s.out, "status bits: rinde rdire rcrce rende rtoe cstoe dcrce dtoe ovre unre")
		return nil
	}

	on := true
	if len(args) > 1 {
		switch args[1] {
		case "on":
		case "off":
			on = false
		default:
			return fmt.Errorf("%w: fault <name> [on|off]", ErrUsage)
		}
	}

	if flag, ok := faultFlags[args[0]]; ok {
		*flag(faults) = on
		return nil
	}
	bit, ok := faultStatus[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown fault %q", ErrUsage, args[0])
	}
	status := &faults.CmdStatus
	if bit&hsmci.DataErrors != 0 {
		status = &faults.DataStatus
	}
	if on {
		*status |= bit
	} else {
		*status &^= bit
	}
	return nil
}

func (s *Session) timing(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: timing <cmd|data|dma|disable> <reads>", ErrUsage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: reads: %w", ErrUsage, err)
	}
	t := &s.m.Timing
	switch args[0] {
	case "cmd":
		t.CmdReads = n
	case "data":
		t.DataReads = n
	case "dma":
		t.DMAReads = n
	case "disable":
		if n < 0 {
			return fmt.Errorf("%w: disable latency must not be negative", ErrUsage)
		}
		t.DisableSpins = n
	default:
		return fmt.Errorf("%w: unknown timing %q", ErrUsage, args[0])
	}
	return nil
}

func (s *Session) status() {
	m := s.m
	fmt.Fprintf(s.out, "chip:     %s\n", m.Chip.Name)
	fmt.Fprintf(s.out, "powered:  %v\n", s.powered)
	fmt.Fprintf(s.out, "pending:  %v\n", s.host.Pending())
	fmt.Fprintf(s.out, "bus:      %.0f Hz, %d bit\n", m.MCI.BusClock(sdhost.DefaultMasterClock), m.MCI.BusWidth())
	fmt.Fprintf(s.out, "status:   %#08x\n", uint32(m.MCI.Status()))
	fmt.Fprintf(s.out, "commands: %d, %d init sequences\n", m.MCI.Commands, m.MCI.InitSequences)
	fmt.Fprintf(s.out, "dma:      %d transfers\n", m.DMAC.Transfers)
	if m.Card != nil {
		fmt.Fprintf(s.out, "card:     %d blocks, rca %#04x\n", m.Card.Blocks(), m.Card.RCA)
	}
	if m.Faults != (sim.Faults{}) {
		fmt.Fprintf(s.out, "faults:   %+v\n", m.Faults)
	}
}
