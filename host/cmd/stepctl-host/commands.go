package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	log "github.com/sirupsen/logrus"
	"github.com/theckman/yacspin"

	"stepctl/host/mcu"
	"stepctl/host/serial"
)

// signalContext is cancelled on the first interrupt
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}

func ports() error {
	list, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range list {
		mark := " "
		if p.IsController() {
			mark = "*"
		}
		if p.USB {
			fmt.Printf("%s %-20s %s:%s %s %s\n", mark, p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Printf("%s %s\n", mark, p.Name)
		}
	}
	return nil
}

// connect opens the configured device, or the first attached controller
func connect(ctx context.Context, cfg Config) (*mcu.MCU, error) {
	device := cfg.Device
	if device == "" {
		var err error
		if device, err = serial.FindDevice(); err != nil {
			return nil, err
		}
	}

	log.Infof("opening %s", device)
	m := mcu.NewMCU(cfg.HostOptions())
	sctx, cancel := context.WithTimeout(ctx, seconds(cfg.Timeout))
	defer cancel()
	if err := m.ConnectWithConfig(sctx, cfg.SerialConfig(device)); err != nil {
		return nil, err
	}
	m.SetLineHandler(func(line string) {
		log.Debugf("< %s", line)
	})

	if info, err := m.Identify(sctx); err == nil {
		log.Infof("connected to %s %s", info.Name, info.Version)
	} else {
		log.Warnf("controller did not identify: %v", err)
	}
	return m, nil
}

func isHoming(cmd string) bool {
	f := strings.Fields(strings.ToUpper(cmd))
	return len(f) > 0 && f[0] == "G28"
}

// exec sends one command, with a spinner while homing
func exec(ctx context.Context, cfg Config, m *mcu.MCU, cmd string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout(cmd))
	defer cancel()

	if !isHoming(cmd) {
		return m.SendCommand(ctx, cmd)
	}

	var lines []string
	err := withSpinner("homing", func() error {
		var err error
		lines, err = m.SendCommand(ctx, cmd)
		return err
	})
	return lines, err
}

// withSpinner animates msg on the terminal while fn runs
func withSpinner(msg string, fn func() error) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return fn()
	}

	spinner.Start()
	if err := fn(); err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return err
	}
	spinner.StopMessage("done")
	spinner.Stop()
	return nil
}

func send(cfg Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: stepctl-host send <gcode>")
	}
	ctx, cancel := signalContext()
	defer cancel()

	m, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	lines, err := exec(ctx, cfg, m, strings.Join(args, " "))
	for _, line := range lines {
		fmt.Println(line)
	}
	return err
}

func runScript(cfg Config, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: stepctl-host run <file>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := signalContext()
	defer cancel()

	m, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	return sendScript(ctx, f, func(cmd string) ([]string, error) {
		return exec(ctx, cfg, m, cmd)
	}, os.Stdout)
}

// sendScript sends each command line of r and stops at the first error
func sendScript(ctx context.Context, r io.Reader, sendFn func(string) ([]string, error), out io.Writer) error {
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		cmd := stripComment(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debugf("> %s", cmd)
		lines, err := sendFn(cmd)
		for _, line := range lines {
			fmt.Fprintln(out, line)
		}
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", n, cmd, err)
		}
	}
	return scanner.Err()
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, ";("); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func shell(cfg Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	m, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	sh := ishell.New()
	sh.Println("stepctl shell, 'help' lists commands, 'exit' quits")
	for _, cmd := range shellCommands(ctx, cfg, m) {
		sh.AddCmd(cmd)
	}
	sh.Start()
	return nil
}

// shellCommands maps shell words to G-code
func shellCommands(ctx context.Context, cfg Config, m *mcu.MCU) []*ishell.Cmd {
	run := func(c *ishell.Context, cmd string) {
		lines, err := exec(ctx, cfg, m, cmd)
		for _, line := range lines {
			c.Println(line)
		}
		if err != nil {
			c.Err(err)
		}
	}
	// withArg builds a command taking one numeric argument
	withArg := func(name, help, gcode string, optional bool) *ishell.Cmd {
		return &ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(c *ishell.Context) {
				if len(c.Args) == 0 {
					if optional {
						run(c, gcode)
						return
					}
					c.Err(errors.New("usage: " + help))
					return
				}
				if _, err := strconv.ParseFloat(c.Args[0], 64); err != nil {
					c.Err(fmt.Errorf("%s: %w", name, err))
					return
				}
				run(c, gcode+" "+gcodeLetter(gcode)+c.Args[0])
			},
		}
	}

	return []*ishell.Cmd{
		withArg("move", "move <steps>", "G1", false),
		withArg("speed", "speed <rpm>", "M3", false),
		withArg("home", "home [rpm]", "G28", true),
		withArg("microstep", "microstep <1|2|4|8|16>", "M350", false),
		{Name: "stop", Help: "stop continuous rotation", Func: func(c *ishell.Context) { run(c, "M5") }},
		{Name: "quickstop", Help: "abort homing and the running move", Func: func(c *ishell.Context) { run(c, "M410") }},
		{Name: "enable", Help: "enable the driver", Func: func(c *ishell.Context) { run(c, "M17") }},
		{Name: "disable", Help: "disable the driver", Func: func(c *ishell.Context) { run(c, "M18") }},
		{Name: "zero", Help: "set the current position as zero", Func: func(c *ishell.Context) { run(c, "G92 X0") }},
		{Name: "status", Help: "motor state", Func: func(c *ishell.Context) { run(c, "M114") }},
		{Name: "endstop", Help: "homing sensor state", Func: func(c *ishell.Context) { run(c, "M119") }},
		{
			Name: "dir",
			Help: "dir [normal|reversed], no argument toggles",
			Func: func(c *ishell.Context) {
				switch {
				case len(c.Args) == 0:
					run(c, "M569")
				case c.Args[0] == "normal":
					run(c, "M569 S0")
				case c.Args[0] == "reversed":
					run(c, "M569 S1")
				default:
					c.Err(errors.New("usage: dir [normal|reversed]"))
				}
			},
		},
		{
			Name: "raw",
			Help: "raw <gcode>",
			Func: func(c *ishell.Context) {
				if len(c.Args) == 0 {
					c.Err(errors.New("usage: raw <gcode>"))
					return
				}
				run(c, strings.Join(c.Args, " "))
			},
		},
	}
}

func gcodeLetter(gcode string) string {
	switch gcode {
	case "G1":
		return "X"
	}
	return "S"
}
