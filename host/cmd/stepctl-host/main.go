package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	log "github.com/sirupsen/logrus"

	yml "gopkg.in/yaml.v2"

	"stepctl/protocol"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = protocol.Version

	// ConfigFileName is what it sounds like
	ConfigFileName = "stepctl.yml"
	k              = koanf.New(".")
)

// EnvPrefix selects environment overrides, e.g. STEPCTL_DEVICE or
// STEPCTL_LOCAL_CHIP
const EnvPrefix = "STEPCTL_"

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", -1)
	}), nil)
}

func loadconfig() Config {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("unknown log level %q, using info", c.LogLevel)
	}
	return c
}

func root() {
	str := `stepctl-host talks to a stepctl step/direction controller over USB serial

Usage:
	stepctl-host <command> [arguments]

Commands:
	ports              list serial ports, marking attached controllers
	send <gcode>       send one command and print its report
	run <file>         send every line of a G-code file
	shell              interactive shell
	local              run the controller on this machine's GPIO (Linux)
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `stepctl-host is amenable to configuration via its .yml file.  For a primer on YAML, see
https://yaml.org/start.html

Every key can be overridden from the environment with the STEPCTL_ prefix,
nested keys joined by underscores (STEPCTL_LOCAL_CHIP=gpiochip4).

Keys:
	device       serial device; empty finds the first attached controller
	baud         line speed (USB CDC ignores it)
	readtimeout  serial read timeout in milliseconds
	rate         maximum lines per second, 0 for no limit
	burst        lines allowed above the rate
	timeout      seconds to wait for a command's ok
	hometimeout  seconds to wait for G28
	loglevel     debug, info, warn or error
	local.chip   GPIO chip used by "local"
	local.machine  JSON machine configuration used by "local"; empty uses
	               STEP gpio17, DIR gpio16, disable gpio7, homing switch gpio4

G-code understood by the controller:
	G0/G1 X<steps>     relative move in microsteps
	G28 [S<rpm>]       home in reverse until the sensor triggers
	G28 D1             zero the position without moving
	G92 [X0]           zero the position
	M3/M4 S<rpm>       rotate continuously, M4 reverses the sign
	M5                 stop rotating
	M17, M18/M84       enable, disable the driver
	M110 [N<n>]        reset line numbers
	M112, M410         emergency stop, quick stop
	M114, M115, M119   position, firmware, endstop reports
	M350 S<div>        microstep divider 1, 2, 4, 8 or 16
	M569 [S0|S1]       normal, reversed or toggled direction`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("stepctl-host version %v\n", Version)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)

	var err error
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "version":
		pversion()
		return
	case "ports":
		err = ports()
	case "send":
		err = send(loadconfig(), args[2:])
	case "run":
		err = runScript(loadconfig(), args[2:])
	case "shell":
		err = shell(loadconfig())
	case "local":
		err = local(loadconfig())
	default:
		log.Fatal("unknown command")
	}
	if err != nil {
		log.Fatal(err)
	}
}
