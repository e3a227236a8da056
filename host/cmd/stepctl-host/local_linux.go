//go:build linux

package main

import (
	"bufio"
	"os"

	log "github.com/sirupsen/logrus"

	"stepctl/core"
	"stepctl/host/linuxgpio"
	"stepctl/standalone/config"
	"stepctl/standalone/machine"
)

// local runs the controller on this machine's GPIO lines, reading G-code
// from stdin and answering on stdout
func local(cfg Config) error {
	mgr, err := newLocalManager(cfg)
	if err != nil {
		return err
	}

	gpio := linuxgpio.New(cfg.Local.Chip)
	defer gpio.Close()

	err = mgr.Initialize(machine.Hardware{
		GPIO:   gpio,
		Pulses: core.NewSoftPWM(gpio, core.SystemClock{}),
		Logger: log.StandardLogger(),
	})
	if err != nil {
		return err
	}
	mgr.SetWriter(os.Stdout)
	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Stop()

	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		mgr.EmergencyStop()
		os.Stdin.Close()
	}()

	r := bufio.NewReader(os.Stdin)
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			mgr.Feed(buf[:n])
		}
		if err != nil {
			return nil
		}
	}
}

func newLocalManager(cfg Config) (*machine.Manager, error) {
	if cfg.Local.Machine == "" {
		return machine.NewManagerWithConfig(config.DefaultConfig())
	}
	data, err := os.ReadFile(cfg.Local.Machine)
	if err != nil {
		return nil, err
	}
	return machine.NewManager(data)
}
