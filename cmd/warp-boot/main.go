// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command warp-boot (re)starts the processes of a testbed.
//
// The processes are described by a JSON boot file:
//
//  [
//    {"name": "warp-node", "args": ["-ids", "1,2", "-registry", "testbed.json"]},
//    {"name": "warp-rc",   "args": ["-plan", "plan.json", "-registry", "testbed.json"]}
//  ]
//
// The output of each process is written to DIR/NAME.log, where DIR is
// $WARPNET_LOGDIR (default: /var/log/warpnet).
package main // import "github.com/go-lpc/warpnet/cmd/warp-boot"

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
)

var (
	defaultProcs = []proc{
		{Name: "warp-node", Args: []string{"-registry", "testbed.json"}},
		{Name: "warp-rc", Args: []string{"-registry", "testbed.json"}},
	}
	dir = os.Getenv("WARPNET_LOGDIR")

	bootFile = flag.String("f", "", "path to the boot file (default: warp-node and warp-rc)")
	doKill   = flag.Bool("kill", true, "kill previous instances of the processes")
	doMon    = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq   = flag.Duration("freq", 1*time.Second, "pmon frequency")

	stop = make(chan os.Signal, 1)
)

// proc describes a process to boot.
type proc struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

func (p proc) cmd() *exec.Cmd {
	return exec.Command(p.Name, p.Args...)
}

func main() {
	flag.Parse()

	log.SetPrefix("warp-boot: ")
	log.SetFlags(0)

	procs := defaultProcs
	if *bootFile != "" {
		var err error
		procs, err = load(*bootFile)
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}

	cmds := make([]*exec.Cmd, len(procs))
	for i, p := range procs {
		cmds[i] = p.cmd()
	}

	if *doKill {
		killall(cmds)
	}

	err := run(*doMon, *doFreq, cmds, dir, stop)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func load(fname string) ([]proc, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("could not read boot file: %w", err)
	}
	var procs []proc
	err = json.Unmarshal(raw, &procs)
	if err != nil {
		return nil, fmt.Errorf("could not decode boot file %q: %w", fname, err)
	}
	if len(procs) == 0 {
		return nil, fmt.Errorf("no process in boot file %q", fname)
	}
	for i, p := range procs {
		if p.Name == "" {
			return nil, fmt.Errorf("boot file %q: process #%d has no name", fname, i)
		}
	}
	return procs, nil
}

// killall kills the running instances of the commands.
func killall(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		name := filepath.Base(cmd.Path)
		kill := exec.Command("killall", name)
		kill.Stderr = os.Stderr
		kill.Stdout = os.Stdout
		err := kill.Run()
		if err != nil {
			log.Printf("could not kill %q: %+v", name, err)
		}
	}
}

func run(doMon bool, freq time.Duration, cmds []*exec.Cmd, dir string, stop chan os.Signal) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	if dir == "" {
		dir = "/var/log/warpnet"
	}

	var (
		grp  errgroup.Group
		kill = make(chan int)
	)
	for i := range cmds {
		cmd := cmds[i]
		grp.Go(func() error {
			return start(cmd, dir, kill, doMon, freq)
		})
		if i == 0 && len(cmds) > 1 {
			// the nodes must listen before the run control dials them.
			time.Sleep(100 * time.Millisecond)
		}
	}

	go func() {
		<-stop
		close(kill)
	}()

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not boot testbed: %w", err)
	}
	return nil
}

func start(cmd *exec.Cmd, dir string, kill chan int, doMon bool, freq time.Duration) error {
	name := filepath.Base(cmd.Path)
	out, err := os.Create(filepath.Join(dir, name+".log"))
	if err != nil {
		return fmt.Errorf("could not create output log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if doMon {
		p, err := pmon.Monitor(cmd.Process.Pid)
		if err != nil {
			return fmt.Errorf("could not start monitoring %q (pid=%d): %w", name, cmd.Process.Pid, err)
		}
		f, err := os.Create(filepath.Join(dir, name+"-pmon.log"))
		if err != nil {
			return fmt.Errorf("could not create pmon log file for command %q: %w", name, err)
		}
		defer f.Close()
		p.W = f
		p.Freq = freq

		go func() {
			err := p.Run()
			if err != nil {
				log.Printf("could not monitor %q: %+v", name, err)
			}
		}()

		defer func() {
			err := p.Kill()
			if err != nil {
				log.Printf("could not stop monitoring %q: %+v", name, err)
			}
		}()
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-kill:
		err = cmd.Process.Signal(os.Interrupt)
		if err != nil {
			return fmt.Errorf("could not interrupt %q: %w", name, err)
		}
		select {
		case <-errch:
		case <-time.After(5 * time.Second):
			log.Printf("%q did not exit, killing it...", name)
			err = cmd.Process.Kill()
			if err != nil {
				return fmt.Errorf("could not kill %q: %w", name, err)
			}
		}
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}

	return nil
}
