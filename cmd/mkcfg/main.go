//go:build !tinygo

package main

import (
	"flag"
	"fmt"
	"os"

	"ecuos/internal/oscfg"
	"ecuos/kernel"
)

const defaultConfigPath = "ecuos.json"

func main() {
	var outPath string
	var checkPath string
	flag.StringVar(&outPath, "out", defaultConfigPath, "Output configuration path (- for stdout).")
	flag.StringVar(&checkPath, "check", "", "Validate an existing configuration instead of writing one.")
	flag.Parse()

	if checkPath != "" {
		if err := check(checkPath); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}
	if outPath == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}
	if err := write(outPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func write(outPath string) error {
	if outPath == "-" {
		return oscfg.Write(os.Stdout, oscfg.Demo())
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", outPath, err)
	}
	if err := oscfg.Write(f, oscfg.Demo()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %q: %w", outPath, err)
	}
	return f.Close()
}

// check loads path, binds the built-in bodies and builds a system from it.
func check(path string) error {
	cfg, err := oscfg.Load(path)
	if err != nil {
		return err
	}
	if err := oscfg.Bind(&cfg, oscfg.DemoBodies(nil)); err != nil {
		return err
	}
	sys, err := kernel.NewSystem(cfg, kernel.Options{})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c := sys.Config()
	fmt.Printf("%s: %d cores, %d applications, %d tasks, %d isrs, %d resources, %d counters, %d alarms, %d schedule tables, %d spinlocks\n",
		path, c.Cores, len(c.Applications), len(c.Tasks), len(c.ISRs), len(c.Resources),
		len(c.Counters), len(c.Alarms), len(c.ScheduleTables), len(c.Spinlocks))
	return nil
}
