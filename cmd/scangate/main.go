package main

import (
	"artifact-scan-gate/cmd"
	"artifact-scan-gate/internal/app/scangate"
	"errors"
	"flag"
	"github.com/alexflint/go-arg"
	"k8s.io/klog/v2"
	"os"
	"strconv"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the service and returns the process exit code; any configuration or startup error is non-zero.
func run(args []string) int {
	defer klog.Flush()
	cfg, err := cmd.Load(args)
	if errors.Is(err, arg.ErrHelp) {
		return 0
	}
	if err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return 1
	}

	fs := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(fs)
	_ = fs.Set("v", strconv.Itoa(cfg.LogVerbosity))

	if err := scangate.Run(cfg); err != nil {
		klog.Errorf("Error running scan-gate: %v", err)
		return 1
	}
	klog.Info("Shutting down...")
	return 0
}
