package cmd

import (
	"github.com/spf13/pflag"

	"github.com/stateful/cellbook/internal/config"
)

const (
	kernelF     = "kernel"
	kernelURLF  = "kernel-url"
	kernelNameF = "kernel-name"
)

var (
	fKernel     string
	fKernelURL  string
	fKernelName string
)

func setKernelFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&fKernel, kernelF, "", "Kernel type, shell or jupyter. Overrides kernel.type.")
	flagSet.StringVar(&fKernelURL, kernelURLF, "", "Jupyter Server URL. Overrides kernel.url.")
	flagSet.StringVar(&fKernelName, kernelNameF, "", "Kernelspec started on the Jupyter Server. Overrides kernel.name.")
}

// kernelConfig returns the configuration with the kernel flags applied.
func kernelConfig() (*config.Config, error) {
	cfg := *getConfig()
	if fKernel != "" {
		cfg.Kernel.Type = config.KernelType(fKernel)
	}
	if fKernelURL != "" {
		cfg.Kernel.URL = fKernelURL
	}
	if fKernelName != "" {
		cfg.Kernel.Name = fKernelName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
