package config

type KernelType string

const (
	KernelShell   KernelType = "shell"
	KernelJupyter KernelType = "jupyter"
)

type KernelConfig struct {
	Type KernelType `yaml:"type" validate:"required,oneof=shell jupyter"`
	// URL and Token address a Jupyter Server.
	URL   string `yaml:"url" validate:"required_if=Type jupyter,omitempty,url"`
	Token string `yaml:"token"`
	// Name is the kernelspec started on a Jupyter Server when no kernel
	// is running. Empty means the server default.
	Name string `yaml:"name"`
	// Shell is the name the shell kernel reports.
	Shell string `yaml:"shell"`
	// Dir is the working directory of shell kernels. Empty means the
	// directory of the notebook.
	Dir string `yaml:"dir"`
}
