package translation

import (
	"fmt"
	"strings"
)

// CompilerOptions selects which passes run on a compilation unit.
type CompilerOptions int

const (
	SsaForm CompilerOptions = 1 << iota
	Optimize
	Lsra

	None     CompilerOptions = 0
	MediumCq                 = SsaForm | Optimize
	HighCq                   = SsaForm | Optimize | Lsra
)

func (o CompilerOptions) String() string {
	switch o {
	case None:
		return "None"
	case MediumCq:
		return "MediumCq"
	case HighCq:
		return "HighCq"
	}

	var parts []string
	if o&SsaForm != 0 {
		parts = append(parts, "SsaForm")
	}
	if o&Optimize != 0 {
		parts = append(parts, "Optimize")
	}
	if o&Lsra != 0 {
		parts = append(parts, "Lsra")
	}
	if rest := o &^ HighCq; rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", int(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCompilerOptions accepts the names used in configuration files.
func ParseCompilerOptions(mode string) (CompilerOptions, error) {
	switch strings.ToLower(mode) {
	case "", "highcq":
		return HighCq, nil
	case "mediumcq":
		return MediumCq, nil
	case "lowcq", "none":
		return None, nil
	}
	return None, fmt.Errorf("unknown compiler mode %q", mode)
}

// qualitySuffix tags default unit names with the quality they were built at.
func qualitySuffix(options CompilerOptions) string {
	if options == HighCq {
		return "hcq"
	}
	return "lcq"
}
