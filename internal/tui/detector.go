package tui

import (
	"os"

	"golang.org/x/term"
)

// OutputMode selects how command results are printed.
type OutputMode int

const (
	ModePretty OutputMode = iota // styled tables, rendered Markdown
	ModePlain                    // uncolored text
	ModeJSON                     // machine-readable
	ModeQuiet                    // nothing but errors
)

var modeNames = [...]string{"pretty", "plain", "json", "quiet"}

func (m OutputMode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ParseOutputMode maps an --output value to a mode. Unknown values are
// pretty.
func ParseOutputMode(s string) OutputMode {
	for i, name := range modeNames {
		if s == name {
			return OutputMode(i)
		}
	}
	return ModePretty
}

// Preferences are the user's explicit output choices.
type Preferences struct {
	Output  string // --output, empty for automatic
	Quiet   bool
	NoColor bool
}

// Terminal describes where output goes. Getenv and IsTTY are replaceable
// for tests.
type Terminal struct {
	Getenv func(string) string
	IsTTY  bool
	Width  int
}

// Stdout inspects the process's standard output.
func Stdout() Terminal {
	fd := int(os.Stdout.Fd())
	t := Terminal{Getenv: os.Getenv, IsTTY: term.IsTerminal(fd), Width: 80}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		t.Width = w
	}
	return t
}

// Output is the resolved presentation for one command.
type Output struct {
	Mode  OutputMode
	Color bool
	Width int
}

// Resolve picks the output mode and color setting. Explicit flags win over
// TRIBUNAL_OUTPUT and TRIBUNAL_QUIET; CI runs, --no-color and pipes fall
// back to plain text.
func Resolve(p Preferences, t Terminal) Output {
	getenv := t.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	out := Output{Mode: resolveMode(p, t, getenv), Width: t.Width}
	out.Color = out.Mode == ModePretty && !p.NoColor && t.IsTTY &&
		getenv("NO_COLOR") == "" && getenv("TERM") != "dumb"
	return out
}

func resolveMode(p Preferences, t Terminal, getenv func(string) string) OutputMode {
	switch {
	case p.Output != "":
		return ParseOutputMode(p.Output)
	case p.Quiet:
		return ModeQuiet
	}
	switch env := getenv("TRIBUNAL_OUTPUT"); env {
	case "json", "plain":
		return ParseOutputMode(env)
	}
	switch {
	case getenv("TRIBUNAL_QUIET") == "1":
		return ModeQuiet
	case getenv("CI") != "", getenv("GITHUB_ACTIONS") != "":
		return ModePlain
	case p.NoColor, !t.IsTTY:
		return ModePlain
	}
	return ModePretty
}
