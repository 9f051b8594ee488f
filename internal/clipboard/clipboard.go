// Package clipboard puts a session id on the system clipboard.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"

	"github.com/asheshgoplani/recall/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("clipboard: nothing to copy")

// Result says how the text reached the clipboard.
type Result struct {
	Method string // "pbcopy", "wl-copy", "xclip", "xsel", "clip.exe" or "osc52"
	Bytes  int
}

// tool is a clipboard command that reads the text on stdin.
type tool struct {
	name string
	args []string
}

var (
	lookPath = exec.LookPath
	runTool  = func(path string, args []string, text string) error {
		cmd := exec.Command(path, args...)
		cmd.Stdin = strings.NewReader(text)
		return cmd.Run()
	}
	openTTY = func() (io.WriteCloser, bool, error) {
		f, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
		if err != nil {
			return nil, false, err
		}
		return f, term.IsTerminal(int(f.Fd())), nil
	}
)

// Copy puts text on the clipboard with the first native tool found for the
// platform, falling back to an OSC 52 escape written to the terminal when
// allowOSC52 is set.
func Copy(text string, allowOSC52 bool) (*Result, error) {
	if text == "" {
		return nil, ErrEmpty
	}

	var nativeErr error
	for _, t := range toolsFor(platform.Detect(), os.Getenv("WAYLAND_DISPLAY") != "") {
		path, err := lookPath(t.name)
		if err != nil {
			continue
		}
		if nativeErr = runTool(path, t.args, text); nativeErr == nil {
			return &Result{Method: t.name, Bytes: len(text)}, nil
		}
	}

	if allowOSC52 {
		if err := copyOSC52(text); err != nil {
			return nil, fmt.Errorf("clipboard: osc52: %w", err)
		}
		return &Result{Method: "osc52", Bytes: len(text)}, nil
	}
	if nativeErr != nil {
		return nil, fmt.Errorf("clipboard: %w", nativeErr)
	}
	return nil, errors.New("clipboard: no clipboard tool found (install pbcopy, wl-copy, xclip or xsel)")
}

// toolsFor lists clipboard commands to try, in order.
func toolsFor(p platform.Platform, wayland bool) []tool {
	switch p {
	case platform.PlatformMacOS:
		return []tool{{name: "pbcopy"}}
	case platform.PlatformWSL1, platform.PlatformWSL2:
		return []tool{{name: "clip.exe"}}
	case platform.PlatformLinux:
		var tools []tool
		if wayland {
			tools = append(tools, tool{name: "wl-copy"})
		}
		return append(tools,
			tool{name: "xclip", args: []string{"-selection", "clipboard"}},
			tool{name: "xsel", args: []string{"--clipboard", "--input"}},
		)
	}
	return nil
}

func copyOSC52(text string) error {
	tty, isTerm, err := openTTY()
	if err != nil {
		return err
	}
	defer tty.Close()
	if !isTerm {
		return errors.New("/dev/tty is not a terminal")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	_, err = io.WriteString(tty, osc52Sequence(encoded, os.Getenv("TMUX") != ""))
	return err
}

// osc52Sequence builds the OSC 52 set-clipboard escape. Inside tmux it is
// wrapped in a DCS passthrough.
func osc52Sequence(encoded string, inTmux bool) string {
	osc := "\x1b]52;c;" + encoded + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}
