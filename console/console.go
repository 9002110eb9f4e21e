// Package console provides a live ncurses admin view for
// cmd/session-server and cmd/session-relay processes, grounded on the
// teacher's console.go (gocurses input loop + History + chat-command
// dispatch table), repurposed from a Minetest chat console to a
// client-table/ping/authority status view with a migrate-host
// keybinding.
package console

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tncardoso/gocurses"
)

// History is an input-line history with the teacher's dedup-on-add
// and prev/next cursor behavior (console.go's History), renamed to
// generic terms.
type History struct {
	lines [][]rune
	i     int
}

// Add appends line, removing any earlier occurrence of the same text
// first so the newest entry of a repeated command is the one kept.
func (h *History) Add(line []rune) {
	for k, v := range h.lines {
		if string(v) == string(line) {
			h.lines = append(h.lines[:k], h.lines[k+1:]...)
			break
		}
	}
	h.lines = append(h.lines, line)
	h.i = 0
}

// Prev moves the history cursor one entry back, returning current
// unchanged once it runs off the front.
func (h *History) Prev(current []rune) []rune {
	h.i++
	idx := len(h.lines) - h.i
	if idx < 0 || idx >= len(h.lines) {
		h.i--
		return current
	}
	return h.lines[idx]
}

// Next moves the history cursor one entry forward, returning an empty
// line once it reaches the present.
func (h *History) Next() []rune {
	h.i--
	if h.i < 1 {
		h.i = 0
		return []rune{}
	}
	return h.lines[len(h.lines)-h.i]
}

// ClientRow is one line of the live client table view.
type ClientRow struct {
	Id          uint32
	RemoteAddr  string
	RttMillis   float64
	IsAuthority bool
}

// StatusSource supplies the data the console renders and the actions
// its keybindings trigger, kept as an interface so the console can be
// exercised without a real ServerBuffer/RelayBuffer.
type StatusSource interface {
	ClientRows() []ClientRow
	AuthorityLabel() string
	TriggerMigrateHost(targetId uint32) error
	RunCommand(name string, arg string) error
}

// Command is one console-only operator command, mirroring the
// teacher's chatCommands table entries restricted to console=true.
type Command struct {
	Name string
	Run  func(source StatusSource, arg string) string
}

// Admin drives the live ncurses view and command input for one
// session process.
type Admin struct {
	source   StatusSource
	commands map[string]Command
	history  History
	input    []rune
	messages []string
}

// NewAdmin returns an Admin bound to source, with no commands
// registered yet beyond RegisterCommand calls the caller makes.
func NewAdmin(source StatusSource) *Admin {
	return &Admin{source: source, commands: make(map[string]Command)}
}

// RegisterCommand adds cmd to the dispatch table, keyed by cmd.Name.
func (a *Admin) RegisterCommand(cmd Command) {
	a.commands[cmd.Name] = cmd
}

// Dispatch parses one input line ("name arg...") and runs the
// matching registered command, returning the line to display. It is
// the pure, terminal-independent half of the teacher's console.go key
// handler, split out so it can be tested without gocurses.
func (a *Admin) Dispatch(line []rune) string {
	a.history.Add(line)

	fields := strings.SplitN(string(line), " ", 2)
	name := fields[0]
	var arg string
	if len(fields) == 2 {
		arg = fields[1]
	}

	cmd, ok := a.commands[name]
	if !ok {
		return "unknown command " + name
	}
	return cmd.Run(a.source, arg)
}

// statusLines renders the current client table, RTTs and authority as
// display lines, replacing the teacher's raw *Logger tail with a
// live status view.
func (a *Admin) statusLines() []string {
	lines := []string{"authority: " + a.source.AuthorityLabel()}
	for _, row := range a.source.ClientRows() {
		marker := " "
		if row.IsAuthority {
			marker = "*"
		}
		lines = append(lines, marker+" client "+strconv.FormatUint(uint64(row.Id), 10)+" "+row.RemoteAddr+
			" rtt="+strconv.FormatFloat(row.RttMillis, 'f', 1, 64)+"ms")
	}
	return lines
}

// draw refreshes the ncurses screen with the current status lines and
// input prompt, mirroring the teacher's draw function.
func (a *Admin) draw() {
	gocurses.Clear()
	row, _ := gocurses.Getmaxyx()

	lines := append(a.statusLines(), a.messages...)
	i := len(lines)
	for _, msg := range lines {
		gocurses.Mvaddstr(row-i-1, 0, msg)
		i--
	}
	gocurses.Mvaddstr(row-i-1, 0, "#>"+string(a.input))
	gocurses.Refresh()
}

// Run initializes ncurses and blocks reading keystrokes, dispatching
// completed lines to the registered command table, exactly the
// teacher's initCurses input loop restructured around Admin's fields.
func (a *Admin) Run() {
	gocurses.Initscr()
	gocurses.Cbreak()
	gocurses.Noecho()
	gocurses.Stdscr.Keypad(true)

	for {
		var ch rune
		ch1 := gocurses.Stdscr.Getch() % 255
		if ch1 > 0x7F {
			ch2 := gocurses.Stdscr.Getch()
			ch, _ = utf8.DecodeRune([]byte{byte(ch1), byte(ch2)})
		} else {
			ch = rune(ch1)
		}

		switch ch {
		case 3:
			a.input = a.history.Next()
		case 4:
			a.input = a.history.Prev(a.input)
		case '\b':
			if len(a.input) > 0 {
				a.input = a.input[:len(a.input)-1]
			}
		case '\n':
			result := a.Dispatch(a.input)
			a.input = nil
			a.messages = append(a.messages, result)
		default:
			a.input = append(a.input, ch)
		}

		a.draw()
	}
}
