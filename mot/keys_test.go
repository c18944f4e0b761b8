package mot

import (
	"testing"
)

func TestDefaultKeymap(t *testing.T) {
	keymap := DefaultKeymap()
	cases := []struct {
		key      int
		expected Command
	}{
		{KeyEscape, Command{Kind: CommandQuit}},
		{'q', Command{Kind: CommandQuit}},
		{'p', Command{Kind: CommandPause}},
		{'r', Command{Kind: CommandRewind}},
		{'+', Command{Kind: CommandFaster}},
		{'-', Command{Kind: CommandSlower}},
		{'1', Command{Kind: CommandRestart, Subject: 0}},
		{'9', Command{Kind: CommandRestart, Subject: 8}},
		{'0', Command{Kind: CommandNone}},
		{'x', Command{Kind: CommandNone}},
		{-1, Command{Kind: CommandNone}},
		// HighGUI may report modifier bits above the low byte
		{0x100000 | 'q', Command{Kind: CommandQuit}},
	}
	for _, c := range cases {
		if got := keymap.Command(c.key); got != c.expected {
			t.Errorf("Key %d: expected %+v, got %+v", c.key, c.expected, got)
		}
	}
}
