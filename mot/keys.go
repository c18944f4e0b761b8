package mot

// KeyEscape is the key code of the Escape key as reported by HighGUI
const KeyEscape = 27

// Keymap binds key codes to operator commands
type Keymap map[int]Command

// DefaultKeymap returns default key bindings:
// Esc/q quit, p pause, r rewind, +/= faster, - slower, 1..9 restart subject 1..9
func DefaultKeymap() Keymap {
	keymap := Keymap{
		KeyEscape: {Kind: CommandQuit},
		'q':       {Kind: CommandQuit},
		'p':       {Kind: CommandPause},
		' ':       {Kind: CommandPause},
		'r':       {Kind: CommandRewind},
		'+':       {Kind: CommandFaster},
		'=':       {Kind: CommandFaster},
		'-':       {Kind: CommandSlower},
	}
	for digit := 1; digit <= 9; digit++ {
		keymap['0'+digit] = Command{Kind: CommandRestart, Subject: digit - 1}
	}
	return keymap
}

// Command returns command bound to key. Negative key (no key pressed) and unbound keys give CommandNone
func (keymap Keymap) Command(key int) Command {
	if key < 0 {
		return Command{Kind: CommandNone}
	}
	if command, ok := keymap[key&0xff]; ok {
		return command
	}
	return Command{Kind: CommandNone}
}
