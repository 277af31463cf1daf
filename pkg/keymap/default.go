package keymap

// roBa geometry.
const (
	DefaultRows     = 4
	DefaultCols     = 11
	DefaultLayers   = 8
	DefaultEncoders = 1
)

var defaultLayers = map[int][DefaultRows][DefaultCols]string{
	0: {
		{"Q", "W", "E", "R", "LT(7,T)", "No", "LT(7,Y)", "U", "I", "O", "P"},
		{"A", "S", "D", "F", "G", "No", "H", "J", "K", "L", "Minus"},
		{"Z", "X", "C", "V", "B", "No", "N", "M", "Comma", "Dot", "Slash"},
		{"LCtrl", "LGui", "LAlt", "Language2", "Space", "Tab", "No", "No", "Backspace", "Enter", "Escape"},
	},
	7: {
		{"Bootloader", "Reboot", "No", "No", "No", "No", "No", "No", "User8", "Reboot", "Bootloader"},
		{"No", "No", "No", "No", "No", "No", "No", "No", "No", "No", "No"},
		{"No", "No", "No", "No", "No", "No", "No", "No", "No", "No", "User7"},
		{"No", "No", "No", "No", "No", "No", "User6", "User5", "User0", "User1", "No"},
	},
}

// Default builds the stock roBa keymap: a base layer with two layer-tap
// keys into the configuration layer 7, empty layers 1-6, and volume on
// the encoder on every layer.
func Default() *Keymap {
	m := New(DefaultLayers, DefaultRows, DefaultCols, DefaultEncoders)
	m.names[0] = "base"
	m.names[7] = "config"
	for layer := 0; layer < DefaultLayers; layer++ {
		rows, ok := defaultLayers[layer]
		for row := 0; row < DefaultRows; row++ {
			for col := 0; col < DefaultCols; col++ {
				action := Action(NoAction{})
				if ok {
					action = MustParseAction(rows[row][col])
				}
				m.actions[(layer*DefaultRows+row)*DefaultCols+col] = action
			}
		}
		m.encoderMap[layer] = EncoderActions{
			Clockwise:        MustParseAction("KbVolumeUp"),
			CounterClockwise: MustParseAction("KbVolumeDown"),
		}
	}
	return m
}
