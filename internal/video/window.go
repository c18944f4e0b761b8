package video

import (
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/LdDl/termites-go/mot"
)

// Window is the HighGUI operator of a tracking session. It implements mot.Operator
type Window struct {
	name   string
	window *gocv.Window
	keymap mot.Keymap
}

// NewWindow opens a window with given title
func NewWindow(name string, keymap mot.Keymap) *Window {
	if keymap == nil {
		keymap = mot.DefaultKeymap()
	}
	return &Window{
		name:   name,
		window: gocv.NewWindow(name),
		keymap: keymap,
	}
}

// Show displays image and waits for a key at most delay. Zero delay waits until a key is pressed
func (w *Window) Show(image gocv.Mat, delay time.Duration) mot.Command {
	w.window.IMShow(image)
	waitMs := int(delay / time.Millisecond)
	if delay > 0 && waitMs < 1 {
		waitMs = 1
	}
	key := w.window.WaitKey(waitMs)
	command := w.keymap.Command(key)
	if command.Kind != mot.CommandNone {
		mot.Tracef("key %d pressed", key)
	}
	return command
}

// SelectBox asks the operator to drag a box around subject. Empty selection (Esc or c) cancels
func (w *Window) SelectBox(frame gocv.Mat, subject mot.Identity) (mot.BBox, error) {
	w.window.SetWindowTitle(w.name + ": select " + subject.Label() + ", then press Enter")
	defer w.window.SetWindowTitle(w.name)
	box := mot.NewBBoxFrom(w.window.SelectROI(frame))
	if box.Empty() {
		return mot.BBox{}, errors.Wrapf(mot.ErrSelectionCancelled, "subject %s", subject.Label())
	}
	mot.Diagf("subject %s selected at %v", subject.Label(), box.Rect())
	return box, nil
}

// Close closes the window
func (w *Window) Close() error {
	return w.window.Close()
}
