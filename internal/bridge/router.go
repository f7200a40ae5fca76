package bridge

import (
	"fmt"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// CommandRouter turns LED mode names into command frames on the serial link.
type CommandRouter struct {
	link FrameWriter
}

func NewCommandRouter(link FrameWriter) *CommandRouter {
	return &CommandRouter{link: link}
}

// Route writes the frame for modeText, matched case-insensitively against
// Off, On and Mood. Anything else is logged and never reaches the link; the
// returned error wraps protocol.ErrUnknownMode.
func (r *CommandRouter) Route(modeText string) error {
	mode, err := protocol.ParseMode(modeText)
	if err != nil {
		monitoring.Logf("dropping command: %v", err)
		return err
	}
	if err := r.link.Write(mode.Frame()); err != nil {
		return fmt.Errorf("write %s frame: %w", mode, err)
	}
	monitoring.Logf("LED mode set to %s", mode)
	return nil
}
