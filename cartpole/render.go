package cartpole

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gosuri/uilive"
	"github.com/zeu5/dqn-cartpole/types"
)

// TerminalRenderer redraws an ascii cart and pole in place on every Render
type TerminalRenderer struct {
	width  int
	out    io.Writer
	writer *uilive.Writer
}

var _ EpisodeRenderer = &TerminalRenderer{}

// NewTerminalRenderer draws on out using a track of the given width (in characters)
func NewTerminalRenderer(out io.Writer, width int) *TerminalRenderer {
	if width < 11 {
		width = 11
	}
	r := &TerminalRenderer{
		width: width,
		out:   out,
	}
	r.NewEpisode()
	return r
}

// NewEpisode keeps the last frame on screen and draws the next ones below it
func (r *TerminalRenderer) NewEpisode() {
	r.writer = uilive.New()
	r.writer.Out = r.out
}

func (r *TerminalRenderer) Render(s types.State) error {
	fmt.Fprint(r.writer, Frame(s, r.width))
	return r.writer.Flush()
}

// Frame returns the drawing of the state: a pole line, a cart line, the track
// and a status line. The cart position maps [-XThreshold, XThreshold] to the track.
func Frame(s types.State, width int) string {
	x, theta := s[0], s[2]

	pos := int(math.Round((x + XThreshold) / (2 * XThreshold) * float64(width-1)))
	if pos < 0 {
		pos = 0
	}
	if pos > width-1 {
		pos = width - 1
	}

	pole := '|'
	switch {
	case theta > ThetaThreshold/3:
		pole = '/'
	case theta < -ThetaThreshold/3:
		pole = '\\'
	}

	poleLine := []rune(strings.Repeat(" ", width))
	poleLine[pos] = pole
	cartLine := []rune(strings.Repeat(" ", width))
	for i := pos - 1; i <= pos+1; i++ {
		if i >= 0 && i < width {
			cartLine[i] = '#'
		}
	}

	return fmt.Sprintf("%s\n%s\n%s\nx=%+.3f theta=%+.3f\n",
		string(poleLine), string(cartLine), strings.Repeat("=", width), x, theta)
}
