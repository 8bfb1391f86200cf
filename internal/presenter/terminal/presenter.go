package terminal

import (
	"context"
	"errors"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/pageflow"
)

// Actions are the page operations bound to keys. *pageflow.Controller implements it.
type Actions interface {
	Tap() error
	Share() error
	Again() error
}

// Presenter implements pageflow.Presenter on a tcell screen.
type Presenter struct {
	screen tcell.Screen

	mu    sync.Mutex
	state state
	frame []row
}

var _ pageflow.Presenter = (*Presenter)(nil)

// New creates a presenter drawing on an initialized screen.
func New(screen tcell.Screen) *Presenter {
	return &Presenter{
		screen: screen,
		state: state{
			visible: make(map[pageflow.Page]bool),
			effects: make(map[pageflow.Element]pageflow.Animation),
		},
	}
}

// ShowPage implements pageflow.Presenter.
func (p *Presenter) ShowPage(page pageflow.Page) {
	p.update(func(s *state) { s.visible[page] = true })
}

// HidePage implements pageflow.Presenter.
func (p *Presenter) HidePage(page pageflow.Page) {
	p.update(func(s *state) { delete(s.visible, page) })
}

// Animate implements pageflow.Presenter.
func (p *Presenter) Animate(element pageflow.Element, animation pageflow.Animation) {
	p.update(func(s *state) { s.effects[element] = animation })
}

// ResetAnimations implements pageflow.Presenter. The loading page keeps its state.
func (p *Presenter) ResetAnimations() {
	p.update(func(s *state) {
		for element := range s.effects {
			if element != pageflow.ElementLoadingImage && element != pageflow.ElementLoadingPage {
				delete(s.effects, element)
			}
		}
	})
}

// SetCouplet implements pageflow.Presenter.
func (p *Presenter) SetCouplet(couplet content.Couplet) {
	p.update(func(s *state) { s.couplet = couplet })
}

// ShowShare implements pageflow.Presenter.
func (p *Presenter) ShowShare() {
	p.update(func(s *state) { s.sharing = true })
}

// HideAll implements pageflow.Presenter.
func (p *Presenter) HideAll() {
	p.update(func(s *state) {
		clear(s.visible)
		s.sharing = false
	})
}

// Lines returns the text of the last drawn frame.
func (p *Presenter) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := make([]string, 0, len(p.frame))
	for _, r := range p.frame {
		lines = append(lines, r.text)
	}

	return lines
}

// Run dispatches key presses to actions until q, Esc, Ctrl-C or ctx ends.
// Actions rejected by the page flow are logged at debug level.
func (p *Presenter) Run(ctx context.Context, actions Actions) error {
	ctx = logger.WithName(ctx, "terminal")

	// PollEvent blocks, so an interrupt event wakes the loop on cancellation.
	stop := context.AfterFunc(ctx, func() {
		_ = p.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer stop()

	for {
		switch ev := p.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventInterrupt:
			if ctx.Err() != nil {
				return nil
			}
		case *tcell.EventResize:
			p.mu.Lock()
			p.screen.Sync()
			p.draw()
			p.mu.Unlock()
		case *tcell.EventKey:
			action, quit := keyAction(ev, actions)
			if quit {
				return nil
			}

			if action == nil {
				continue
			}

			if err := action(); err != nil {
				if !errors.Is(err, pageflow.ErrInvalidTransition) {
					return err
				}

				logger.DebugKV(ctx, "Key ignored on this page", "key", ev.Name(), "error", err)
			}
		}
	}
}

// keyAction maps a key to an action; quit is true for the exit keys.
func keyAction(ev *tcell.EventKey, actions Actions) (action func() error, quit bool) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return nil, true
	case tcell.KeyRune:
	default:
		return nil, false
	}

	switch ev.Rune() {
	case 'q', 'Q':
		return nil, true
	case ' ':
		return actions.Tap, false
	case 's', 'S':
		return actions.Share, false
	case 'a', 'A':
		return actions.Again, false
	default:
		return nil, false
	}
}

// update applies fn and redraws.
func (p *Presenter) update(fn func(s *state)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(&p.state)
	p.frame = compose(&p.state)
	p.draw()
}

// draw paints the frame centered on the screen. The caller holds p.mu.
func (p *Presenter) draw() {
	p.screen.Clear()

	width, height := p.screen.Size()
	top := max((height-len(p.frame))/2, 0)

	for i, r := range p.frame {
		y := top + i
		if y >= height {
			break
		}

		x := max((width-runewidth.StringWidth(r.text))/2, 0)

		for _, ch := range r.text {
			if x >= width {
				break
			}

			p.screen.SetContent(x, y, ch, nil, r.style)
			x += runewidth.RuneWidth(ch)
		}
	}

	p.screen.Show()
}
