package pageflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// Page identifies one screen of the experience.
type Page int

const (
	// PageNone is the state before Boot.
	PageNone Page = iota
	// PageLoading shows the loading animation.
	PageLoading
	// PageShaking invites the user to shake the device.
	PageShaking
	// PageReveal shows the drawn couplet.
	PageReveal
)

// String implements fmt.Stringer.
func (p Page) String() string {
	switch p {
	case PageNone:
		return "none"
	case PageLoading:
		return "loading"
	case PageShaking:
		return "shaking"
	case PageReveal:
		return "reveal"
	default:
		return fmt.Sprintf("page(%d)", int(p))
	}
}

// Element is an animated part of a page.
type Element string

// Animated elements.
const (
	ElementLoadingImage Element = "loading-img"
	ElementLoadingPage  Element = "page-1"
	ElementSonFather    Element = "son-father"
	ElementPendant      Element = "guajian"
	ElementRightScroll  Element = "couplet-right"
	ElementLeftScroll   Element = "couplet-left"
	ElementTags         Element = "tag"
)

// Animation is an effect applied to an element.
type Animation string

// Animations.
const (
	AnimationLoad         Animation = "load"
	AnimationSlideOutLeft Animation = "slideOutLeft"
	AnimationBounceInLeft Animation = "bounceInLeft"
	AnimationRotate       Animation = "rotate-5"
	AnimationFadeInDown   Animation = "fadeInDown"
	AnimationTada         Animation = "tada"
	AnimationPendulum     Animation = "pendulum"
)

// Presenter renders what the controller decides. Calls are serialized by the controller.
type Presenter interface {
	ShowPage(page Page)
	HidePage(page Page)
	Animate(element Element, animation Animation)
	ResetAnimations()
	SetCouplet(couplet content.Couplet)
	ShowShare()
	HideAll()
}

// Chime plays the shake sound.
type Chime interface {
	Play()
}

// ShakeSource is where the controller listens for shakes. *shake.Bus implements it.
type ShakeSource interface {
	Subscribe(o shake.Observer) shake.Unsubscribe
}

// Timings are the delays of the choreography.
type Timings struct {
	// Load is waited after Boot before the loading animation starts.
	Load time.Duration
	// ShowShaking is waited after Load before the shaking page appears.
	ShowShaking time.Duration
	// SlideOutLoading is waited after ShowShaking before the loading page leaves.
	SlideOutLoading time.Duration
	// Draw is waited after the shaking page appears before a couplet is drawn.
	Draw time.Duration
	// RevealAfterShake is waited between the shake and the reveal.
	RevealAfterShake time.Duration
	// Pendant, RightScroll, LeftScroll, Tags and Pendulum drive the reveal steps.
	Pendant     time.Duration
	RightScroll time.Duration
	LeftScroll  time.Duration
	Tags        time.Duration
	Pendulum    time.Duration
}

// DefaultTimings returns the delays of the page choreography.
func DefaultTimings() Timings {
	return Timings{
		Load:             time.Millisecond,
		ShowShaking:      time.Second,
		SlideOutLoading:  2 * time.Second,
		Draw:             50 * time.Millisecond,
		RevealAfterShake: time.Second,
		Pendant:          time.Second,
		RightScroll:      2 * time.Second,
		LeftScroll:       time.Second,
		Tags:             2 * time.Second,
		Pendulum:         500 * time.Millisecond,
	}
}

// ErrInvalidTransition is returned when an action is not allowed on the current page.
var ErrInvalidTransition = errors.New("invalid page transition")

// Options configure a Controller.
type Options struct {
	// Presenter is required.
	Presenter Presenter
	// Shakes is where shake events come from. Nil disables shake detection.
	Shakes ShakeSource
	// Chime is optional.
	Chime Chime
	// Rand draws couplets. Nil uses the global generator.
	Rand content.Intn
	// Timings default to DefaultTimings when zero.
	Timings Timings
}

// Controller owns the page state. It is safe for concurrent use.
type Controller struct {
	presenter Presenter
	shakes    ShakeSource
	chime     Chime
	rand      content.Intn
	timings   Timings
	log       *zap.SugaredLogger

	boot   *Sequence
	draw   *Sequence
	reveal *Sequence

	mu            sync.Mutex
	page          Page
	sharing       bool
	revealPending bool
	couplet       content.Couplet
	unsubscribe   shake.Unsubscribe
}

// errPresenterRequired is returned when no presenter is configured.
var errPresenterRequired = errors.New("presenter is required")

// NewController creates a controller in PageNone.
func NewController(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Presenter == nil {
		return nil, errPresenterRequired
	}

	timings := opts.Timings
	if timings == (Timings{}) {
		timings = DefaultTimings()
	}

	return &Controller{
		presenter: opts.Presenter,
		shakes:    opts.Shakes,
		chime:     opts.Chime,
		rand:      opts.Rand,
		timings:   timings,
		log:       logger.FromContext(logger.WithName(ctx, "pageflow")),
		boot:      NewSequence(),
		draw:      NewSequence(),
		reveal:    NewSequence(),
	}, nil
}

// Boot shows the loading page and schedules the move to the shaking page.
func (c *Controller) Boot() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != PageNone {
		return fmt.Errorf("%w: boot from %s", ErrInvalidTransition, c.page)
	}

	c.page = PageLoading
	c.presenter.ShowPage(PageLoading)

	c.boot.Schedule(
		Step{Name: "load", Delay: c.timings.Load, Run: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			c.presenter.Animate(ElementLoadingImage, AnimationLoad)
		}},
		Step{Name: "show-shaking", Delay: c.timings.ShowShaking, Run: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			if c.page == PageLoading {
				c.enterShaking()
			}
		}},
		Step{Name: "slide-out-loading", Delay: c.timings.SlideOutLoading, Run: func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			c.presenter.Animate(ElementLoadingPage, AnimationSlideOutLeft)
		}},
	)

	c.log.Debugw("Booted")

	return nil
}

// OnShake implements shake.Observer. It is honoured only on the shaking page.
func (c *Controller) OnShake(event motion.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != PageShaking || c.revealPending {
		return
	}

	c.detachShakes()
	c.revealPending = true

	if c.chime != nil {
		c.chime.Play()
	}

	c.log.Infow("Shake received, revealing couplet", "event_id", event.ID, "couplet", c.couplet.ID)

	c.reveal.Schedule(Step{Name: "reveal-after-shake", Delay: c.timings.RevealAfterShake, Run: func() {
		if err := c.Reveal(); err != nil {
			c.log.Debugw("Reveal skipped", "error", err)
		}
	}})
}

// Tap reveals the couplet at once. It is the test affordance of the shaking page.
func (c *Controller) Tap() error {
	return c.Reveal()
}

// Reveal shows the reveal page and runs its animation steps. Pending steps of
// a previous reveal are cancelled first.
func (c *Controller) Reveal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != PageShaking {
		return fmt.Errorf("%w: reveal from %s", ErrInvalidTransition, c.page)
	}

	c.detachShakes()
	c.reveal.Cancel()

	c.page = PageReveal
	c.revealPending = false
	c.sharing = false

	c.presenter.HidePage(PageShaking)
	c.presenter.ShowPage(PageReveal)
	c.presenter.ResetAnimations()
	c.presenter.Animate(ElementSonFather, AnimationBounceInLeft)

	c.reveal.Schedule(c.animateStep("pendant", c.timings.Pendant, ElementPendant, AnimationRotate))
	c.reveal.Schedule(
		c.animateStep("right-scroll", c.timings.RightScroll, ElementRightScroll, AnimationFadeInDown),
		c.animateStep("left-scroll", c.timings.LeftScroll, ElementLeftScroll, AnimationFadeInDown),
		c.animateStep("tags", c.timings.Tags, ElementTags, AnimationTada),
		c.animateStep("pendulum", c.timings.Pendulum, ElementPendant, AnimationPendulum),
	)

	c.log.Infow("Couplet revealed", "couplet", c.couplet.ID)

	return nil
}

// Share opens the share overlay on the reveal page.
func (c *Controller) Share() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != PageReveal {
		return fmt.Errorf("%w: share from %s", ErrInvalidTransition, c.page)
	}

	c.sharing = true
	c.presenter.ShowShare()

	return nil
}

// Again leaves the reveal page and draws a new couplet.
func (c *Controller) Again() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.page != PageReveal {
		return fmt.Errorf("%w: again from %s", ErrInvalidTransition, c.page)
	}

	c.reveal.Cancel()
	c.presenter.HideAll()
	c.enterShaking()

	return nil
}

// Close cancels every pending step and stops listening for shakes.
func (c *Controller) Close() {
	c.boot.Cancel()
	c.draw.Cancel()
	c.reveal.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.detachShakes()
}

// Page returns the current page.
func (c *Controller) Page() Page {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.page
}

// Sharing reports whether the share overlay is open.
func (c *Controller) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sharing
}

// Couplet returns the currently drawn couplet; its ID is zero before the first draw.
func (c *Controller) Couplet() content.Couplet {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.couplet
}

// enterShaking shows the shaking page, schedules the draw and listens for shakes.
// The caller holds c.mu.
func (c *Controller) enterShaking() {
	c.page = PageShaking
	c.sharing = false
	c.revealPending = false
	c.presenter.ShowPage(PageShaking)

	c.draw.Cancel()
	c.draw.Schedule(Step{Name: "draw", Delay: c.timings.Draw, Run: func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.couplet = content.Pick(c.rand)
		c.presenter.SetCouplet(c.couplet)
		c.log.Debugw("Couplet drawn", "couplet", c.couplet.ID)
	}})

	if c.shakes != nil && c.unsubscribe == nil {
		c.unsubscribe = c.shakes.Subscribe(c)
	}
}

// detachShakes stops listening for shakes. The caller holds c.mu.
func (c *Controller) detachShakes() {
	if c.unsubscribe == nil {
		return
	}

	c.unsubscribe()
	c.unsubscribe = nil
}

// animateStep builds a reveal step applying one animation.
func (c *Controller) animateStep(name string, delay time.Duration, element Element, animation Animation) Step {
	return Step{Name: name, Delay: delay, Run: func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.page == PageReveal {
			c.presenter.Animate(element, animation)
		}
	}}
}
