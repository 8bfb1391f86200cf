package terminal

import (
	"github.com/gdamore/tcell/v2"

	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/pageflow"
)

// row is one centered line of the frame.
type row struct {
	text  string
	style tcell.Style
}

// state is everything the presenter was told so far.
type state struct {
	visible map[pageflow.Page]bool
	effects map[pageflow.Element]pageflow.Animation
	couplet content.Couplet
	sharing bool
}

//nolint:gochecknoglobals // Immutable styles.
var (
	styleTitle  = tcell.StyleDefault.Foreground(tcell.ColorGold).Bold(true)
	styleText   = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleHint   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleScroll = tcell.StyleDefault.Foreground(tcell.ColorGold).Background(tcell.ColorDarkRed)
	styleShare  = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorGold)
)

// compose lays out the frame for s. The reveal page wins over the others
// because the loading page slides out underneath it.
func compose(s *state) []row {
	switch {
	case s.visible[pageflow.PageReveal]:
		return composeReveal(s)
	case s.visible[pageflow.PageShaking]:
		return composeShaking(s)
	case s.visible[pageflow.PageLoading] && s.effects[pageflow.ElementLoadingPage] != pageflow.AnimationSlideOutLeft:
		return composeLoading(s)
	default:
		return nil
	}
}

func composeLoading(s *state) []row {
	rows := []row{{text: "新年对联", style: styleTitle}, {}}

	if s.effects[pageflow.ElementLoadingImage] == pageflow.AnimationLoad {
		rows = append(rows, row{text: "加载中 ▪▪▪", style: styleText})
	}

	return rows
}

func composeShaking(s *state) []row {
	ready := "…"
	if s.couplet.ID != 0 {
		ready = "对联已备好"
	}

	return []row{
		{text: "摇一摇，求一副新年对联", style: styleTitle},
		{},
		{text: ready, style: styleText},
		{},
		{text: "[空格] 直接揭晓   [q] 退出", style: styleHint},
	}
}

func composeReveal(s *state) []row {
	rows := make([]row, 0, 16)

	if s.effects[pageflow.ElementSonFather] == pageflow.AnimationBounceInLeft {
		rows = append(rows, row{text: "父子拜年", style: styleText})
	} else {
		rows = append(rows, row{})
	}

	switch s.effects[pageflow.ElementPendant] {
	case pageflow.AnimationRotate:
		rows = append(rows, row{text: "挂件 ↻", style: styleTitle})
	case pageflow.AnimationPendulum:
		rows = append(rows, row{text: "挂件 ⟲⟳", style: styleTitle})
	default:
		rows = append(rows, row{})
	}

	rows = append(rows, row{})
	rows = append(rows, composeScrolls(s)...)
	rows = append(rows, row{})

	if s.effects[pageflow.ElementTags] == pageflow.AnimationTada {
		rows = append(rows, row{text: "★ 福 ★", style: styleTitle})
	} else {
		rows = append(rows, row{})
	}

	if s.sharing {
		rows = append(rows, row{}, row{text: " 分享给朋友：" + s.couplet.Description() + " ", style: styleShare})
	}

	rows = append(rows, row{}, row{text: "[s] 分享   [a] 再摇一次   [q] 退出", style: styleHint})

	return rows
}

// composeScrolls prints the two lines vertically, the right one on the right.
func composeScrolls(s *state) []row {
	left := []rune(s.couplet.Left)
	right := []rune(s.couplet.Right)

	showLeft := s.effects[pageflow.ElementLeftScroll] == pageflow.AnimationFadeInDown
	showRight := s.effects[pageflow.ElementRightScroll] == pageflow.AnimationFadeInDown

	height := max(len(left), len(right))
	rows := make([]row, 0, height)

	cell := func(line []rune, i int, show bool) string {
		if !show || i >= len(line) {
			return "　"
		}

		return string(line[i])
	}

	for i := range height {
		rows = append(rows, row{
			text:  cell(left, i, showLeft) + "      " + cell(right, i, showRight),
			style: styleScroll,
		})
	}

	return rows
}
