package content

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

// Image is one picture of a couplet scroll.
type Image struct {
	// Src is the image path relative to the page root.
	Src string `json:"src"`
	// Tag marks images that take part in the reveal animation.
	Tag bool `json:"tag"`
}

// Couplet is one decorative composition: two scrolls and their text.
type Couplet struct {
	// ID is the couplet number, 1 to 8.
	ID int `json:"id"`
	// Left is the first line.
	Left string `json:"left"`
	// Right is the second line.
	Right string `json:"right"`
	// LeftImages render the left scroll, top to bottom.
	LeftImages []Image `json:"left_images"`
	// RightImages render the right scroll, top to bottom.
	RightImages []Image `json:"right_images"`
}

// Description returns both lines the way they are printed under the scrolls.
func (c Couplet) Description() string {
	return c.Left + "  " + c.Right
}

// ErrUnknownCouplet is returned by Lookup for an id outside the table.
var ErrUnknownCouplet = errors.New("unknown couplet")

// Intn is the subset of *rand.Rand used to draw a couplet.
type Intn interface {
	IntN(n int) int
}

//nolint:gochecknoglobals // Static content table.
var couplets = map[int]Couplet{
	1: build(1, "有钱任性不吃土", "看啥买啥我做主", []string{"l-1", "*l-2"}, []string{"r"}),
	2: build(2, "相亲相爱么么哒", "单身狗也萌萌哒", []string{"l-1", "*l-2"}, []string{"r-1", "*r-2"}),
	3: build(3, "没有什么然并卵", "事事都能城会玩", []string{"l-1", "*l-2"}, []string{"r-1", "*r-2"}),
	4: build(4, "重要事情说三遍", "有车有房更有面", []string{"l-1", "*l-2"}, []string{"r"}),
	5: build(5, "事业有成吃得开", "加班又少心不塞", []string{"l-1", "*l-2"}, []string{"r-1", "*r-2"}),
	6: build(6, "新技能get显身手", "逼格更上一层楼", []string{"l-1", "*l-2", "l-3"}, []string{"*r-1", "r-2"}),
	7: build(7, "不怕世界那么大", "钱包带上就去看", []string{"l-1", "*l-2"}, []string{"r"}),
	8: build(8, "旧霉运通通狗带", "新一年通体舒泰", []string{"l-1", "*l-2"}, []string{"r"}),
}

// Lookup returns the couplet with the given id.
func Lookup(id int) (Couplet, error) {
	c, ok := couplets[id]
	if !ok {
		return Couplet{}, fmt.Errorf("%w: %d", ErrUnknownCouplet, id)
	}

	return c, nil
}

// IDs returns every couplet id in ascending order.
func IDs() []int {
	ids := make([]int, 0, len(couplets))
	for id := range couplets {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Pick draws a couplet uniformly. A nil source uses the global generator.
func Pick(src Intn) Couplet {
	ids := IDs()

	var i int
	if src == nil {
		i = rand.IntN(len(ids)) //nolint:gosec // Decorative choice, not security sensitive.
	} else {
		i = src.IntN(len(ids))
	}

	return couplets[ids[i]]
}

// build assembles a couplet; a leading '*' marks an animated image.
func build(id int, left, right string, leftParts, rightParts []string) Couplet {
	return Couplet{
		ID:          id,
		Left:        left,
		Right:       right,
		LeftImages:  images(id, leftParts),
		RightImages: images(id, rightParts),
	}
}

func images(id int, parts []string) []Image {
	result := make([]Image, 0, len(parts))

	for _, part := range parts {
		img := Image{}
		if part[0] == '*' {
			img.Tag = true
			part = part[1:]
		}

		img.Src = fmt.Sprintf("images/font/font-%d-%s.png", id, part)
		result = append(result, img)
	}

	return result
}
