package message

import (
	"slices"
	"strings"
)

// UnsafeNoticeKey is the locale key sent in place of an unsafe chain.
const UnsafeNoticeKey = "error.message.chain.unsafe"

// SafetyCheck reports whether one element may be sent.
type SafetyCheck func(Element) bool

// SecretCheck flags elements whose text contains any configured secret.
func SecretCheck(secrets []string) SafetyCheck {
	secrets = slices.DeleteFunc(slices.Clone(secrets), func(s string) bool {
		return strings.TrimSpace(s) == ""
	})

	return func(el Element) bool {
		if len(secrets) == 0 {
			return true
		}

		var text string
		switch typed := el.(type) {
		case Image, Voice:
			return true
		case I18NContext:
			text = typed.Key
			for _, arg := range typed.Args {
				if s, ok := arg.(string); ok {
					text += "\n" + s
				}
			}
		default:
			text = el.Render(nil)
		}

		for _, secret := range secrets {
			if strings.Contains(text, secret) {
				return false
			}
		}
		return true
	}
}

// Chain is an ordered sequence of elements.
type Chain struct {
	elements []Element
	unsafe   bool
}

// NewChain builds a chain from elements, skipping nil entries.
func NewChain(elements ...Element) Chain {
	var c Chain
	c.Append(elements...)
	return c
}

// Text builds a single plain element chain.
func Text(parts ...string) Chain {
	return NewChain(NewPlain(parts...))
}

// Append adds elements at the end.
func (c *Chain) Append(elements ...Element) *Chain {
	// Clip so chains copied by value never share a backing array.
	next := slices.Clip(c.elements)
	for _, el := range elements {
		if el != nil {
			next = append(next, el)
		}
	}
	c.elements = next

	return c
}

// MarkUnsafe flags the chain as unsafe regardless of its elements.
func (c *Chain) MarkUnsafe() {
	c.unsafe = true
}

// Elements returns a copy of the elements in order.
func (c Chain) Elements() []Element {
	return slices.Clone(c.elements)
}

// Len returns the number of elements.
func (c Chain) Len() int {
	return len(c.elements)
}

// IsSafe is false when the chain was marked unsafe or any element fails check.
func (c Chain) IsSafe(check SafetyCheck) bool {
	if c.unsafe {
		return false
	}
	if check == nil {
		return true
	}

	for _, el := range c.elements {
		if !check(el) {
			return false
		}
	}
	return true
}

// Guard returns c when it may be sent, otherwise the unsafe notice chain.
func (c Chain) Guard(check SafetyCheck, bypass bool) Chain {
	if bypass || c.IsSafe(check) {
		return c
	}

	return UnsafeNotice()
}

// UnsafeNotice is the single element chain substituted for unsafe content.
func UnsafeNotice() Chain {
	return NewChain(I18NContext{Key: UnsafeNoticeKey})
}

// AsSendable renders textual elements to Plain, joining neighbours with a
// newline. Media and embeds are kept as they are.
func (c Chain) AsSendable(rc RenderContext) Chain {
	out := Chain{unsafe: c.unsafe}

	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		out.elements = append(out.elements, NewPlain(strings.Join(pending, "\n")))
		pending = nil
	}

	for _, el := range c.elements {
		if el.Kind().Textual() {
			pending = append(pending, el.Render(rc))
			continue
		}
		flush()
		out.elements = append(out.elements, el)
	}
	flush()

	return out
}

// Render joins the text of every element with newlines.
func (c Chain) Render(rc RenderContext) string {
	parts := make([]string, 0, len(c.elements))
	for _, el := range c.elements {
		parts = append(parts, el.Render(rc))
	}

	return strings.Join(parts, "\n")
}

// PlainText joins only the plain text elements.
func (c Chain) PlainText() string {
	var parts []string
	for _, el := range c.elements {
		if p, ok := el.(Plain); ok {
			parts = append(parts, p.Text)
		}
	}

	return strings.Join(parts, "")
}
