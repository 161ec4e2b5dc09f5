package message

import (
	"encoding/json"
	"fmt"
)

// Canonical is the serializable {type, data} form of an element.
type Canonical struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Serialize converts an element to its canonical form.
func Serialize(el Element) (Canonical, error) {
	if el == nil {
		return Canonical{}, fmt.Errorf("serialize element: nil element")
	}

	data, err := json.Marshal(el)
	if err != nil {
		return Canonical{}, fmt.Errorf("serialize %s element: %w", el.Kind(), err)
	}

	return Canonical{Type: el.Kind(), Data: data}, nil
}

// Deserialize rebuilds an element from its canonical form.
func Deserialize(c Canonical) (Element, error) {
	switch c.Type {
	case KindPlain:
		return decode[Plain](c)
	case KindURL:
		return decode[URL](c)
	case KindFormattedTime:
		return decode[FormattedTime](c)
	case KindI18N:
		return decode[I18NContext](c)
	case KindError:
		return decode[ErrorMessage](c)
	case KindImage:
		return decode[Image](c)
	case KindVoice:
		return decode[Voice](c)
	case KindEmbed:
		return decode[Embed](c)
	case KindField:
		return decode[EmbedField](c)
	default:
		return nil, fmt.Errorf("deserialize element: unknown type %q", c.Type)
	}
}

func decode[T Element](c Canonical) (Element, error) {
	var el T
	if err := json.Unmarshal(c.Data, &el); err != nil {
		return nil, fmt.Errorf("deserialize %s element: %w", c.Type, err)
	}

	return el, nil
}

// SerializeChain converts every element of a chain.
func SerializeChain(chain Chain) ([]Canonical, error) {
	out := make([]Canonical, 0, chain.Len())
	for _, el := range chain.elements {
		item, err := Serialize(el)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}

	return out, nil
}

// DeserializeChain rebuilds a chain from canonical items.
func DeserializeChain(items []Canonical) (Chain, error) {
	var chain Chain
	for _, item := range items {
		el, err := Deserialize(item)
		if err != nil {
			return Chain{}, err
		}
		chain.Append(el)
	}

	return chain, nil
}
